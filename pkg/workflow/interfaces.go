package workflow

import (
	"context"

	"github.com/shouni/go-campaign-kit/pkg/asset"
	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/generator"
	"github.com/shouni/go-campaign-kit/pkg/publisher"
)

// SceneGenerator はシーンの挿絵とキャプションの生成を担います。
type SceneGenerator interface {
	GenerateScene(ctx context.Context, req generator.GenerateRequest) (domain.Scene, error)
	RegenerateScene(ctx context.Context, sceneID string) (domain.Scene, error)
	CaptionScene(ctx context.Context, sceneID string) (domain.Scene, error)
}

// RecapComposer はキャンペーンの要約を生成します。
type RecapComposer interface {
	ComposeRecap(ctx context.Context, campaignID string) (string, error)
}

// MontageCompiler はページ構成を組み立てます。
type MontageCompiler interface {
	Compile(campaign domain.Campaign, scenes []domain.Scene, chars domain.CharactersMap, includeRecap bool) (domain.LayoutPlan, error)
}

// MontageExporter はページ構成を文書として書き出します。
type MontageExporter interface {
	Export(ctx context.Context, plan domain.LayoutPlan, format publisher.Format) (publisher.ExportResult, error)
}

// AssetStore はキャラクターの参照画像の取り込みと、所有アセットの削除を扱います。
type AssetStore interface {
	asset.Store
	Import(ctx context.Context, dir, prefix, srcPath string) (string, error)
}

// IdentityBuilder はビジュアルアイデンティティを構築します。
type IdentityBuilder interface {
	Build(ctx context.Context, c domain.Character) (domain.Character, error)
}
