package workflow

import (
	"time"

	"github.com/shouni/go-campaign-kit/pkg/adapters"
	"github.com/shouni/go-campaign-kit/pkg/generator"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
	"github.com/shouni/go-campaign-kit/pkg/store"
)

// ManagerArgs は Manager の初期化に必要な依存関係です。
type ManagerArgs struct {
	Repository *store.Repository
	Assets     AssetStore
	Locker     *store.Locker
	Identity   IdentityBuilder
	Scenes     SceneGenerator
	Recap      RecapComposer
	Compiler   MontageCompiler
	Exporter   MontageExporter
	Text       adapters.TextGenerator
	Prompts    prompts.PromptBuilder
	Retry      generator.RetryPolicy
	Now        func() time.Time
}

// CharacterInput はキャラクター作成の入力です。ReferenceImage はローカルの画像パスまたは URL です。
type CharacterInput struct {
	Name           string
	Role           string
	Description    string
	ReferenceImage string
}

// CharacterPatch はキャラクター更新の差分です。nil のフィールドは変更しません。
// ReferenceImage に空文字を指定すると参照画像を外します。
type CharacterPatch struct {
	Name           *string
	Role           *string
	Description    *string
	ReferenceImage *string
}

// CampaignInput はキャンペーン作成・更新の入力です。
type CampaignInput struct {
	Name        string
	Description string
	Style       string
}

// ExportRequest はモンタージュ出力の入力です。
type ExportRequest struct {
	CampaignID   string
	IncludeRecap bool
	Format       string
}
