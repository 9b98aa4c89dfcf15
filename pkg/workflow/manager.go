// Package workflow はキャラクター、キャンペーン、シーン、モンタージュの操作を一つの窓口にまとめます。
// 参照整合性の検査はここで行い、生成処理は generator に委譲します。
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-campaign-kit/pkg/adapters"
	"github.com/shouni/go-campaign-kit/pkg/generator"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
	"github.com/shouni/go-campaign-kit/pkg/store"
)

// OpExpandDescription は説明文の拡張に失敗した場合の操作名です。
const OpExpandDescription = "description expansion"

// Manager はアプリケーションの操作を提供します。
type Manager struct {
	repo     *store.Repository
	assets   AssetStore
	locker   *store.Locker
	identity IdentityBuilder
	scenes   SceneGenerator
	recap    RecapComposer
	compiler MontageCompiler
	exporter MontageExporter
	text     adapters.TextGenerator
	prompts  prompts.PromptBuilder
	retry    generator.RetryPolicy
	now      func() time.Time
}

// New は Manager を初期化します。
func New(args ManagerArgs) (*Manager, error) {
	switch {
	case args.Repository == nil:
		return nil, fmt.Errorf("Repository は必須です")
	case args.Assets == nil:
		return nil, fmt.Errorf("AssetStore は必須です")
	case args.Identity == nil:
		return nil, fmt.Errorf("IdentityBuilder は必須です")
	case args.Scenes == nil:
		return nil, fmt.Errorf("SceneGenerator は必須です")
	case args.Recap == nil:
		return nil, fmt.Errorf("RecapComposer は必須です")
	case args.Compiler == nil:
		return nil, fmt.Errorf("MontageCompiler は必須です")
	case args.Exporter == nil:
		return nil, fmt.Errorf("MontageExporter は必須です")
	}

	m := &Manager{
		repo:     args.Repository,
		assets:   args.Assets,
		locker:   args.Locker,
		identity: args.Identity,
		scenes:   args.Scenes,
		recap:    args.Recap,
		compiler: args.Compiler,
		exporter: args.Exporter,
		text:     args.Text,
		prompts:  args.Prompts,
		retry:    args.Retry,
		now:      args.Now,
	}
	if m.locker == nil {
		m.locker = store.NewLocker()
	}
	if m.retry.Attempts == 0 {
		m.retry = generator.DefaultRetryPolicy()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

func (m *Manager) discardAsset(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := m.assets.Delete(ctx, path); err != nil {
		slog.WarnContext(ctx, "アセットの削除に失敗しました", "path", path, "error", err)
	}
}
