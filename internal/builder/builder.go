package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/shouni/go-campaign-kit/internal/config"
	"github.com/shouni/go-campaign-kit/pkg/adapters"
	"github.com/shouni/go-campaign-kit/pkg/asset"
	"github.com/shouni/go-campaign-kit/pkg/generator"
	"github.com/shouni/go-campaign-kit/pkg/identity"
	"github.com/shouni/go-campaign-kit/pkg/montage"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
	"github.com/shouni/go-campaign-kit/pkg/publisher"
	"github.com/shouni/go-campaign-kit/pkg/store"
	"github.com/shouni/go-campaign-kit/pkg/store/filestore"
	"github.com/shouni/go-campaign-kit/pkg/store/sqlitestore"
	"github.com/shouni/go-campaign-kit/pkg/workflow"
)

const (
	dataSubDir       = "data"
	assetSubDir      = "assets"
	sqliteFileName   = "campaign.db"
	referenceTTL     = 30 * time.Minute
	referenceCleanup = 1 * time.Hour
)

// Providers は選択したプロバイダーのテキスト生成と画像生成の組です。
type Providers struct {
	Name   string
	Text   adapters.TextGenerator
	Images adapters.ImageGenerator
}

// BuildAppContext は設定からストア、プロバイダー、Orchestrator、Exporter を組み立てて Manager にまとめます。
// 認証情報が無い場合でも生成を伴わない操作は使えるように、生成時にエラーを返すプロバイダーで埋めます。
func BuildAppContext(ctx context.Context, cfg *config.Config) (_ *AppContext, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("Config は必須です")
	}
	app := &AppContext{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	repo, closeStore, err := BuildRepository(cfg)
	if err != nil {
		return nil, err
	}
	app.Repository = repo
	app.closers = append(app.closers, closeStore)

	assets, err := asset.NewLocalStore(filepath.Join(cfg.DataDir, assetSubDir))
	if err != nil {
		return nil, err
	}

	providers, err := BuildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Provider = providers.Name

	pb, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("プロンプトビルダーの初期化に失敗しました: %w", err)
	}

	ib, err := BuildIdentity(cfg, providers, pb)
	if err != nil {
		return nil, err
	}

	refs, err := adapters.NewReferenceLoader(assets, httpkit.New(cfg.HTTPTimeout), cache.New(referenceTTL, referenceCleanup))
	if err != nil {
		return nil, err
	}

	retry := generator.DefaultRetryPolicy()
	retry.Attempts = uint(cfg.RetryAttempts)
	locker := store.NewLocker()

	orch, err := generator.NewOrchestrator(generator.Dependencies{
		Repository:  repo,
		Assets:      assets,
		Identity:    ib,
		Composer:    prompts.NewComposer(cfg.PromptMaxLength, cfg.StyleSuffix),
		Prompts:     pb,
		Images:      providers.Images,
		Text:        providers.Text,
		References:  refs,
		Locker:      locker,
		Retry:       retry,
		AspectRatio: cfg.AspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("Orchestrator の初期化に失敗しました: %w", err)
	}

	recap, err := generator.NewRecapComposer(repo, providers.Text, pb, locker, retry)
	if err != nil {
		return nil, fmt.Errorf("RecapComposer の初期化に失敗しました: %w", err)
	}

	exporter, err := BuildExporter(cfg, assets)
	if err != nil {
		return nil, err
	}

	app.Manager, err = workflow.New(workflow.ManagerArgs{
		Repository: repo,
		Assets:     assets,
		Locker:     locker,
		Identity:   ib,
		Scenes:     orch,
		Recap:      recap,
		Compiler:   montage.NewCompiler(),
		Exporter:   exporter,
		Text:       providers.Text,
		Prompts:    pb,
		Retry:      retry,
	})
	if err != nil {
		return nil, fmt.Errorf("Manager の初期化に失敗しました: %w", err)
	}

	slog.DebugContext(ctx, "アプリケーションを初期化しました",
		"provider", app.Provider, "store", cfg.Store, "data_dir", cfg.DataDir)
	return app, nil
}

// BuildRepository は設定に応じたバックエンドでリポジトリを構築し、後始末の関数と一緒に返します。
func BuildRepository(cfg *config.Config) (*store.Repository, func() error, error) {
	var backend store.Backend
	closeFn := func() error { return nil }

	switch cfg.Store {
	case config.StoreSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("データディレクトリの作成に失敗しました: %w", err)
		}
		db, err := sqlitestore.Open(filepath.Join(cfg.DataDir, sqliteFileName))
		if err != nil {
			return nil, nil, fmt.Errorf("SQLite ストアを開けませんでした: %w", err)
		}
		backend, closeFn = db, db.Close
	default:
		fs, err := filestore.New(filepath.Join(cfg.DataDir, dataSubDir))
		if err != nil {
			return nil, nil, fmt.Errorf("ファイルストアの初期化に失敗しました: %w", err)
		}
		backend = fs
	}

	repo, err := store.NewRepository(backend)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return repo, closeFn, nil
}

// BuildProviders は設定されたプロバイダーのクライアントを初期化し、レートリミッターを被せて返します。
func BuildProviders(ctx context.Context, cfg *config.Config) (Providers, error) {
	if err := cfg.RequireCredentials(); err != nil {
		slog.DebugContext(ctx, "認証情報が無いため生成機能は無効です", "provider", cfg.Provider)
		u := unavailable{reason: err}
		return Providers{Name: cfg.Provider, Text: u, Images: u}, nil
	}

	var (
		text   adapters.TextGenerator
		images adapters.ImageGenerator
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err := adapters.NewOpenAIClient(adapters.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return Providers{}, err
		}
		if text, err = adapters.NewOpenAIText(client, cfg.OpenAIModel, cfg.Temperature); err != nil {
			return Providers{}, err
		}
		if images, err = adapters.NewOpenAIImage(client, cfg.OpenAIImageModel, cfg.OpenAIImageSize); err != nil {
			return Providers{}, err
		}
	default:
		aiClient, err := adapters.NewGeminiClient(ctx, cfg.GeminiAPIKey, float32(cfg.Temperature))
		if err != nil {
			return Providers{}, err
		}
		if text, err = adapters.NewGeminiText(aiClient, cfg.GeminiModel); err != nil {
			return Providers{}, err
		}
		if images, err = adapters.NewGeminiImage(aiClient, cfg.GeminiImageModel); err != nil {
			return Providers{}, err
		}
	}

	return Providers{
		Name:   cfg.Provider,
		Text:   adapters.LimitText(text, adapters.NewLimiter(cfg.TextRateInterval)),
		Images: adapters.LimitImage(images, adapters.NewLimiter(cfg.ImageRateInterval)),
	}, nil
}

// BuildIdentity は画像生成が参照画像を受け付けるかどうかで強調の文言を切り替えた Builder を返します。
func BuildIdentity(cfg *config.Config, p Providers, pb prompts.PromptBuilder) (*identity.Builder, error) {
	mode := identity.ReferenceEmphasis
	if adapters.SupportsReferences(p.Images) {
		mode = identity.ReferenceAttached
	}
	opts := []identity.Option{
		identity.WithMaxLength(cfg.IdentityMaxLength),
		identity.WithReferenceMode(mode),
	}
	if cfg.SummarizeIdentity {
		if _, ok := p.Text.(unavailable); !ok {
			s, err := identity.NewTextSummarizer(p.Text, pb)
			if err != nil {
				return nil, fmt.Errorf("特徴抽出の初期化に失敗しました: %w", err)
			}
			opts = append(opts, identity.WithSummarizer(s))
		}
	}
	return identity.NewBuilder(opts...), nil
}

// BuildExporter は PDF と Markdown のレンダラーを登録した Exporter を返します。
func BuildExporter(cfg *config.Config, assets *asset.LocalStore) (*publisher.Exporter, error) {
	exportDir := filepath.Join(cfg.DataDir, asset.DefaultExportDir)
	pdf, err := publisher.NewPDFRenderer(assets, cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("PDF レンダラーの初期化に失敗しました: %w", err)
	}
	return publisher.NewExporter(exportDir, nil, pdf, publisher.NewMarkdownRenderer(exportDir))
}
