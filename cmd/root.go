package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/go-campaign-kit/internal/builder"
	"github.com/shouni/go-campaign-kit/internal/config"
	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// globalOptions は全コマンド共通のフラグなのだ。
type globalOptions struct {
	ConfigFile string
	DataDir    string
	Provider   string
	Store      string
	Verbose    bool
	JSON       bool
}

var (
	opts globalOptions
	// app は PersistentPreRunE で組み立てられ、各サブコマンドから使うのだ。
	app *builder.AppContext
)

var rootCmd = &cobra.Command{
	Use:   "campaign-kit",
	Short: "TTRPG キャンペーンの挿絵とモンタージュを作るのだ。",
	Long: `キャラクターの見た目を一貫させたまま、シーンの挿絵とキャプションを生成し、
キャンペーン全体を PDF や Markdown のモンタージュにまとめるのだ。`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  preRunAppE,
	PersistentPostRunE: postRunAppE,
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "設定ファイルのパス（既定は ./campaign.yaml）なのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.DataDir, "data-dir", "d", "", "データとアセットの保存先ディレクトリなのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Provider, "provider", "", "生成プロバイダー（gemini / openai）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Store, "store", "", "保存形式（file / sqlite）なのだ。")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "デバッグログを出すのだ。")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "結果を JSON で出力するのだ。")
}

func init() {
	addAppFlags(rootCmd)
}

// preRunAppE は、ロガーを設定し、設定を読み込んで AppContext を組み立てるのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Provider != "" {
		cfg.Provider = strings.ToLower(opts.Provider)
	}
	if opts.Store != "" {
		cfg.Store = strings.ToLower(opts.Store)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, err = builder.BuildAppContext(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗したのだ: %w", err)
	}
	return nil
}

// postRunAppE は、ストアなどを閉じるのだ。
func postRunAppE(cmd *cobra.Command, args []string) error {
	if app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}

// requireGeneration は、生成を伴うコマンドの前に認証情報を確かめるのだ。
func requireGeneration() error {
	return app.Config.RequireCredentials()
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	err := rootCmd.Execute()
	if app != nil {
		_ = app.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "エラー:", describeError(err))
		os.Exit(1)
	}
}

// describeError は、プロバイダーの失敗を利用者向けの文言に置き換えるのだ。
func describeError(err error) string {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe.UserMessage()
	}
	return err.Error()
}
