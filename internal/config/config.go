package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shouni/go-utils/envutil"
	"github.com/spf13/viper"

	"github.com/shouni/go-campaign-kit/pkg/identity"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
)

// デフォルト値の定義なのだ
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	StoreFile   = "file"
	StoreSQLite = "sqlite"

	DefaultProvider          = ProviderGemini
	DefaultGeminiModel       = "gemini-3-flash-preview"
	DefaultGeminiImageModel  = "gemini-3-pro-image-preview"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultOpenAIImageModel  = "gpt-image-1"
	DefaultOpenAIImageSize   = "1024x1024"
	DefaultTemperature       = 0.7
	DefaultDataDir           = ".campaign-kit"
	DefaultStore             = StoreFile
	DefaultAspectRatio       = "1:1"
	DefaultPageSize          = "A4"
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultTextRateInterval  = 1 * time.Second
	DefaultImageRateInterval = 10 * time.Second
	DefaultRetryAttempts     = 3
	DefaultConfigName        = "campaign"
	EnvPrefix                = "CAMPAIGN"
)

// Config はアプリケーション全体の設定を保持する構造体なのだ。
// LoadConfig で一度だけ組み立てて、ビルダーに参照で渡すのだ。
type Config struct {
	// --- Provider ---
	Provider string

	// --- Google AI (Gemini API) Settings ---
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string

	// --- OpenAI Settings ---
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIImageModel string
	OpenAIImageSize  string

	// --- Generation Settings ---
	Temperature       float64
	PromptMaxLength   int
	IdentityMaxLength int
	StyleSuffix       string
	AspectRatio       string
	SummarizeIdentity bool

	// --- Storage Settings ---
	DataDir string
	Store   string

	// --- Export Settings ---
	PageSize string

	// --- Timeout & Retries ---
	HTTPTimeout       time.Duration
	TextRateInterval  time.Duration
	ImageRateInterval time.Duration
	RetryAttempts     int
}

// envBindings は設定キーと、それを上書きする環境変数の対応なのだ。
// CAMPAIGN_ で始まる環境変数は viper の AutomaticEnv でも拾えるのだ。
var envBindings = map[string]string{
	"provider":            "CAMPAIGN_PROVIDER",
	"gemini_api_key":      "GEMINI_API_KEY",
	"gemini_model":        "GEMINI_MODEL",
	"gemini_image_model":  "IMAGE_GEMINI_MODEL",
	"openai_api_key":      "OPENAI_API_KEY",
	"openai_base_url":     "OPENAI_BASE_URL",
	"openai_model":        "OPENAI_MODEL",
	"openai_image_model":  "OPENAI_IMAGE_MODEL",
	"prompt_max_length":   "PROMPT_MAX_LENGTH",
	"identity_max_length": "IDENTITY_MAX_LENGTH",
	"style_suffix":        "IMAGE_PROMPT_SUFFIX",
	"data_dir":            "CAMPAIGN_DATA_DIR",
	"store":               "CAMPAIGN_STORE",
}

// LoadConfig は設定ファイルと環境変数から Config を組み立てるのだ！
// 優先順位は 環境変数 > 設定ファイル > デフォルト値 なのだ。
// cfgFile が空なら ./campaign.yaml と $HOME/.campaign-kit/campaign.yaml を探し、見つからなくてもエラーにしないのだ。
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("$HOME", DefaultDataDir))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗したのだ: %w", err)
		}
	}

	for key, env := range envBindings {
		if val := envutil.GetEnv(env, ""); val != "" {
			v.Set(key, val)
		}
	}

	cfg := &Config{
		Provider:          strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		GeminiAPIKey:      v.GetString("gemini_api_key"),
		GeminiModel:       v.GetString("gemini_model"),
		GeminiImageModel:  v.GetString("gemini_image_model"),
		OpenAIAPIKey:      v.GetString("openai_api_key"),
		OpenAIBaseURL:     v.GetString("openai_base_url"),
		OpenAIModel:       v.GetString("openai_model"),
		OpenAIImageModel:  v.GetString("openai_image_model"),
		OpenAIImageSize:   v.GetString("openai_image_size"),
		Temperature:       v.GetFloat64("temperature"),
		PromptMaxLength:   v.GetInt("prompt_max_length"),
		IdentityMaxLength: v.GetInt("identity_max_length"),
		StyleSuffix:       v.GetString("style_suffix"),
		AspectRatio:       v.GetString("aspect_ratio"),
		SummarizeIdentity: v.GetBool("summarize_identity"),
		DataDir:           v.GetString("data_dir"),
		Store:             strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PageSize:          v.GetString("page_size"),
		HTTPTimeout:       v.GetDuration("http_timeout"),
		TextRateInterval:  v.GetDuration("text_rate_interval"),
		ImageRateInterval: v.GetDuration("image_rate_interval"),
		RetryAttempts:     v.GetInt("retry_attempts"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", DefaultProvider)
	v.SetDefault("gemini_model", DefaultGeminiModel)
	v.SetDefault("gemini_image_model", DefaultGeminiImageModel)
	v.SetDefault("openai_model", DefaultOpenAIModel)
	v.SetDefault("openai_image_model", DefaultOpenAIImageModel)
	v.SetDefault("openai_image_size", DefaultOpenAIImageSize)
	v.SetDefault("temperature", DefaultTemperature)
	v.SetDefault("prompt_max_length", prompts.DefaultMaxPromptLength)
	v.SetDefault("identity_max_length", identity.DefaultMaxLength)
	v.SetDefault("aspect_ratio", DefaultAspectRatio)
	v.SetDefault("summarize_identity", false)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("store", DefaultStore)
	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("text_rate_interval", DefaultTextRateInterval)
	v.SetDefault("image_rate_interval", DefaultImageRateInterval)
	v.SetDefault("retry_attempts", DefaultRetryAttempts)
}

// Validate は値の組み合わせをチェックするのだ。API キーの有無は実際に生成するときまで問わないのだ。
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("未対応のプロバイダーなのだ: %q (gemini / openai)", c.Provider)
	}
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("未対応のストアなのだ: %q (file / sqlite)", c.Store)
	}
	if c.PromptMaxLength <= 0 {
		return fmt.Errorf("prompt_max_length は正の数である必要があるのだ: %d", c.PromptMaxLength)
	}
	if c.IdentityMaxLength <= 0 {
		return fmt.Errorf("identity_max_length は正の数である必要があるのだ: %d", c.IdentityMaxLength)
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts は正の数である必要があるのだ: %d", c.RetryAttempts)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir は必須です")
	}
	return nil
}

// RequireCredentials は生成系の操作の前に、選んだプロバイダーの認証情報があるか確かめるのだ。
func (c *Config) RequireCredentials() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("環境変数 OPENAI_API_KEY が設定されていないのだ")
		}
	default:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("環境変数 GEMINI_API_KEY が設定されていないのだ")
		}
	}
	return nil
}
