package adapters

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// OpenAIConfig は OpenAI クライアントの接続設定です。
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewOpenAIClient は openai クライアントを生成します。
// SDK 内部の再試行は無効にし、再試行は呼び出し側の方針に一本化します。
func NewOpenAIClient(cfg OpenAIConfig) (openai.Client, error) {
	if cfg.APIKey == "" {
		return openai.Client{}, fmt.Errorf("OPENAI_API_KEY は必須です")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return openai.NewClient(opts...), nil
}

// OpenAIText は Chat Completions によるテキスト生成です。
type OpenAIText struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIText は OpenAIText を生成します。
func NewOpenAIText(client openai.Client, model string, temperature float64) (*OpenAIText, error) {
	if model == "" {
		return nil, fmt.Errorf("テキスト生成モデル名は必須です")
	}
	return &OpenAIText{client: client, model: model, temperature: temperature}, nil
}

// Complete はシステムコンテキストとユーザープロンプトからテキストを生成します。
func (o *OpenAIText) Complete(ctx context.Context, systemContext, userPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemContext != "" {
		messages = append(messages, openai.SystemMessage(systemContext))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return "", ClassifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewProviderError(domain.UnknownProviderError, ProviderOpenAI, errors.New("no choices in response"))
	}

	choice := resp.Choices[0]
	if string(choice.FinishReason) == "content_filter" {
		return "", domain.NewProviderError(domain.ContentPolicyRejected, ProviderOpenAI, errors.New("finish reason: content_filter"))
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", domain.NewProviderError(domain.UnknownProviderError, ProviderOpenAI, errors.New("empty text response"))
	}
	return text, nil
}

// OpenAIImage は Images API による画像生成です。参照画像は受け付けません。
type OpenAIImage struct {
	client openai.Client
	model  string
	size   string
}

// NewOpenAIImage は OpenAIImage を生成します。size が空なら 1024x1024 です。
func NewOpenAIImage(client openai.Client, model, size string) (*OpenAIImage, error) {
	if model == "" {
		return nil, fmt.Errorf("画像生成モデル名は必須です")
	}
	if size == "" {
		size = "1024x1024"
	}
	return &OpenAIImage{client: client, model: model, size: size}, nil
}

// Generate は画像を生成します。
func (o *OpenAIImage) Generate(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	params := openai.ImageGenerateParams{
		Prompt: promptWithNegative(req),
		Model:  openai.ImageModel(o.model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(o.size),
	}
	if strings.HasPrefix(o.model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := o.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, ClassifyOpenAIError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, domain.NewProviderError(domain.UnknownProviderError, ProviderOpenAI, errors.New("response contained no image"))
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, domain.NewProviderError(domain.UnknownProviderError, ProviderOpenAI, fmt.Errorf("decode image: %w", err))
	}
	return &ImageResponse{Data: data, MimeType: http.DetectContentType(data)}, nil
}
