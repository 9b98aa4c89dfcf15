package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// GeminiModel は gemini クライアントのうち、テキストと画像の生成で使う呼び出しです。
type GeminiModel interface {
	GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
}

// NewGeminiClient は gemini クライアントを初期化します。テキストと画像の生成で共有します。
func NewGeminiClient(ctx context.Context, apiKey string, temperature float32) (gemini.GenerativeModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	clientConfig := gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(temperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// GeminiText は Gemini によるテキスト生成です。
type GeminiText struct {
	aiClient GeminiModel
	model    string
}

// NewGeminiText は GeminiText を生成します。
func NewGeminiText(aiClient GeminiModel, model string) (*GeminiText, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient は必須です")
	}
	if model == "" {
		return nil, fmt.Errorf("テキスト生成モデル名は必須です")
	}
	return &GeminiText{aiClient: aiClient, model: model}, nil
}

// Complete はシステムコンテキストとユーザープロンプトからテキストを生成します。
func (g *GeminiText) Complete(ctx context.Context, systemContext, userPrompt string) (string, error) {
	parts := []*genai.Part{{Text: userPrompt}}
	opts := gemini.GenerateOptions{SystemPrompt: systemContext}

	resp, err := g.aiClient.GenerateWithParts(ctx, g.model, parts, opts)
	if err != nil {
		return "", ClassifyGeminiError(err)
	}
	raw := rawResponse(resp)
	if reason, blocked := geminiBlocked(raw); blocked {
		return "", domain.NewProviderError(domain.ContentPolicyRejected, ProviderGemini, errors.New(reason))
	}

	var text string
	if raw != nil {
		text = strings.TrimSpace(raw.Text())
	}
	if text == "" {
		return "", domain.NewProviderError(domain.UnknownProviderError, ProviderGemini, errors.New("empty text response"))
	}
	return text, nil
}

// GeminiImage は Gemini の画像生成モデルによる画像生成です。参照画像をインラインで添付できます。
type GeminiImage struct {
	aiClient GeminiModel
	model    string
}

// NewGeminiImage は GeminiImage を生成します。
func NewGeminiImage(aiClient GeminiModel, model string) (*GeminiImage, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient は必須です")
	}
	if model == "" {
		return nil, fmt.Errorf("画像生成モデル名は必須です")
	}
	return &GeminiImage{aiClient: aiClient, model: model}, nil
}

// SupportsReferenceImages は参照画像の添付に対応していることを示します。
func (g *GeminiImage) SupportsReferenceImages() bool { return true }

// Generate は画像を生成します。
func (g *GeminiImage) Generate(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	parts := []*genai.Part{{Text: promptWithNegative(req)}}
	for _, ref := range req.References {
		if len(ref.Data) == 0 {
			continue
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: ref.MimeType, Data: ref.Data}})
	}

	opts := gemini.GenerateOptions{AspectRatio: req.AspectRatio}
	var usedSeed int64
	if req.Seed != nil {
		// 正の int32 に収まる範囲に丸めます
		usedSeed = *req.Seed & 0x7FFFFFFF
		opts.Seed = &usedSeed
	}

	resp, err := g.aiClient.GenerateWithParts(ctx, g.model, parts, opts)
	if err != nil {
		return nil, ClassifyGeminiError(err)
	}
	raw := rawResponse(resp)
	if reason, blocked := geminiBlocked(raw); blocked {
		return nil, domain.NewProviderError(domain.ContentPolicyRejected, ProviderGemini, errors.New(reason))
	}

	if raw != nil {
		for _, cand := range raw.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return &ImageResponse{
						Data:     part.InlineData.Data,
						MimeType: part.InlineData.MIMEType,
						UsedSeed: usedSeed,
					}, nil
				}
			}
		}
	}
	return nil, domain.NewProviderError(domain.UnknownProviderError, ProviderGemini, errors.New("response contained no image"))
}

func rawResponse(resp *gemini.Response) *genai.GenerateContentResponse {
	if resp == nil {
		return nil
	}
	return resp.RawResponse
}
