// Package adapters は外部のテキスト生成・画像生成サービスへの接続を提供します。
// 各実装は失敗を domain.ProviderError に分類して返します。
package adapters

import (
	"context"
)

// TextGenerator はテキスト生成の契約です。
type TextGenerator interface {
	Complete(ctx context.Context, systemContext, userPrompt string) (string, error)
}

// ImageGenerator は画像生成の契約です。
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// ReferenceSupporter は参照画像をリクエストに添付できる生成器が実装します。
type ReferenceSupporter interface {
	SupportsReferenceImages() bool
}

// ReferenceImage は生成器に渡す参照画像です。
type ReferenceImage struct {
	Data     []byte
	MimeType string
}

// ImageRequest は画像生成リクエストです。
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	Seed           *int64
	References     []ReferenceImage
}

// ImageResponse は生成された画像です。
type ImageResponse struct {
	Data     []byte
	MimeType string
	UsedSeed int64
}

// SupportsReferences は生成器が参照画像を受け付けるかどうかを返します。
func SupportsReferences(g ImageGenerator) bool {
	rs, ok := g.(ReferenceSupporter)
	return ok && rs.SupportsReferenceImages()
}

// promptWithNegative はネガティブプロンプトを持たない API 向けに本文へ追記します。
func promptWithNegative(req ImageRequest) string {
	if req.NegativePrompt == "" {
		return req.Prompt
	}
	return req.Prompt + "\n\n### AVOID ###\n" + req.NegativePrompt
}
