// Package publisher は LayoutPlan を PDF や Markdown の文書に描画し、出力します。
package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// Format は出力文書の形式です。
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
)

// ParseFormat は文字列から Format を返します。空文字は PDF として扱います。
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPDF, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("未対応の出力形式です: %q: %w", s, domain.ErrInvalidArgument)
	}
}

// Extension は形式に対応するファイル拡張子を返します。
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return ".pdf"
}

// DocumentRenderer は LayoutPlan を文書のバイト列に描画します。
// 同じプランと同じ描画エンジンからは同じバイト列を返します。
type DocumentRenderer interface {
	Format() Format
	Render(ctx context.Context, plan domain.LayoutPlan) ([]byte, error)
}

// AssetReader は描画時に画像を読み込みます。
type AssetReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}
