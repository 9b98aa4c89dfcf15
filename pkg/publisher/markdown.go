package publisher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

const placeholder = "placeholder.png"

// MarkdownRenderer は LayoutPlan を Markdown 文書にします。
type MarkdownRenderer struct {
	linkBase string
}

// NewMarkdownRenderer は MarkdownRenderer を生成します。
// linkBase を指定すると、画像パスをそのディレクトリからの相対パスで出力します。
func NewMarkdownRenderer(linkBase string) *MarkdownRenderer {
	return &MarkdownRenderer{linkBase: linkBase}
}

func (r *MarkdownRenderer) Format() Format { return FormatMarkdown }

// Render はページ順に見出しと画像、キャプションを書き出します。
func (r *MarkdownRenderer) Render(ctx context.Context, plan domain.LayoutPlan) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, page := range plan.Pages {
		switch page.Kind {
		case domain.PageCover:
			sb.WriteString(fmt.Sprintf("# %s\n\n", page.Title))
			if page.Body != "" {
				sb.WriteString(page.Body + "\n\n")
			}
			if len(page.Roster) > 0 {
				sb.WriteString("**Characters**\n\n")
				for _, e := range page.Roster {
					if e.Role != "" {
						sb.WriteString(fmt.Sprintf("- %s (%s)\n", e.Name, e.Role))
					} else {
						sb.WriteString(fmt.Sprintf("- %s\n", e.Name))
					}
				}
				sb.WriteString("\n")
			}
		case domain.PageChapterTitle:
			sb.WriteString("---\n\n")
			sb.WriteString(fmt.Sprintf("## %s: %s\n\n", page.Body, page.Title))
		case domain.PageScene:
			sb.WriteString(fmt.Sprintf("### %s\n\n", page.Title))
			sb.WriteString(fmt.Sprintf("![%s](%s)\n\n", page.Title, r.link(page.ImagePath)))
			sb.WriteString(fmt.Sprintf("*%s*\n\n", page.Caption))
			if page.Body != "" {
				sb.WriteString(page.Body + "\n\n")
			}
		case domain.PageRecap:
			sb.WriteString("---\n\n")
			sb.WriteString(fmt.Sprintf("## %s\n\n%s\n\n", page.Title, page.Body))
		}
	}
	return []byte(strings.TrimRight(sb.String(), "\n") + "\n"), nil
}

func (r *MarkdownRenderer) link(imagePath string) string {
	if imagePath == "" {
		return placeholder
	}
	if r.linkBase == "" {
		return filepath.ToSlash(imagePath)
	}
	rel, err := filepath.Rel(r.linkBase, imagePath)
	if err != nil {
		return filepath.ToSlash(imagePath)
	}
	return filepath.ToSlash(rel)
}
