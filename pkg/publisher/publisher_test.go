package publisher

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

type mapReader map[string][]byte

func (m mapReader) Read(_ context.Context, path string) ([]byte, error) {
	d, ok := m[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func samplePlan() domain.LayoutPlan {
	return domain.LayoutPlan{
		CampaignID: "lost-mines",
		Title:      "Lost Mines",
		Pages: []domain.PageDescriptor{
			{Number: 1, Kind: domain.PageCover, Title: "Lost Mines", Body: "A Phandelver adventure", Roster: []domain.RosterEntry{{Name: "Thorin", Role: "Fighter"}, {Name: "Sildar"}}},
			{Number: 2, Kind: domain.PageChapterTitle, Title: "Goblin Ambush", Body: "Chapter 1", ChapterID: "ch1"},
			{Number: 3, Kind: domain.PageScene, Title: "Wagon", ChapterID: "ch1", SceneID: "s1", SceneRevision: 1, ImagePath: "/assets/images/s1.png", Caption: "Arrows fly from the brush.", Body: "Featuring: Thorin"},
			{Number: 4, Kind: domain.PageScene, Title: "Trail", ChapterID: "ch1", SceneID: "s2", SceneRevision: 1, ImagePath: "/assets/images/missing.png", Caption: domain.PlaceholderCaption, CaptionMissing: true},
			{Number: 5, Kind: domain.PageRecap, Title: "Recap", Body: "The heroes prevailed.\n\nGundren is still missing."},
		},
	}
}

func TestMarkdownRenderer(t *testing.T) {
	r := NewMarkdownRenderer("/assets/exports")
	out, err := r.Render(context.Background(), samplePlan())
	require.NoError(t, err)
	md := string(out)

	t.Run("見出しとページ順が保たれること", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(md, "# Lost Mines\n"))
		order := []string{"# Lost Mines", "## Chapter 1: Goblin Ambush", "### Wagon", "### Trail", "## Recap"}
		last := -1
		for _, s := range order {
			idx := strings.Index(md, s)
			require.GreaterOrEqual(t, idx, 0, s)
			assert.Greater(t, idx, last, s)
			last = idx
		}
	})

	t.Run("画像は出力先からの相対パスになること", func(t *testing.T) {
		assert.Contains(t, md, "![Wagon](../images/s1.png)")
	})

	t.Run("ロスターとプレースホルダーキャプションが出力されること", func(t *testing.T) {
		assert.Contains(t, md, "- Thorin (Fighter)\n")
		assert.Contains(t, md, "- Sildar\n")
		assert.Contains(t, md, "*"+domain.PlaceholderCaption+"*")
	})

	t.Run("画像パスが無い場合は placeholder.png", func(t *testing.T) {
		plan := domain.LayoutPlan{Pages: []domain.PageDescriptor{{Kind: domain.PageScene, Title: "x", Caption: "c"}}}
		out, err := NewMarkdownRenderer("").Render(context.Background(), plan)
		require.NoError(t, err)
		assert.Contains(t, string(out), "![x](placeholder.png)")
	})
}

func TestPDFRenderer(t *testing.T) {
	reader := mapReader{"/assets/images/s1.png": testPNG(t, 64, 48)}
	r, err := NewPDFRenderer(reader, "")
	require.NoError(t, err)
	plan := samplePlan()

	out, err := r.Render(context.Background(), plan)
	require.NoError(t, err)

	t.Run("ページ記述子と同じページ数の PDF になること", func(t *testing.T) {
		assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
		n, err := api.PageCount(bytes.NewReader(out), nil)
		require.NoError(t, err)
		assert.Equal(t, len(plan.Pages), n)
	})

	t.Run("同じプランからは同じバイト列になること", func(t *testing.T) {
		again, err := r.Render(context.Background(), plan)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(out, again))
	})

	t.Run("長い要約でもページ数が変わらないこと", func(t *testing.T) {
		long := samplePlan()
		long.Pages[4].Body = strings.Repeat("The heroes prevailed against the Black Spider. ", 400)
		out, err := r.Render(context.Background(), long)
		require.NoError(t, err)
		n, err := api.PageCount(bytes.NewReader(out), nil)
		require.NoError(t, err)
		assert.Equal(t, len(long.Pages), n)
	})

	t.Run("キャンセル済みのコンテキストではエラー", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.Render(ctx, plan)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFit(t *testing.T) {
	w, h := fit(200, 100, 100, 100)
	assert.InDelta(t, 100, w, 0.001)
	assert.InDelta(t, 50, h, 0.001)

	w, h = fit(100, 400, 100, 100)
	assert.InDelta(t, 25, w, 0.001)
	assert.InDelta(t, 100, h, 0.001)
}

func TestFitText(t *testing.T) {
	newPDF := func() *fpdf.Fpdf {
		pdf := fpdf.New("P", "mm", "A4", "")
		pdf.AddPage()
		pdf.SetFont(fontFamily, "", 12)
		return pdf
	}

	t.Run("収まる文章はそのままの大きさで返すこと", func(t *testing.T) {
		text, lh := fitText(newPDF(), []string{"Arrows fly from the brush."}, 180, 40, 12)
		assert.Equal(t, "Arrows fly from the brush.", text)
		assert.InDelta(t, 12*lineHeightRatio, lh, 0.001)
	})

	t.Run("溢れる文章は縮小し、それでも溢れる分を省略記号で打ち切ること", func(t *testing.T) {
		pdf := newPDF()
		long := strings.Repeat("The heroes pressed deeper into Wave Echo Cave. ", 200)
		text, lh := fitText(pdf, []string{long, long}, 180, 60, 12)

		assert.InDelta(t, minFontSize*lineHeightRatio, lh, 0.001)
		lines := strings.Split(text, "\n")
		assert.LessOrEqual(t, float64(len(lines))*lh, 60.0)
		assert.True(t, strings.HasSuffix(text, ellipsis))
		for _, line := range lines {
			assert.LessOrEqual(t, pdf.GetStringWidth(line), 180.0)
		}
	})

	t.Run("余白が無ければ何も描かないこと", func(t *testing.T) {
		text, _ := fitText(newPDF(), []string{"x"}, 180, 1, 12)
		assert.Empty(t, text)
	})
}

type countingRenderer struct {
	calls atomic.Int32
}

func (c *countingRenderer) Format() Format { return FormatMarkdown }

func (c *countingRenderer) Render(_ context.Context, plan domain.LayoutPlan) ([]byte, error) {
	c.calls.Add(1)
	return []byte(plan.Title), nil
}

func TestExporter(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	renderer := &countingRenderer{}
	e, err := NewExporter(dir, nil, renderer)
	require.NoError(t, err)

	t.Run("ファイルに書き出されること", func(t *testing.T) {
		res, err := e.Export(ctx, samplePlan(), FormatMarkdown)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "lost-mines_lostmine_montage.md"), res.Path)
		assert.Equal(t, 5, res.Pages)
		data, err := os.ReadFile(res.Path)
		require.NoError(t, err)
		assert.Equal(t, "Lost Mines", string(data))
	})

	t.Run("同じプランは描画結果を再利用すること", func(t *testing.T) {
		before := renderer.calls.Load()
		res, err := e.Export(ctx, samplePlan(), FormatMarkdown)
		require.NoError(t, err)
		assert.True(t, res.Cached)
		assert.Equal(t, before, renderer.calls.Load())
	})

	t.Run("シーンのリビジョンが変わると描画し直すこと", func(t *testing.T) {
		before := renderer.calls.Load()
		plan := samplePlan()
		plan.Pages[2].SceneRevision = 2
		res, err := e.Export(ctx, plan, FormatMarkdown)
		require.NoError(t, err)
		assert.False(t, res.Cached)
		assert.Equal(t, before+1, renderer.calls.Load())
	})

	t.Run("未設定の形式はエラー", func(t *testing.T) {
		_, err := e.Export(ctx, samplePlan(), FormatPDF)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestExporter_DistinctPaths(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := NewExporter(dir, nil, NewMarkdownRenderer(dir))
	require.NoError(t, err)

	plan := func(id, title string) domain.LayoutPlan {
		return domain.LayoutPlan{
			CampaignID: id,
			Title:      title,
			Pages:      []domain.PageDescriptor{{Number: 1, Kind: domain.PageCover, Title: title}},
		}
	}

	t.Run("日本語のキャンペーン名が別々のファイルになること", func(t *testing.T) {
		first, err := e.Export(ctx, plan("5f0c2a9e-1111-4a4a-8b8b-000000000001", "竜の巣"), FormatMarkdown)
		require.NoError(t, err)
		second, err := e.Export(ctx, plan("9a7d3c11-2222-4a4a-8b8b-000000000002", "黄金郷"), FormatMarkdown)
		require.NoError(t, err)

		assert.NotEqual(t, first.Path, second.Path)
		assert.Equal(t, "竜の巣_5f0c2a9e_montage.md", filepath.Base(first.Path))

		data, err := os.ReadFile(first.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "# 竜の巣")
	})

	t.Run("同名のキャンペーンでも上書きしないこと", func(t *testing.T) {
		first, err := e.Export(ctx, plan("aaaaaaaa-0000-0000-0000-000000000000", "Lost Mines"), FormatMarkdown)
		require.NoError(t, err)
		second, err := e.Export(ctx, plan("bbbbbbbb-0000-0000-0000-000000000000", "Lost Mines"), FormatMarkdown)
		require.NoError(t, err)
		assert.NotEqual(t, first.Path, second.Path)
		_, err = os.Stat(first.Path)
		assert.NoError(t, err)
	})
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatPDF, "PDF": FormatPDF, "md": FormatMarkdown, "markdown": FormatMarkdown} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
