package publisher

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

const (
	fontFamily = "Helvetica"
	// captionReserve はシーンページで画像の下に確保する高さ (mm) です。
	captionReserve = 45.0
	// footerReserve はページ番号のために下端から空けておく高さ (mm) です。
	footerReserve = 18.0
	// lineHeightRatio はフォントサイズ (pt) に対する行の高さ (mm) の比です。
	lineHeightRatio = 0.5
	minFontSize     = 7.0
	ellipsis        = "..."
)

var disableConfigDir sync.Once

// documentDate は出力を決定論的にするため、作成日時として埋め込む固定値です。
var documentDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// PDFRenderer は fpdf で LayoutPlan を PDF に描画し、pdfcpu で検証します。
type PDFRenderer struct {
	assets   AssetReader
	pageSize string
}

// NewPDFRenderer は PDFRenderer を生成します。pageSize が空の場合は Letter です。
func NewPDFRenderer(assets AssetReader, pageSize string) (*PDFRenderer, error) {
	if assets == nil {
		return nil, fmt.Errorf("AssetReader は必須です")
	}
	if pageSize == "" {
		pageSize = "Letter"
	}
	// pdfcpu がユーザー設定ディレクトリに設定ファイルを書き出さないようにします
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFRenderer{assets: assets, pageSize: pageSize}, nil
}

func (r *PDFRenderer) Format() Format { return FormatPDF }

// Render は 1 ページ記述子につき 1 ページを描画します。
func (r *PDFRenderer) Render(ctx context.Context, plan domain.LayoutPlan) ([]byte, error) {
	pdf := fpdf.New("P", "mm", r.pageSize, "")
	pdf.SetTitle(plan.Title, true)
	pdf.SetCreator("go-campaign-kit", true)
	pdf.SetCreationDate(documentDate)
	pdf.SetModificationDate(documentDate)
	pdf.SetCatalogSort(true)
	pdf.SetAutoPageBreak(false, 0)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	for _, page := range plan.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf.AddPage()
		pdf.SetTextColor(0, 0, 0)

		switch page.Kind {
		case domain.PageCover:
			r.drawCover(pdf, tr, page)
		case domain.PageChapterTitle:
			r.drawChapter(pdf, tr, page)
		case domain.PageScene:
			r.drawScene(ctx, pdf, tr, page)
		case domain.PageRecap:
			r.drawRecap(pdf, tr, page)
		}
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("ページ %d の描画に失敗しました: %w", page.Number, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDFの出力に失敗しました: %w", err)
	}
	if err := verify(buf.Bytes(), len(plan.Pages)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) drawCover(pdf *fpdf.Fpdf, tr func(string) string, page domain.PageDescriptor) {
	_, pageH := pdf.GetPageSize()
	pdf.SetY(pageH / 3)
	pdf.SetFont(fontFamily, "B", 28)
	pdf.MultiCell(0, 12, tr(page.Title), "", "C", false)

	if page.Body != "" {
		pageW, _ := pdf.GetPageSize()
		left, _, right, _ := pdf.GetMargins()
		rosterH := 0.0
		if len(page.Roster) > 0 {
			rosterH = 18 + 7*float64(len(page.Roster))
		}
		pdf.Ln(4)
		pdf.SetFont(fontFamily, "", 13)
		if text, lh := fitText(pdf, []string{tr(page.Body)}, pageW-left-right, pageH-footerReserve-pdf.GetY()-rosterH, 13); text != "" {
			pdf.MultiCell(0, lh, text, "", "C", false)
		}
	}
	if len(page.Roster) > 0 {
		pdf.Ln(10)
		pdf.SetFont(fontFamily, "B", 14)
		pdf.CellFormat(0, 8, "Characters", "", 1, "C", false, 0, "")
		pdf.SetFont(fontFamily, "", 12)
		for _, e := range page.Roster {
			line := e.Name
			if e.Role != "" {
				line += " - " + e.Role
			}
			pdf.CellFormat(0, 7, tr(line), "", 1, "C", false, 0, "")
		}
	}
}

func (r *PDFRenderer) drawChapter(pdf *fpdf.Fpdf, tr func(string) string, page domain.PageDescriptor) {
	_, pageH := pdf.GetPageSize()
	pdf.SetY(pageH/2 - 20)
	pdf.SetFont(fontFamily, "", 14)
	pdf.SetTextColor(96, 96, 96)
	pdf.CellFormat(0, 10, tr(page.Body), "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(fontFamily, "B", 24)
	pdf.MultiCell(0, 12, tr(page.Title), "", "C", false)
}

func (r *PDFRenderer) drawScene(ctx context.Context, pdf *fpdf.Fpdf, tr func(string) string, page domain.PageDescriptor) {
	pageW, pageH := pdf.GetPageSize()
	left, top, right, bottom := pdf.GetMargins()

	pdf.SetY(top)
	pdf.SetFont(fontFamily, "B", 16)
	pdf.MultiCell(0, 8, tr(page.Title), "", "L", false)
	pdf.Ln(2)

	maxW := pageW - left - right
	maxH := pageH - pdf.GetY() - bottom - captionReserve
	y := pdf.GetY()
	drawnH := r.drawImage(ctx, pdf, page, left, y, maxW, maxH)
	pdf.SetY(y + drawnH + 4)

	limit := pageH - footerReserve
	bodyReserve := 0.0
	if page.Body != "" {
		bodyReserve = 12
	}

	pdf.SetFont(fontFamily, "I", 12)
	if page.CaptionMissing {
		pdf.SetTextColor(128, 128, 128)
	}
	if text, lh := fitText(pdf, []string{tr(page.Caption)}, maxW, limit-pdf.GetY()-bodyReserve, 12); text != "" {
		pdf.MultiCell(0, lh, text, "", "C", false)
	}
	pdf.SetTextColor(0, 0, 0)

	if page.Body != "" {
		pdf.Ln(2)
		pdf.SetFont(fontFamily, "", 10)
		if text, lh := fitText(pdf, []string{tr(page.Body)}, maxW, limit-pdf.GetY(), 10); text != "" {
			pdf.MultiCell(0, lh, text, "", "C", false)
		}
	}
}

// drawImage は画像を枠内に収まるよう縦横比を保って中央に配置し、描画した高さを返します。
// 読めない画像は枠とメッセージで代替します。
func (r *PDFRenderer) drawImage(ctx context.Context, pdf *fpdf.Fpdf, page domain.PageDescriptor, x, y, maxW, maxH float64) float64 {
	data, imgType, cfg, err := r.loadImage(ctx, page.ImagePath)
	if err != nil {
		slog.WarnContext(ctx, "画像を描画できないため代替表示にします", "scene_id", page.SceneID, "path", page.ImagePath, "error", err)
		h := maxH / 2
		pdf.SetDrawColor(160, 160, 160)
		pdf.Rect(x, y, maxW, h, "D")
		pdf.SetXY(x, y+h/2-4)
		pdf.SetFont(fontFamily, "", 11)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(maxW, 8, "image unavailable", "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		return h
	}

	w, h := fit(float64(cfg.Width), float64(cfg.Height), maxW, maxH)
	name := fmt.Sprintf("scene-%s-r%d", page.SceneID, page.SceneRevision)
	opts := fpdf.ImageOptions{ImageType: imgType, ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	pdf.ImageOptions(name, x+(maxW-w)/2, y, w, h, false, opts, 0, "")
	return h
}

func (r *PDFRenderer) loadImage(ctx context.Context, path string) ([]byte, string, image.Config, error) {
	if path == "" {
		return nil, "", image.Config{}, fmt.Errorf("画像パスが空です")
	}
	data, err := r.assets.Read(ctx, path)
	if err != nil {
		return nil, "", image.Config{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", image.Config{}, fmt.Errorf("画像の解析に失敗しました: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, "", image.Config{}, fmt.Errorf("画像のサイズが不正です")
	}
	switch format {
	case "png":
		return data, "PNG", cfg, nil
	case "jpeg":
		return data, "JPG", cfg, nil
	case "gif":
		return data, "GIF", cfg, nil
	default:
		return nil, "", image.Config{}, fmt.Errorf("PDFに埋め込めない画像形式です: %s", format)
	}
}

func (r *PDFRenderer) drawRecap(pdf *fpdf.Fpdf, tr func(string) string, page domain.PageDescriptor) {
	pageW, pageH := pdf.GetPageSize()
	left, top, right, _ := pdf.GetMargins()
	pdf.SetY(top + 10)
	pdf.SetFont(fontFamily, "B", 20)
	pdf.CellFormat(0, 12, tr(page.Title), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	var paragraphs []string
	for _, para := range strings.Split(page.Body, "\n") {
		if para = strings.TrimSpace(para); para != "" {
			paragraphs = append(paragraphs, tr(para))
		}
	}
	pdf.SetFont(fontFamily, "", 12)
	if text, lh := fitText(pdf, paragraphs, pageW-left-right, pageH-footerReserve-pdf.GetY(), 12); text != "" {
		pdf.MultiCell(0, lh, text, "", "L", false)
	}
}

// fitText は段落を幅 w で折り返し、高さ maxH に収まる文字列と行の高さを返します。
// 収まらない場合はフォントを minFontSize まで縮め、それでも溢れる分は省略記号で打ち切ります。
// 段落は変換済み (cp1252) のバイト列として扱います。
func fitText(pdf *fpdf.Fpdf, paragraphs []string, w, maxH, size float64) (string, float64) {
	for {
		pdf.SetFontSize(size)
		lh := size * lineHeightRatio
		var lines []string
		for i, para := range paragraphs {
			if i > 0 {
				lines = append(lines, "")
			}
			for _, line := range pdf.SplitLines([]byte(para), w) {
				lines = append(lines, string(line))
			}
		}
		if float64(len(lines))*lh <= maxH {
			return strings.Join(lines, "\n"), lh
		}
		if size > minFontSize {
			size = max(size-1, minFontSize)
			continue
		}

		n := int(maxH / lh)
		if n <= 0 {
			return "", lh
		}
		lines = lines[:n]
		last := strings.TrimRight(lines[n-1], " ")
		for last != "" && pdf.GetStringWidth(last+ellipsis) > w-2*pdf.GetCellMargin() {
			last = strings.TrimRight(last[:len(last)-1], " ")
		}
		lines[n-1] = last + ellipsis
		return strings.Join(lines, "\n"), lh
	}
}

// fit は縦横比を保ったまま maxW x maxH に収まる大きさを返します。
func fit(w, h, maxW, maxH float64) (float64, float64) {
	scale := maxW / w
	if h*scale > maxH {
		scale = maxH / h
	}
	return w * scale, h * scale
}

// verify は出力した PDF を pdfcpu で検証し、ページ数が一致することを確認します。
func verify(data []byte, wantPages int) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("生成したPDFの検証に失敗しました: %w", err)
	}
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return fmt.Errorf("生成したPDFのページ数取得に失敗しました: %w", err)
	}
	if n != wantPages {
		return fmt.Errorf("PDFのページ数が一致しません: got %d, want %d", n, wantPages)
	}
	return nil
}
