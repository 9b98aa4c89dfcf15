package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/shouni/go-campaign-kit/pkg/asset"
	"github.com/shouni/go-campaign-kit/pkg/domain"
)

const (
	defaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = 1 * time.Hour
)

// ExportResult は出力された文書の情報です。
type ExportResult struct {
	Path   string
	Format Format
	Pages  int
	Bytes  int
	Cached bool // 同じプランの描画結果を再利用した場合に true
}

// Exporter は LayoutPlan を描画してファイルに書き出します。
// 描画結果はプランのフィンガープリントをキーにキャッシュするため、シーンの再生成やキャンペーンの変更後は必ず描画し直されます。
type Exporter struct {
	renderers map[Format]DocumentRenderer
	outputDir string
	cache     *cache.Cache
}

// NewExporter は Exporter を生成します。c が nil の場合は新しいキャッシュを作ります。
func NewExporter(outputDir string, c *cache.Cache, renderers ...DocumentRenderer) (*Exporter, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("出力ディレクトリは必須です")
	}
	if len(renderers) == 0 {
		return nil, fmt.Errorf("DocumentRenderer は必須です")
	}
	if c == nil {
		c = cache.New(defaultCacheExpiration, cacheCleanupInterval)
	}
	m := make(map[Format]DocumentRenderer, len(renderers))
	for _, r := range renderers {
		m[r.Format()] = r
	}
	return &Exporter{renderers: m, outputDir: outputDir, cache: c}, nil
}

// Render はプランを描画します。同じプランの描画結果がキャッシュにあればそれを返します。
func (e *Exporter) Render(ctx context.Context, plan domain.LayoutPlan, format Format) ([]byte, bool, error) {
	r, ok := e.renderers[format]
	if !ok {
		return nil, false, fmt.Errorf("出力形式 %q のレンダラーが設定されていません: %w", format, domain.ErrInvalidArgument)
	}

	fp, err := plan.Fingerprint()
	if err != nil {
		return nil, false, fmt.Errorf("プランのフィンガープリント計算に失敗しました: %w", err)
	}
	key := string(format) + ":" + fp
	if cached, ok := e.cache.Get(key); ok {
		if data, ok := cached.([]byte); ok {
			return data, true, nil
		}
	}

	data, err := r.Render(ctx, plan)
	if err != nil {
		return nil, false, err
	}
	e.cache.Set(key, data, cache.DefaultExpiration)
	return data, false, nil
}

// Export はプランを描画し、<outputDir>/<campaign>_<id>_montage<ext> に書き出します。
func (e *Exporter) Export(ctx context.Context, plan domain.LayoutPlan, format Format) (ExportResult, error) {
	data, cached, err := e.Render(ctx, plan, format)
	if err != nil {
		return ExportResult{}, err
	}

	outPath, err := asset.ResolveOutputPath(e.outputDir, montageFileName(plan, format))
	if err != nil {
		return ExportResult{}, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	if err := asset.WriteFileAtomic(outPath, data, 0o644); err != nil {
		return ExportResult{}, fmt.Errorf("文書の書き込みに失敗しました %s: %w", outPath, err)
	}

	slog.InfoContext(ctx, "モンタージュを書き出しました",
		"campaign_id", plan.CampaignID, "path", outPath, "format", format, "pages", len(plan.Pages), "cached", cached)
	return ExportResult{
		Path:   outPath,
		Format: format,
		Pages:  len(plan.Pages),
		Bytes:  len(data),
		Cached: cached,
	}, nil
}

// montageFileName はキャンペーン名と ID の先頭から出力ファイル名を決めます。
// 同名のキャンペーンでも ID が異なれば別のファイルになります。
func montageFileName(plan domain.LayoutPlan, format Format) string {
	name := asset.SafeName(plan.Title, "campaign")
	if id := asset.ShortID(plan.CampaignID); id != "" {
		name += "_" + id
	}
	return name + "_montage" + format.Extension()
}
