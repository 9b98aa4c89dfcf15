package workflow

import (
	"context"
	"log/slog"

	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/publisher"
)

// ComposeRecap はキャンペーンの要約を生成して保存します。
func (m *Manager) ComposeRecap(ctx context.Context, campaignID string) (string, error) {
	return m.recap.ComposeRecap(ctx, campaignID)
}

// CompileMontage はキャンペーンの現在の状態からページ構成を組み立てます。保存済みの状態は変更しません。
func (m *Manager) CompileMontage(ctx context.Context, campaignID string, includeRecap bool) (domain.LayoutPlan, error) {
	c, err := m.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.LayoutPlan{}, err
	}
	scenes, err := m.repo.OrderedScenes(ctx, c)
	if err != nil {
		return domain.LayoutPlan{}, err
	}
	chars, err := m.repo.GetCharacters(ctx, c.CharacterIDs)
	if err != nil {
		return domain.LayoutPlan{}, err
	}
	plan, err := m.compiler.Compile(c, scenes, chars, includeRecap)
	if err != nil {
		return domain.LayoutPlan{}, err
	}
	slog.DebugContext(ctx, "ページ構成を組み立てました", "campaign_id", campaignID, "kinds", plan.Kinds())
	return plan, nil
}

// ExportMontage はページ構成を組み立て、指定された形式で書き出します。形式が空の場合は PDF です。
func (m *Manager) ExportMontage(ctx context.Context, req ExportRequest) (publisher.ExportResult, error) {
	format, err := publisher.ParseFormat(req.Format)
	if err != nil {
		return publisher.ExportResult{}, err
	}
	plan, err := m.CompileMontage(ctx, req.CampaignID, req.IncludeRecap)
	if err != nil {
		return publisher.ExportResult{}, err
	}
	res, err := m.exporter.Export(ctx, plan, format)
	if err != nil {
		return publisher.ExportResult{}, err
	}
	slog.InfoContext(ctx, "モンタージュを出力しました",
		"campaign_id", req.CampaignID, "path", res.Path, "format", res.Format, "pages", res.Pages, "cached", res.Cached)
	return res, nil
}
