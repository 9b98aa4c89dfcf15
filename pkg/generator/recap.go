package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-campaign-kit/pkg/adapters"
	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
	"github.com/shouni/go-campaign-kit/pkg/store"
)

// RecapComposer はキャンペーンの全シーンを正規の順序で要約します。
// 結果はキャンペーンに保存され、シーンのレコードは変更しません。
type RecapComposer struct {
	repo    *store.Repository
	text    adapters.TextGenerator
	prompts prompts.PromptBuilder
	locker  *store.Locker
	retry   RetryPolicy
	now     func() time.Time
}

// NewRecapComposer は RecapComposer を生成します。locker が nil の場合は専用のものを作ります。
func NewRecapComposer(repo *store.Repository, text adapters.TextGenerator, pb prompts.PromptBuilder, locker *store.Locker, policy RetryPolicy) (*RecapComposer, error) {
	if repo == nil {
		return nil, fmt.Errorf("Repository は必須です")
	}
	if text == nil {
		return nil, fmt.Errorf("TextGenerator は必須です")
	}
	if pb == nil {
		return nil, fmt.Errorf("PromptBuilder は必須です")
	}
	if locker == nil {
		locker = store.NewLocker()
	}
	if policy.Attempts == 0 {
		policy = DefaultRetryPolicy()
	}
	return &RecapComposer{repo: repo, text: text, prompts: pb, locker: locker, retry: policy, now: time.Now}, nil
}

// Entries は要約に渡すシーン情報を章順・掲載順で返します。
// キャプション付きのシーンが 1 件も無い場合は ErrInsufficientContent です。
func (r *RecapComposer) Entries(ctx context.Context, campaign domain.Campaign) ([]prompts.RecapEntry, error) {
	scenes, err := r.repo.OrderedScenes(ctx, campaign)
	if err != nil {
		return nil, err
	}

	chapterNames := make(map[string]string, len(campaign.Chapters))
	for _, ch := range campaign.Chapters {
		chapterNames[ch.ID] = ch.Name
	}

	entries := make([]prompts.RecapEntry, 0, len(scenes))
	captioned := 0
	for _, s := range scenes {
		if s.HasCaption() {
			captioned++
		}
		entries = append(entries, prompts.RecapEntry{
			Chapter: chapterNames[s.ChapterID],
			Title:   s.Title,
			Prompt:  s.Prompt,
			Caption: strings.TrimSpace(s.CaptionText()),
		})
	}
	if captioned == 0 {
		return nil, fmt.Errorf("キャンペーン %s にキャプション付きのシーンがありません: %w", campaign.ID, domain.ErrInsufficientContent)
	}
	return entries, nil
}

// ComposeRecap は要約を生成し、キャンペーンに保存して返します。
func (r *RecapComposer) ComposeRecap(ctx context.Context, campaignID string) (string, error) {
	campaign, err := r.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	entries, err := r.Entries(ctx, campaign)
	if err != nil {
		return "", err
	}

	userPrompt, err := r.prompts.Build(prompts.ModeRecap, prompts.TemplateData{
		CampaignName: campaign.Name,
		Entries:      entries,
	})
	if err != nil {
		return "", fmt.Errorf("要約プロンプトの構築に失敗しました: %w", err)
	}

	recap, err := WithRetry(ctx, r.retry, "recap", func(ctx context.Context) (string, error) {
		return r.text.Complete(ctx, prompts.RecapSystemContext, userPrompt)
	})
	if err != nil {
		return "", domain.WithOperation(err, OpComposeRecap)
	}
	recap = strings.TrimSpace(recap)
	if recap == "" {
		return "", domain.WithOperation(
			domain.NewProviderError(domain.UnknownProviderError, "text", fmt.Errorf("empty recap")), OpComposeRecap)
	}
	if err := ctx.Err(); err != nil {
		slog.WarnContext(ctx, "キャンセル後に届いた要約を破棄します", "campaign_id", campaignID)
		return "", err
	}

	if err := r.store(context.WithoutCancel(ctx), campaignID, recap); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "要約を保存しました", "campaign_id", campaignID, "scenes", len(entries))
	return recap, nil
}

func (r *RecapComposer) store(ctx context.Context, campaignID, recap string) error {
	unlock := r.locker.Lock(campaignID)
	defer unlock()

	campaign, err := r.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	now := r.now()
	campaign.Recap = recap
	campaign.RecapUpdatedAt = &now
	campaign.UpdatedAt = now
	if err := r.repo.SaveCampaign(ctx, campaign); err != nil {
		return fmt.Errorf("要約の保存に失敗しました: %w", err)
	}
	return nil
}
