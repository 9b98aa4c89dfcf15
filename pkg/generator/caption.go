package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
)

// CaptionScene は挿絵済みのシーンにキャプションを生成して保存します。既存のキャプションは置き換えます。
func (o *Orchestrator) CaptionScene(ctx context.Context, sceneID string) (domain.Scene, error) {
	scene, err := o.repo.GetScene(ctx, sceneID)
	if err != nil {
		return domain.Scene{}, err
	}
	if scene.ImagePath == "" {
		return domain.Scene{}, fmt.Errorf("シーン %s にはまだ画像がありません: %w", sceneID, domain.ErrInvalidArgument)
	}
	campaign, err := o.repo.GetCampaign(ctx, scene.CampaignID)
	if err != nil {
		return domain.Scene{}, err
	}
	chars, missing := o.charactersFor(ctx, scene)
	if len(missing) > 0 {
		slog.WarnContext(ctx, "一部のキャラクターが見つからないため、名前なしでキャプションを生成します",
			"scene_id", sceneID, "missing", missing)
	}

	caption, err := o.caption(ctx, scene, chars, campaign.Name)
	if err != nil {
		return domain.Scene{}, domain.WithOperation(err, OpCaptionScene)
	}
	if err := ctx.Err(); err != nil {
		slog.WarnContext(ctx, "キャンセル後に届いたキャプションを破棄します", "scene_id", sceneID)
		return domain.Scene{}, err
	}
	return o.storeCaption(context.WithoutCancel(ctx), scene.ID, scene.Revision, caption)
}

// captionBestEffort はキャプションを生成して保存します。失敗してもシーンは有効なまま返します。
func (o *Orchestrator) captionBestEffort(ctx context.Context, scene domain.Scene, chars []domain.Character, campaignName string) domain.Scene {
	caption, err := o.caption(ctx, scene, chars, campaignName)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		var updated domain.Scene
		updated, err = o.storeCaption(context.WithoutCancel(ctx), scene.ID, scene.Revision, caption)
		if err == nil {
			return updated
		}
	}
	slog.WarnContext(ctx, "キャプション生成に失敗しました。シーンはキャプションなしで保存されています",
		"scene_id", scene.ID, "error", err)
	return scene
}

func (o *Orchestrator) caption(ctx context.Context, scene domain.Scene, chars []domain.Character, campaignName string) (string, error) {
	names := make([]string, 0, len(chars))
	for _, c := range chars {
		names = append(names, c.Name)
	}
	userPrompt, err := o.prompts.Build(prompts.ModeCaption, prompts.TemplateData{
		CampaignName: campaignName,
		Title:        scene.Title,
		Prompt:       scene.Prompt,
		Characters:   names,
	})
	if err != nil {
		return "", fmt.Errorf("キャプションプロンプトの構築に失敗しました: %w", err)
	}

	text, err := WithRetry(ctx, o.retry, "caption", func(ctx context.Context) (string, error) {
		return o.text.Complete(ctx, prompts.CaptionSystemContext, userPrompt)
	})
	if err != nil {
		return "", err
	}
	return cleanCaption(text), nil
}

// storeCaption はリビジョンが変わっていない場合にのみキャプションを書き込みます。
func (o *Orchestrator) storeCaption(ctx context.Context, sceneID string, revision int, caption string) (domain.Scene, error) {
	scene, err := o.repo.GetScene(ctx, sceneID)
	if err != nil {
		return domain.Scene{}, err
	}
	unlock := o.locker.Lock(scene.CampaignID)
	defer unlock()

	scene, err = o.repo.GetScene(ctx, sceneID)
	if err != nil {
		return domain.Scene{}, err
	}
	if scene.Revision != revision {
		return domain.Scene{}, fmt.Errorf("シーン %s はキャプション生成中に再生成されました: %w", sceneID, domain.ErrInvalidArgument)
	}

	scene.Caption = &caption
	scene.UpdatedAt = o.now()
	if err := o.repo.SaveScene(ctx, scene); err != nil {
		return domain.Scene{}, fmt.Errorf("キャプションの保存に失敗しました: %w", err)
	}
	return scene, nil
}

func (o *Orchestrator) charactersFor(ctx context.Context, scene domain.Scene) ([]domain.Character, []string) {
	cm, err := o.repo.GetCharacters(ctx, scene.CharacterIDs)
	if err != nil {
		return nil, scene.CharacterIDs
	}
	return cm.Ordered(scene.CharacterIDs)
}

// cleanCaption は 1 行に整え、モデルが付けがちな引用符を取り除きます。
func cleanCaption(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return strings.Trim(text, "\"'“”「」")
}
