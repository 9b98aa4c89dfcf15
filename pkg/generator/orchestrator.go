// Package generator はシーンの挿絵生成、キャプション生成、キャンペーンの要約を扱います。
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/go-campaign-kit/pkg/adapters"
	"github.com/shouni/go-campaign-kit/pkg/asset"
	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/identity"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
	"github.com/shouni/go-campaign-kit/pkg/store"
)

// 失敗した操作を利用者に伝えるための操作名です。
const (
	OpGenerateScene   = "scene generation"
	OpRegenerateScene = "scene regeneration"
	OpCaptionScene    = "caption generation"
	OpComposeRecap    = "recap generation"
)

// DefaultAspectRatio はシーン画像の既定のアスペクト比です。
const DefaultAspectRatio = "1:1"

// Dependencies は Orchestrator が利用する協調オブジェクトです。
type Dependencies struct {
	Repository *store.Repository
	Assets     asset.Store
	Identity   *identity.Builder
	Composer   *prompts.Composer
	Prompts    prompts.PromptBuilder
	Images     adapters.ImageGenerator
	Text       adapters.TextGenerator
	References *adapters.ReferenceLoader // 任意。生成器が参照画像に対応する場合のみ使います
	Locker     *store.Locker
	Retry      RetryPolicy
	// AspectRatio が空の場合は DefaultAspectRatio を使います。
	AspectRatio string
	// Now は現在時刻を返します。nil の場合は time.Now です。
	Now func() time.Time
}

// Orchestrator はシーン生成パイプライン全体を制御します。
type Orchestrator struct {
	repo        *store.Repository
	assets      asset.Store
	identity    *identity.Builder
	composer    *prompts.Composer
	prompts     prompts.PromptBuilder
	images      adapters.ImageGenerator
	text        adapters.TextGenerator
	refs        *adapters.ReferenceLoader
	locker      *store.Locker
	retry       RetryPolicy
	aspectRatio string
	now         func() time.Time
}

// GenerateRequest はシーン生成の入力です。CharacterIDs の順序はプロンプト上の順序になります。
type GenerateRequest struct {
	CampaignID   string
	ChapterID    string
	Title        string
	Prompt       string
	Style        string
	CharacterIDs []string
}

// NewOrchestrator は Orchestrator を生成します。
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Repository == nil:
		return nil, fmt.Errorf("Repository は必須です")
	case deps.Assets == nil:
		return nil, fmt.Errorf("Assets は必須です")
	case deps.Images == nil:
		return nil, fmt.Errorf("ImageGenerator は必須です")
	case deps.Text == nil:
		return nil, fmt.Errorf("TextGenerator は必須です")
	case deps.Prompts == nil:
		return nil, fmt.Errorf("PromptBuilder は必須です")
	}

	o := &Orchestrator{
		repo:        deps.Repository,
		assets:      deps.Assets,
		identity:    deps.Identity,
		composer:    deps.Composer,
		prompts:     deps.Prompts,
		images:      deps.Images,
		text:        deps.Text,
		refs:        deps.References,
		locker:      deps.Locker,
		retry:       deps.Retry,
		aspectRatio: deps.AspectRatio,
		now:         deps.Now,
	}
	if o.identity == nil {
		o.identity = identity.NewBuilder()
	}
	if o.composer == nil {
		o.composer = prompts.NewComposer(prompts.DefaultMaxPromptLength, "")
	}
	if o.locker == nil {
		o.locker = store.NewLocker()
	}
	if o.retry.Attempts == 0 {
		o.retry = DefaultRetryPolicy()
	}
	if o.aspectRatio == "" {
		o.aspectRatio = DefaultAspectRatio
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// GenerateScene は挿絵を生成し、成功した場合にのみシーンを作成します。
// キャプション生成の失敗はシーンを無効にせず、Caption が nil のまま返します。
func (o *Orchestrator) GenerateScene(ctx context.Context, req GenerateRequest) (domain.Scene, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return domain.Scene{}, fmt.Errorf("シーンのプロンプトは必須です: %w", domain.ErrInvalidArgument)
	}
	if domain.HasDuplicateIDs(req.CharacterIDs) {
		return domain.Scene{}, fmt.Errorf("登場キャラクターが重複しています: %w", domain.ErrInvalidArgument)
	}

	campaign, err := o.repo.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return domain.Scene{}, err
	}
	if campaign.Chapter(req.ChapterID) == nil {
		return domain.Scene{}, domain.NewNotFound("chapter", req.ChapterID)
	}
	if err := checkLinked(campaign, req.CharacterIDs); err != nil {
		return domain.Scene{}, err
	}

	chars, err := o.resolveCharacters(ctx, req.CharacterIDs)
	if err != nil {
		return domain.Scene{}, err
	}
	composed := o.composer.Compose(req.Prompt, chars, campaign.EffectiveStyle(req.Style))
	if composed.Truncated {
		slog.WarnContext(ctx, "プロンプトが最大長を超えたため、キャラクター定義を切り詰めました",
			"campaign_id", campaign.ID, "max_length", o.composer.MaxLength())
	}

	img, err := o.illustrate(ctx, composed, chars)
	if err != nil {
		return domain.Scene{}, domain.WithOperation(err, OpGenerateScene)
	}
	if err := ctx.Err(); err != nil {
		slog.WarnContext(ctx, "キャンセル後に届いた生成結果を破棄します", "campaign_id", campaign.ID)
		return domain.Scene{}, err
	}

	scene, err := o.commitNewScene(context.WithoutCancel(ctx), req, composed, img)
	if err != nil {
		return domain.Scene{}, err
	}
	slog.InfoContext(ctx, "シーンを作成しました", "campaign_id", scene.CampaignID, "scene_id", scene.ID)

	return o.captionBestEffort(ctx, scene, chars, campaign.Name), nil
}

// commitNewScene は画像を保存し、シーンと章への参照を書き込みます。途中で失敗した場合は書き込んだものを戻します。
func (o *Orchestrator) commitNewScene(ctx context.Context, req GenerateRequest, composed prompts.ComposedPrompt, img *adapters.ImageResponse) (domain.Scene, error) {
	unlock := o.locker.Lock(req.CampaignID)
	defer unlock()

	// 生成中に章やキャンペーンが変更されている可能性があるため読み直します
	campaign, err := o.repo.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return domain.Scene{}, err
	}
	chapter := campaign.Chapter(req.ChapterID)
	if chapter == nil {
		return domain.Scene{}, domain.NewNotFound("chapter", req.ChapterID)
	}
	if err := checkLinked(campaign, req.CharacterIDs); err != nil {
		return domain.Scene{}, err
	}

	path, err := o.assets.Save(ctx, asset.DefaultImageDir, campaign.ID+"_scene", img.Data, img.MimeType)
	if err != nil {
		return domain.Scene{}, fmt.Errorf("シーン画像の保存に失敗しました: %w", err)
	}

	now := o.now()
	scene := domain.Scene{
		ID:             uuid.NewString(),
		CampaignID:     campaign.ID,
		ChapterID:      chapter.ID,
		Title:          strings.TrimSpace(req.Title),
		Prompt:         req.Prompt,
		Style:          strings.TrimSpace(req.Style),
		CharacterIDs:   append([]string(nil), req.CharacterIDs...),
		ImagePath:      path,
		ComposedPrompt: composed.Text,
		Truncated:      composed.Truncated,
		Seq:            campaign.AllocateSceneSeq(),
		Revision:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.repo.SaveScene(ctx, scene); err != nil {
		o.discardAsset(ctx, path)
		return domain.Scene{}, fmt.Errorf("シーンの保存に失敗しました: %w", err)
	}

	chapter.SceneIDs = append(chapter.SceneIDs, scene.ID)
	campaign.UpdatedAt = now
	if err := o.repo.SaveCampaign(ctx, campaign); err != nil {
		if delErr := o.repo.DeleteScene(ctx, scene.ID); delErr != nil {
			slog.ErrorContext(ctx, "シーンの巻き戻しに失敗しました", "scene_id", scene.ID, "error", delErr)
		}
		o.discardAsset(ctx, path)
		return domain.Scene{}, fmt.Errorf("キャンペーンの更新に失敗しました: %w", err)
	}
	return scene, nil
}

// RegenerateScene は保存済みのプロンプトとキャラクターで挿絵を作り直します。
// 新しい画像の保存が確定するまで古い画像は削除しません。
func (o *Orchestrator) RegenerateScene(ctx context.Context, sceneID string) (domain.Scene, error) {
	scene, err := o.repo.GetScene(ctx, sceneID)
	if err != nil {
		return domain.Scene{}, err
	}
	campaign, err := o.repo.GetCampaign(ctx, scene.CampaignID)
	if err != nil {
		return domain.Scene{}, err
	}
	if err := checkLinked(campaign, scene.CharacterIDs); err != nil {
		return domain.Scene{}, err
	}

	chars, err := o.resolveCharacters(ctx, scene.CharacterIDs)
	if err != nil {
		return domain.Scene{}, err
	}
	composed := o.composer.Compose(scene.Prompt, chars, campaign.EffectiveStyle(scene.Style))

	img, err := o.illustrate(ctx, composed, chars)
	if err != nil {
		return domain.Scene{}, domain.WithOperation(err, OpRegenerateScene)
	}
	if err := ctx.Err(); err != nil {
		slog.WarnContext(ctx, "キャンセル後に届いた生成結果を破棄します", "scene_id", sceneID)
		return domain.Scene{}, err
	}

	updated, err := o.commitRegeneration(context.WithoutCancel(ctx), sceneID, composed, img)
	if err != nil {
		return domain.Scene{}, err
	}
	slog.InfoContext(ctx, "シーンを再生成しました", "scene_id", updated.ID, "revision", updated.Revision)

	return o.captionBestEffort(ctx, updated, chars, campaign.Name), nil
}

func (o *Orchestrator) commitRegeneration(ctx context.Context, sceneID string, composed prompts.ComposedPrompt, img *adapters.ImageResponse) (domain.Scene, error) {
	scene, err := o.repo.GetScene(ctx, sceneID)
	if err != nil {
		return domain.Scene{}, err
	}
	unlock := o.locker.Lock(scene.CampaignID)
	defer unlock()

	// 生成中に削除された場合は新しい画像を保存しません
	scene, err = o.repo.GetScene(ctx, sceneID)
	if err != nil {
		return domain.Scene{}, err
	}

	path, err := o.assets.Save(ctx, asset.DefaultImageDir, scene.CampaignID+"_scene", img.Data, img.MimeType)
	if err != nil {
		return domain.Scene{}, fmt.Errorf("シーン画像の保存に失敗しました: %w", err)
	}

	oldPath := scene.ImagePath
	scene.ImagePath = path
	scene.Caption = nil
	scene.ComposedPrompt = composed.Text
	scene.Truncated = composed.Truncated
	scene.Revision++
	scene.UpdatedAt = o.now()
	if err := o.repo.SaveScene(ctx, scene); err != nil {
		o.discardAsset(ctx, path)
		return domain.Scene{}, fmt.Errorf("シーンの保存に失敗しました: %w", err)
	}

	if oldPath != "" && oldPath != path {
		o.discardAsset(ctx, oldPath)
	}
	return scene, nil
}

// resolveCharacters はキャラクターを呼び出し順に解決し、古いアイデンティティを再構築して保存します。
func (o *Orchestrator) resolveCharacters(ctx context.Context, ids []string) ([]domain.Character, error) {
	chars := make([]domain.Character, 0, len(ids))
	for _, id := range ids {
		c, err := o.repo.GetCharacter(ctx, id)
		if err != nil {
			return nil, err
		}

		built, err := o.identity.Build(ctx, c)
		if err != nil {
			return nil, err
		}
		if built.VisualIdentity != c.VisualIdentity || built.IdentityFingerprint != c.IdentityFingerprint {
			built.UpdatedAt = o.now()
			if err := o.repo.SaveCharacter(ctx, built); err != nil {
				return nil, fmt.Errorf("キャラクター %s のアイデンティティ保存に失敗しました: %w", id, err)
			}
			slog.DebugContext(ctx, "ビジュアルアイデンティティを更新しました", "character_id", id)
		}
		chars = append(chars, built)
	}
	return chars, nil
}

// illustrate は合成済みプロンプトで画像を生成します。一時的なエラーのみ再試行します。
func (o *Orchestrator) illustrate(ctx context.Context, composed prompts.ComposedPrompt, chars []domain.Character) (*adapters.ImageResponse, error) {
	req := adapters.ImageRequest{
		Prompt:         composed.Text,
		NegativePrompt: prompts.SceneNegativePrompt,
		AspectRatio:    o.aspectRatio,
	}
	if len(chars) > 0 {
		seed := chars[0].Seed
		req.Seed = &seed
	}
	if o.refs != nil && adapters.SupportsReferences(o.images) {
		refs, err := o.refs.LoadFor(ctx, chars)
		if err != nil {
			return nil, err
		}
		req.References = refs
	}

	return WithRetry(ctx, o.retry, "image", func(ctx context.Context) (*adapters.ImageResponse, error) {
		return o.images.Generate(ctx, req)
	})
}

func (o *Orchestrator) discardAsset(ctx context.Context, path string) {
	if err := o.assets.Delete(ctx, path); err != nil {
		slog.WarnContext(ctx, "画像アセットの削除に失敗しました", "path", path, "error", err)
	}
}

// checkLinked は全キャラクターがキャンペーンに紐付いていることを確認します。
func checkLinked(campaign domain.Campaign, ids []string) error {
	for _, id := range ids {
		if !campaign.HasCharacter(id) {
			return fmt.Errorf("キャラクター %s はキャンペーン %s に紐付いていません: %w", id, campaign.ID, domain.ErrInvalidArgument)
		}
	}
	return nil
}
