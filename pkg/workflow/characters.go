package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/shouni/go-campaign-kit/pkg/asset"
	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/generator"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
)

// CreateCharacter はキャラクターを作成します。説明文がある場合はビジュアルアイデンティティも構築します。
func (m *Manager) CreateCharacter(ctx context.Context, in CharacterInput) (domain.Character, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Character{}, fmt.Errorf("%w: キャラクター名は必須です", domain.ErrInvalidArgument)
	}

	c := domain.NewCharacter(uuid.NewString(), in.Name, in.Role, strings.TrimSpace(in.Description), m.now())
	ref, err := m.importReference(ctx, c.ID, in.ReferenceImage)
	if err != nil {
		return domain.Character{}, err
	}
	c.ReferenceImage = ref

	c, err = m.refreshIdentity(ctx, c)
	if err != nil {
		m.discardReference(ctx, ref)
		return domain.Character{}, err
	}
	if err := m.repo.SaveCharacter(ctx, c); err != nil {
		m.discardReference(ctx, ref)
		return domain.Character{}, err
	}
	slog.InfoContext(ctx, "キャラクターを作成しました", "character_id", c.ID, "name", c.Name)
	return c, nil
}

// UpdateCharacter はキャラクターを部分更新します。説明文か参照画像が変わった場合はアイデンティティを再計算します。
func (m *Manager) UpdateCharacter(ctx context.Context, id string, patch CharacterPatch) (domain.Character, error) {
	c, err := m.repo.GetCharacter(ctx, id)
	if err != nil {
		return domain.Character{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Character{}, fmt.Errorf("%w: キャラクター名は必須です", domain.ErrInvalidArgument)
		}
		c.Name = name
	}
	if patch.Role != nil {
		c.Role = strings.TrimSpace(*patch.Role)
	}
	if patch.Description != nil {
		c.Description = strings.TrimSpace(*patch.Description)
	}

	oldRef := c.ReferenceImage
	newRef := oldRef
	if patch.ReferenceImage != nil && strings.TrimSpace(*patch.ReferenceImage) != oldRef {
		newRef, err = m.importReference(ctx, c.ID, *patch.ReferenceImage)
		if err != nil {
			return domain.Character{}, err
		}
		c.ReferenceImage = newRef
	}

	c, err = m.refreshIdentity(ctx, c)
	if err != nil {
		if newRef != oldRef {
			m.discardReference(ctx, newRef)
		}
		return domain.Character{}, err
	}
	c.UpdatedAt = m.now()
	if err := m.repo.SaveCharacter(ctx, c); err != nil {
		if newRef != oldRef {
			m.discardReference(ctx, newRef)
		}
		return domain.Character{}, err
	}
	if newRef != oldRef {
		m.discardReference(ctx, oldRef)
	}
	return c, nil
}

// ExpandCharacterDescription はテキスト生成で説明文を書き直し、アイデンティティを再構築して保存します。
func (m *Manager) ExpandCharacterDescription(ctx context.Context, id, hint string) (domain.Character, error) {
	if m.text == nil || m.prompts == nil {
		return domain.Character{}, fmt.Errorf("テキスト生成が設定されていません")
	}
	c, err := m.repo.GetCharacter(ctx, id)
	if err != nil {
		return domain.Character{}, err
	}
	if c.Description == "" && strings.TrimSpace(hint) == "" {
		return domain.Character{}, fmt.Errorf("%w: 説明文かヒントのどちらかが必要です", domain.ErrInvalidArgument)
	}

	userPrompt, err := m.prompts.Build(prompts.ModeExpand, prompts.TemplateData{
		Name:        c.Name,
		Role:        c.Role,
		Description: c.Description,
		Hint:        strings.TrimSpace(hint),
	})
	if err != nil {
		return domain.Character{}, err
	}

	expanded, err := generator.WithRetry(ctx, m.retry, OpExpandDescription, func(ctx context.Context) (string, error) {
		return m.text.Complete(ctx, prompts.ExpandSystemContext, userPrompt)
	})
	if err != nil {
		return domain.Character{}, domain.WithOperation(err, OpExpandDescription)
	}
	expanded = strings.TrimSpace(expanded)
	if expanded == "" {
		return domain.Character{}, fmt.Errorf("説明文の拡張結果が空です")
	}

	desc := expanded
	return m.UpdateCharacter(ctx, id, CharacterPatch{Description: &desc})
}

// DeleteCharacter はキャラクターを削除します。シーンから参照されている場合は DanglingReferenceError を返します。
// 参照が無ければ全キャンペーンから紐付けを外した上でレコードと参照画像を削除します。
// 紐付いた全キャンペーンのロックを取って先に全件を検証し、書き込みの途中で失敗した場合は元に戻します。
func (m *Manager) DeleteCharacter(ctx context.Context, id string) error {
	c, err := m.repo.GetCharacter(ctx, id)
	if err != nil {
		return err
	}

	scenes, err := m.repo.ListAllScenes(ctx)
	if err != nil {
		return err
	}
	if err := danglingScenes(scenes, id); err != nil {
		return err
	}

	campaigns, err := m.repo.ListCampaigns(ctx)
	if err != nil {
		return err
	}
	var linked []string
	for _, cp := range campaigns {
		if cp.HasCharacter(id) {
			linked = append(linked, cp.ID)
		}
	}

	unlock := m.locker.LockAll(linked...)
	defer unlock()

	originals := make([]domain.Campaign, 0, len(linked))
	for _, campaignID := range linked {
		cp, err := m.repo.GetCampaign(ctx, campaignID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !cp.HasCharacter(id) {
			continue
		}
		scenes, err := m.repo.ListScenes(ctx, cp.ID)
		if err != nil {
			return err
		}
		if err := danglingScenes(scenes, id); err != nil {
			return err
		}
		originals = append(originals, cp)
	}

	written := make([]domain.Campaign, 0, len(originals))
	for _, orig := range originals {
		cp := orig
		cp.CharacterIDs = slices.Clone(orig.CharacterIDs)
		cp.UnlinkCharacter(id)
		cp.UpdatedAt = m.now()
		if err := m.repo.SaveCampaign(ctx, cp); err != nil {
			return errors.Join(fmt.Errorf("キャンペーン %s の紐付け解除に失敗しました: %w", cp.ID, err), m.restoreCampaigns(ctx, written))
		}
		written = append(written, orig)
	}

	if err := m.repo.DeleteCharacter(ctx, id); err != nil {
		return errors.Join(err, m.restoreCampaigns(ctx, written))
	}
	m.discardReference(ctx, c.ReferenceImage)
	slog.InfoContext(ctx, "キャラクターを削除しました", "character_id", id, "unlinked_campaigns", len(written))
	return nil
}

// restoreCampaigns は書き込み済みのキャンペーンを変更前の状態に戻します。
func (m *Manager) restoreCampaigns(ctx context.Context, originals []domain.Campaign) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, orig := range originals {
		if err := m.repo.SaveCampaign(ctx, orig); err != nil {
			errs = append(errs, fmt.Errorf("キャンペーン %s を元に戻せませんでした: %w", orig.ID, err))
		}
	}
	return errors.Join(errs...)
}

// danglingScenes はキャラクターが登場するシーンがあれば DanglingReferenceError を返します。
func danglingScenes(scenes []domain.Scene, characterID string) error {
	var referencedBy []string
	for _, s := range scenes {
		if s.Involves(characterID) {
			referencedBy = append(referencedBy, s.ID)
		}
	}
	if len(referencedBy) > 0 {
		return &domain.DanglingReferenceError{Entity: "character", ID: characterID, ReferencedBy: referencedBy}
	}
	return nil
}

// GetCharacter はキャラクターを取得します。
func (m *Manager) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	return m.repo.GetCharacter(ctx, id)
}

// ListCharacters は全キャラクターを返します。
func (m *Manager) ListCharacters(ctx context.Context) ([]domain.Character, error) {
	return m.repo.ListCharacters(ctx)
}

// refreshIdentity は説明文が空ならアイデンティティを消去し、そうでなければ再構築します。
func (m *Manager) refreshIdentity(ctx context.Context, c domain.Character) (domain.Character, error) {
	if c.Description == "" {
		c.VisualIdentity = ""
		c.IdentityFingerprint = ""
		return c, nil
	}
	built, err := m.identity.Build(ctx, c)
	if err != nil {
		return c, fmt.Errorf("キャラクター %s のアイデンティティ構築に失敗しました: %w", c.ID, err)
	}
	return built, nil
}

// importReference は参照画像をアセットとして取り込みます。URL はそのまま保持します。
func (m *Manager) importReference(ctx context.Context, characterID, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" || asset.IsRemote(src) {
		return src, nil
	}
	path, err := m.assets.Import(ctx, asset.DefaultReferenceDir, characterID, src)
	if err != nil {
		return "", fmt.Errorf("%w: 参照画像を取り込めません: %v", domain.ErrInvalidArgument, err)
	}
	return path, nil
}

func (m *Manager) discardReference(ctx context.Context, ref string) {
	if ref == "" || asset.IsRemote(ref) {
		return
	}
	m.discardAsset(ctx, ref)
}
