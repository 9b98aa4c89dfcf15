package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// CreateCampaign はキャンペーンを作成します。
func (m *Manager) CreateCampaign(ctx context.Context, in CampaignInput) (domain.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Campaign{}, fmt.Errorf("%w: キャンペーン名は必須です", domain.ErrInvalidArgument)
	}
	now := m.now()
	c := domain.Campaign{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		Style:        strings.TrimSpace(in.Style),
		Chapters:     []domain.Chapter{},
		CharacterIDs: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.SaveCampaign(ctx, c); err != nil {
		return domain.Campaign{}, err
	}
	slog.InfoContext(ctx, "キャンペーンを作成しました", "campaign_id", c.ID, "name", c.Name)
	return c, nil
}

// UpdateCampaign はキャンペーンの名前・説明・画風を更新します。空のフィールドは変更しません。
func (m *Manager) UpdateCampaign(ctx context.Context, id string, in CampaignInput) (domain.Campaign, error) {
	return m.mutateCampaign(ctx, id, func(c *domain.Campaign) error {
		if name := strings.TrimSpace(in.Name); name != "" {
			c.Name = name
		}
		if desc := strings.TrimSpace(in.Description); desc != "" {
			c.Description = desc
		}
		if style := strings.TrimSpace(in.Style); style != "" {
			c.Style = style
		}
		return nil
	})
}

// AddChapter はキャンペーンの末尾に章を追加します。
func (m *Manager) AddChapter(ctx context.Context, campaignID, name string) (domain.Chapter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Chapter{}, fmt.Errorf("%w: 章の名前は必須です", domain.ErrInvalidArgument)
	}
	ch := domain.Chapter{ID: uuid.NewString(), Name: name, SceneIDs: []string{}}
	_, err := m.mutateCampaign(ctx, campaignID, func(c *domain.Campaign) error {
		c.Chapters = append(c.Chapters, ch)
		return nil
	})
	if err != nil {
		return domain.Chapter{}, err
	}
	return ch, nil
}

// RenameChapter は章の名前を変更します。
func (m *Manager) RenameChapter(ctx context.Context, campaignID, chapterID, name string) (domain.Campaign, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Campaign{}, fmt.Errorf("%w: 章の名前は必須です", domain.ErrInvalidArgument)
	}
	return m.mutateCampaign(ctx, campaignID, func(c *domain.Campaign) error {
		ch := c.Chapter(chapterID)
		if ch == nil {
			return domain.NewNotFound("chapter", chapterID)
		}
		ch.Name = name
		return nil
	})
}

// LinkCharacter はキャラクターをキャンペーンに紐付けます。既に紐付いていれば何もしません。
func (m *Manager) LinkCharacter(ctx context.Context, campaignID, characterID string) (domain.Campaign, error) {
	return m.mutateCampaign(ctx, campaignID, func(c *domain.Campaign) error {
		if _, err := m.repo.GetCharacter(ctx, characterID); err != nil {
			return err
		}
		c.LinkCharacter(characterID)
		return nil
	})
}

// UnlinkCharacter はキャラクターの紐付けを解除します。
// キャンペーン内のシーンに登場している間は DanglingReferenceError を返します。
func (m *Manager) UnlinkCharacter(ctx context.Context, campaignID, characterID string) (domain.Campaign, error) {
	return m.unlink(ctx, campaignID, characterID)
}

// DeleteCampaign はキャンペーンを削除します。シーンが残っている場合、cascade が false なら DanglingReferenceError を返します。
// cascade が true の場合はシーンと画像アセットもまとめて削除します。
func (m *Manager) DeleteCampaign(ctx context.Context, id string, cascade bool) error {
	unlock := m.locker.Lock(id)
	defer unlock()

	if _, err := m.repo.GetCampaign(ctx, id); err != nil {
		return err
	}
	scenes, err := m.repo.ListScenes(ctx, id)
	if err != nil {
		return err
	}
	if len(scenes) > 0 && !cascade {
		ids := make([]string, 0, len(scenes))
		for _, s := range scenes {
			ids = append(ids, s.ID)
		}
		return &domain.DanglingReferenceError{Entity: "campaign", ID: id, ReferencedBy: ids}
	}

	if err := m.repo.DeleteCampaign(ctx, id); err != nil {
		return err
	}

	var errs []error
	for _, s := range scenes {
		if err := m.repo.DeleteScene(ctx, s.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("シーン %s の削除に失敗しました: %w", s.ID, err))
			continue
		}
		if s.ImagePath != "" {
			if err := m.assets.Delete(ctx, s.ImagePath); err != nil {
				errs = append(errs, err)
			}
		}
	}
	slog.InfoContext(ctx, "キャンペーンを削除しました", "campaign_id", id, "scenes", len(scenes))
	return errors.Join(errs...)
}

// GetCampaign はキャンペーンを取得します。
func (m *Manager) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return m.repo.GetCampaign(ctx, id)
}

// ListCampaigns は全キャンペーンを返します。
func (m *Manager) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	return m.repo.ListCampaigns(ctx)
}

// ListScenes はキャンペーンのシーンを章順・掲載順で返します。
func (m *Manager) ListScenes(ctx context.Context, campaignID string) ([]domain.Scene, error) {
	c, err := m.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return m.repo.OrderedScenes(ctx, c)
}

// mutateCampaign はキャンペーンのロックを取った上で再読み込みし、fn の変更を保存します。
func (m *Manager) mutateCampaign(ctx context.Context, id string, fn func(c *domain.Campaign) error) (domain.Campaign, error) {
	unlock := m.locker.Lock(id)
	defer unlock()

	c, err := m.repo.GetCampaign(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if err := fn(&c); err != nil {
		return domain.Campaign{}, err
	}
	c.UpdatedAt = m.now()
	if err := m.repo.SaveCampaign(ctx, c); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// unlink はロック内でシーンの参照を確認してから紐付けを解除します。
func (m *Manager) unlink(ctx context.Context, campaignID, characterID string) (domain.Campaign, error) {
	return m.mutateCampaign(ctx, campaignID, func(c *domain.Campaign) error {
		scenes, err := m.repo.ListScenes(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := danglingScenes(scenes, characterID); err != nil {
			return err
		}
		c.UnlinkCharacter(characterID)
		return nil
	})
}
