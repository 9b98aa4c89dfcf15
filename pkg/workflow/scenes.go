package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/generator"
)

// GenerateScene はシーンの挿絵を生成して章の末尾に追加します。
func (m *Manager) GenerateScene(ctx context.Context, req generator.GenerateRequest) (domain.Scene, error) {
	return m.scenes.GenerateScene(ctx, req)
}

// RegenerateScene はシーンの挿絵を作り直します。
func (m *Manager) RegenerateScene(ctx context.Context, sceneID string) (domain.Scene, error) {
	return m.scenes.RegenerateScene(ctx, sceneID)
}

// CaptionScene はシーンのキャプションを生成し直します。
func (m *Manager) CaptionScene(ctx context.Context, sceneID string) (domain.Scene, error) {
	return m.scenes.CaptionScene(ctx, sceneID)
}

// GetScene はシーンを取得します。
func (m *Manager) GetScene(ctx context.Context, id string) (domain.Scene, error) {
	return m.repo.GetScene(ctx, id)
}

// DeleteScene はシーンを章から外し、レコードと画像アセットを削除します。
func (m *Manager) DeleteScene(ctx context.Context, id string) error {
	s, err := m.repo.GetScene(ctx, id)
	if err != nil {
		return err
	}

	unlock := m.locker.Lock(s.CampaignID)
	defer unlock()

	c, err := m.repo.GetCampaign(ctx, s.CampaignID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return err
	default:
		if c.RemoveScene(id) {
			c.UpdatedAt = m.now()
			if err := m.repo.SaveCampaign(ctx, c); err != nil {
				return fmt.Errorf("キャンペーンの更新に失敗しました: %w", err)
			}
		}
	}

	// ロック待ちの間に再生成で画像が差し替わっている可能性があるため読み直します
	if latest, err := m.repo.GetScene(ctx, id); err == nil {
		s = latest
	}
	if err := m.repo.DeleteScene(ctx, id); err != nil {
		return err
	}
	if s.ImagePath != "" {
		m.discardAsset(ctx, s.ImagePath)
	}
	slog.InfoContext(ctx, "シーンを削除しました", "scene_id", id, "campaign_id", s.CampaignID)
	return nil
}
