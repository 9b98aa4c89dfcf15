package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// Repository は Backend の上に型付きのアクセスを提供します。
type Repository struct {
	backend Backend
}

// NewRepository は Repository を生成します。
func NewRepository(backend Backend) (*Repository, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend は必須です")
	}
	return &Repository{backend: backend}, nil
}

func load[T any](ctx context.Context, b Backend, kind Kind, id string) (T, error) {
	var v T
	data, err := b.Load(ctx, kind, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%s %q のデコードに失敗しました: %w", kind, id, err)
	}
	return v, nil
}

func save(ctx context.Context, b Backend, kind Kind, id, parentID string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%s %q のエンコードに失敗しました: %w", kind, id, err)
	}
	return b.Save(ctx, kind, id, parentID, data)
}

func list[T any](ctx context.Context, b Backend, kind Kind, parentID string) ([]T, error) {
	records, err := b.ListByParent(ctx, kind, parentID)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, data := range records {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%s のデコードに失敗しました: %w", kind, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetCharacter はキャラクターを取得します。
func (r *Repository) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	return load[domain.Character](ctx, r.backend, KindCharacter, id)
}

// SaveCharacter はキャラクターを保存します。
func (r *Repository) SaveCharacter(ctx context.Context, c domain.Character) error {
	return save(ctx, r.backend, KindCharacter, c.ID, "", c)
}

// DeleteCharacter はキャラクターを削除します。参照チェックは呼び出し側の責務です。
func (r *Repository) DeleteCharacter(ctx context.Context, id string) error {
	return r.backend.Delete(ctx, KindCharacter, id)
}

// ListCharacters は作成日時、ID の順に並べた全キャラクターを返します。
func (r *Repository) ListCharacters(ctx context.Context) ([]domain.Character, error) {
	chars, err := list[domain.Character](ctx, r.backend, KindCharacter, "")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chars, func(i, j int) bool {
		if !chars[i].CreatedAt.Equal(chars[j].CreatedAt) {
			return chars[i].CreatedAt.Before(chars[j].CreatedAt)
		}
		return chars[i].ID < chars[j].ID
	})
	return chars, nil
}

// GetCharacters は ID をキーにしたマップで複数のキャラクターを取得します。1件でも欠けていればエラーです。
func (r *Repository) GetCharacters(ctx context.Context, ids []string) (domain.CharactersMap, error) {
	chars := make([]domain.Character, 0, len(ids))
	for _, id := range ids {
		c, err := r.GetCharacter(ctx, id)
		if err != nil {
			return nil, err
		}
		chars = append(chars, c)
	}
	return domain.BuildCharactersMap(chars), nil
}

// GetCampaign はキャンペーンを取得します。
func (r *Repository) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return load[domain.Campaign](ctx, r.backend, KindCampaign, id)
}

// SaveCampaign はキャンペーンを保存します。
func (r *Repository) SaveCampaign(ctx context.Context, c domain.Campaign) error {
	return save(ctx, r.backend, KindCampaign, c.ID, "", c)
}

// DeleteCampaign はキャンペーンのレコードのみを削除します。
func (r *Repository) DeleteCampaign(ctx context.Context, id string) error {
	return r.backend.Delete(ctx, KindCampaign, id)
}

// ListCampaigns は作成日時、ID の順に並べた全キャンペーンを返します。
func (r *Repository) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	campaigns, err := list[domain.Campaign](ctx, r.backend, KindCampaign, "")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(campaigns, func(i, j int) bool {
		if !campaigns[i].CreatedAt.Equal(campaigns[j].CreatedAt) {
			return campaigns[i].CreatedAt.Before(campaigns[j].CreatedAt)
		}
		return campaigns[i].ID < campaigns[j].ID
	})
	return campaigns, nil
}

// GetScene はシーンを取得します。
func (r *Repository) GetScene(ctx context.Context, id string) (domain.Scene, error) {
	return load[domain.Scene](ctx, r.backend, KindScene, id)
}

// SaveScene はシーンを所属キャンペーンの子として保存します。
func (r *Repository) SaveScene(ctx context.Context, s domain.Scene) error {
	return save(ctx, r.backend, KindScene, s.ID, s.CampaignID, s)
}

// DeleteScene はシーンのレコードを削除します。
func (r *Repository) DeleteScene(ctx context.Context, id string) error {
	return r.backend.Delete(ctx, KindScene, id)
}

// ListScenes はキャンペーンに属するシーンを Seq 順で返します。
// 章の掲載順が必要な場合は OrderedScenes を使用してください。
func (r *Repository) ListScenes(ctx context.Context, campaignID string) ([]domain.Scene, error) {
	scenes, err := list[domain.Scene](ctx, r.backend, KindScene, campaignID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(scenes, func(i, j int) bool {
		if scenes[i].Seq != scenes[j].Seq {
			return scenes[i].Seq < scenes[j].Seq
		}
		return scenes[i].ID < scenes[j].ID
	})
	return scenes, nil
}

// ListAllScenes は全キャンペーンのシーンを返します。
func (r *Repository) ListAllScenes(ctx context.Context) ([]domain.Scene, error) {
	return list[domain.Scene](ctx, r.backend, KindScene, "")
}

// OrderedScenes は章順、章内の掲載順でシーンを解決して返します。
// 章が参照するシーンが存在しない、または別キャンペーンに属する場合はエラーです。
func (r *Repository) OrderedScenes(ctx context.Context, campaign domain.Campaign) ([]domain.Scene, error) {
	var scenes []domain.Scene
	for _, ch := range campaign.Chapters {
		for _, id := range ch.SceneIDs {
			s, err := r.GetScene(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("章 %q のシーン解決に失敗しました: %w", ch.Name, err)
			}
			if s.CampaignID != campaign.ID {
				return nil, fmt.Errorf("シーン %q はキャンペーン %q に属していません: %w", id, campaign.ID, domain.ErrInvalidArgument)
			}
			scenes = append(scenes, s)
		}
	}
	return scenes, nil
}
