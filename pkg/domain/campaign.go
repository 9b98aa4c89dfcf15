package domain

import (
	"slices"
	"strings"
	"time"
)

// Chapter はキャンペーン内の章です。SceneIDs は Scene への弱参照で、並び順がそのまま掲載順になります。
type Chapter struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	SceneIDs []string `json:"scene_ids"`
}

// Campaign は章・シーン・参加キャラクターをまとめる単位です。
type Campaign struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Style        string    `json:"style,omitempty"` // シーンの既定の画風
	Chapters     []Chapter `json:"chapters"`
	CharacterIDs []string  `json:"character_ids"`

	Recap          string     `json:"recap,omitempty"`
	RecapUpdatedAt *time.Time `json:"recap_updated_at,omitempty"`

	NextSceneSeq int64     `json:"next_scene_seq"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Chapter は ID に一致する章のポインタを返します。見つからない場合は nil です。
func (c *Campaign) Chapter(id string) *Chapter {
	for i := range c.Chapters {
		if c.Chapters[i].ID == id {
			return &c.Chapters[i]
		}
	}
	return nil
}

// HasCharacter はキャラクターがキャンペーンに紐付いているかを返します。
func (c *Campaign) HasCharacter(id string) bool {
	return slices.Contains(c.CharacterIDs, id)
}

// LinkCharacter はキャラクターを紐付けます。既に紐付いていれば false を返します。
func (c *Campaign) LinkCharacter(id string) bool {
	if c.HasCharacter(id) {
		return false
	}
	c.CharacterIDs = append(c.CharacterIDs, id)
	return true
}

// UnlinkCharacter はキャラクターの紐付けを解除します。紐付いていなければ false を返します。
func (c *Campaign) UnlinkCharacter(id string) bool {
	idx := slices.Index(c.CharacterIDs, id)
	if idx < 0 {
		return false
	}
	c.CharacterIDs = slices.Delete(c.CharacterIDs, idx, idx+1)
	return true
}

// AllocateSceneSeq はシーン作成順を表す単調増加の連番を払い出します。
func (c *Campaign) AllocateSceneSeq() int64 {
	c.NextSceneSeq++
	return c.NextSceneSeq
}

// RemoveScene は全ての章からシーン参照を取り除きます。
func (c *Campaign) RemoveScene(sceneID string) bool {
	removed := false
	for i := range c.Chapters {
		ch := &c.Chapters[i]
		if idx := slices.Index(ch.SceneIDs, sceneID); idx >= 0 {
			ch.SceneIDs = slices.Delete(ch.SceneIDs, idx, idx+1)
			removed = true
		}
	}
	return removed
}

// SceneIDs は章順・掲載順に並んだ全シーンIDを返します。
func (c *Campaign) SceneIDs() []string {
	var ids []string
	for _, ch := range c.Chapters {
		ids = append(ids, ch.SceneIDs...)
	}
	return ids
}

// EffectiveStyle はシーン固有の画風が空の場合にキャンペーンの画風を返します。
func (c *Campaign) EffectiveStyle(sceneStyle string) string {
	if s := strings.TrimSpace(sceneStyle); s != "" {
		return s
	}
	return strings.TrimSpace(c.Style)
}
