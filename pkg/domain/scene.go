package domain

import (
	"strings"
	"time"
)

// SceneState はシーンのライフサイクル上の状態です。
type SceneState string

const (
	ScenePending     SceneState = "pending"
	SceneIllustrated SceneState = "illustrated"
	SceneCaptioned   SceneState = "captioned"
)

// Scene はチャプター内の1枚の挿絵とキャプションを表します。
type Scene struct {
	ID           string   `json:"id"`
	CampaignID   string   `json:"campaign_id"`
	ChapterID    string   `json:"chapter_id"`
	Title        string   `json:"title,omitempty"`
	Prompt       string   `json:"prompt"`
	Style        string   `json:"style,omitempty"`
	CharacterIDs []string `json:"involved_character_ids"` // 順序はプロンプト上の意味を持ちます

	ImagePath      string  `json:"image_path,omitempty"`
	Caption        *string `json:"caption"`
	ComposedPrompt string  `json:"composed_prompt,omitempty"`
	Truncated      bool    `json:"truncated"`

	Seq       int64     `json:"seq"`
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State は ImagePath と Caption から現在の状態を判定します。
func (s Scene) State() SceneState {
	switch {
	case s.ImagePath == "":
		return ScenePending
	case s.Caption == nil:
		return SceneIllustrated
	default:
		return SceneCaptioned
	}
}

// HasCaption は空でないキャプションが設定されているかを返します。
func (s Scene) HasCaption() bool {
	return s.Caption != nil && strings.TrimSpace(*s.Caption) != ""
}

// CaptionText はキャプションを返します。未生成の場合は空文字です。
func (s Scene) CaptionText() string {
	if s.Caption == nil {
		return ""
	}
	return *s.Caption
}

// Involves はシーンにキャラクターが登場するかを返します。
func (s Scene) Involves(characterID string) bool {
	for _, id := range s.CharacterIDs {
		if id == characterID {
			return true
		}
	}
	return false
}

// DisplayTitle はタイトルが無い場合にプロンプトの先頭を代わりに返します。
func (s Scene) DisplayTitle() string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	p := []rune(strings.TrimSpace(s.Prompt))
	if len(p) > 60 {
		return strings.TrimSpace(string(p[:60])) + "..."
	}
	return string(p)
}

// HasDuplicateIDs は ID リストに重複があるかを返します。
func HasDuplicateIDs(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
