package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// PageKind はモンタージュのページ種別です。
type PageKind string

const (
	PageCover        PageKind = "cover"
	PageChapterTitle PageKind = "chapter_title"
	PageScene        PageKind = "scene"
	PageRecap        PageKind = "recap"
)

// PlaceholderCaption はキャプション未生成のシーンに表示する文言です。
const PlaceholderCaption = "(caption not yet generated)"

// RosterEntry は表紙に載せるキャラクター一覧の1行です。
type RosterEntry struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// PageDescriptor はレンダラーに渡す1ページ分の描画指示です。
type PageDescriptor struct {
	Number int      `json:"number"`
	Kind   PageKind `json:"kind"`
	Title  string   `json:"title"`
	Body   string   `json:"body,omitempty"`

	Roster []RosterEntry `json:"roster,omitempty"`

	ChapterID string `json:"chapter_id,omitempty"`

	SceneID        string `json:"scene_id,omitempty"`
	SceneRevision  int    `json:"scene_revision,omitempty"`
	ImagePath      string `json:"image_path,omitempty"`
	Caption        string `json:"caption,omitempty"`
	CaptionMissing bool   `json:"caption_missing,omitempty"`
}

// LayoutPlan はモンタージュのページ構成です。レンダラーとの唯一の契約になります。
type LayoutPlan struct {
	CampaignID string           `json:"campaign_id"`
	Title      string           `json:"title"`
	Pages      []PageDescriptor `json:"pages"`
}

// Kinds はページ種別を順に並べたスライスを返します。
func (p LayoutPlan) Kinds() []PageKind {
	kinds := make([]PageKind, len(p.Pages))
	for i, page := range p.Pages {
		kinds[i] = page.Kind
	}
	return kinds
}

// Fingerprint はプランの内容から決定論的なハッシュを返します。
// シーンのリビジョンを含むため、再生成されると値が変わります。
func (p LayoutPlan) Fingerprint() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
