// Package montage はキャンペーンのシーンからモンタージュのページ構成を組み立てます。
// 描画は行わず、LayoutPlan だけを返します。
package montage

import (
	"fmt"
	"strings"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

const (
	// RecapTitle は要約ページの見出しです。
	RecapTitle = "Recap"
	// untitledCampaign は名前の無いキャンペーンの表紙タイトルです。
	untitledCampaign = "Untitled Campaign"
)

// Compiler は LayoutPlan を生成します。状態を持たず、同じ入力には同じ出力を返します。
type Compiler struct{}

// NewCompiler は Compiler を生成します。
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile は表紙、章ごとの扉ページとシーンページ、任意の要約ページの順にページを並べます。
// scenes は campaign の章が参照するシーンを含んでいる必要があります。順序は章の参照順で決まり、scenes の並びは使いません。
func (c *Compiler) Compile(campaign domain.Campaign, scenes []domain.Scene, chars domain.CharactersMap, includeRecap bool) (domain.LayoutPlan, error) {
	byID := make(map[string]domain.Scene, len(scenes))
	for _, s := range scenes {
		byID[s.ID] = s
	}

	title := strings.TrimSpace(campaign.Name)
	if title == "" {
		title = untitledCampaign
	}
	plan := domain.LayoutPlan{CampaignID: campaign.ID, Title: title}
	add := func(p domain.PageDescriptor) {
		p.Number = len(plan.Pages) + 1
		plan.Pages = append(plan.Pages, p)
	}

	add(domain.PageDescriptor{
		Kind:   domain.PageCover,
		Title:  title,
		Body:   strings.TrimSpace(campaign.Description),
		Roster: roster(campaign.CharacterIDs, chars),
	})

	for i, ch := range campaign.Chapters {
		add(domain.PageDescriptor{
			Kind:      domain.PageChapterTitle,
			Title:     ch.Name,
			Body:      fmt.Sprintf("Chapter %d", i+1),
			ChapterID: ch.ID,
		})

		for _, id := range ch.SceneIDs {
			s, ok := byID[id]
			if !ok {
				return domain.LayoutPlan{}, fmt.Errorf("章 %q のシーン解決に失敗しました: %w", ch.Name, domain.NewNotFound("scene", id))
			}
			if s.CampaignID != campaign.ID {
				return domain.LayoutPlan{}, fmt.Errorf("シーン %q はキャンペーン %q に属していません: %w", id, campaign.ID, domain.ErrInvalidArgument)
			}
			add(scenePage(ch, s, chars))
		}
	}

	if recap := strings.TrimSpace(campaign.Recap); includeRecap && recap != "" {
		add(domain.PageDescriptor{
			Kind:  domain.PageRecap,
			Title: RecapTitle,
			Body:  recap,
		})
	}
	return plan, nil
}

func scenePage(ch domain.Chapter, s domain.Scene, chars domain.CharactersMap) domain.PageDescriptor {
	p := domain.PageDescriptor{
		Kind:          domain.PageScene,
		Title:         s.DisplayTitle(),
		ChapterID:     ch.ID,
		SceneID:       s.ID,
		SceneRevision: s.Revision,
		ImagePath:     s.ImagePath,
	}
	if s.HasCaption() {
		p.Caption = strings.TrimSpace(s.CaptionText())
	} else {
		p.Caption = domain.PlaceholderCaption
		p.CaptionMissing = true
	}

	featured, _ := chars.Ordered(s.CharacterIDs)
	if len(featured) > 0 {
		names := make([]string, len(featured))
		for i, c := range featured {
			names[i] = c.Name
		}
		p.Body = "Featuring: " + strings.Join(names, ", ")
	}
	return p
}

// roster はキャンペーンに紐付いた順でキャラクター一覧を作ります。見つからない ID は載せません。
func roster(ids []string, chars domain.CharactersMap) []domain.RosterEntry {
	var entries []domain.RosterEntry
	for _, id := range ids {
		if c := chars.FindCharacter(id); c != nil {
			entries = append(entries, domain.RosterEntry{Name: c.Name, Role: strings.TrimSpace(c.Role)})
		}
	}
	return entries
}
