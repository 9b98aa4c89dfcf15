package prompts

import (
	_ "embed"
)

const (
	ModeCaption  = "caption"
	ModeRecap    = "recap"
	ModeExpand   = "expand"
	ModeIdentity = "identity"
)

// システムコンテキストは各テキスト生成リクエストの役割を定義します。
const (
	CaptionSystemContext  = "You write brief, evocative one-sentence captions for fantasy tabletop RPG illustrations."
	RecapSystemContext    = "You summarize tabletop RPG sessions concisely with a heroic tone."
	ExpandSystemContext   = "You are a prompt engineer for an illustrator. You turn rough character notes into a consistent, concrete visual description."
	IdentitySystemContext = "You extract stable visual traits of a character for an illustrator. Respond with JSON only."
)

// RecapEntry は要約に渡す1シーン分の情報です。
type RecapEntry struct {
	Chapter string
	Title   string
	Prompt  string
	Caption string
}

// TemplateData はテキスト生成プロンプトのテンプレートに渡すデータ構造です。
type TemplateData struct {
	CampaignName string
	Name         string
	Role         string
	Description  string
	Hint         string
	Title        string
	Prompt       string
	Style        string
	Characters   []string
	Entries      []RecapEntry
}

var (
	//go:embed caption.md
	CaptionPrompt string
	//go:embed recap.md
	RecapPrompt string
	//go:embed expand.md
	ExpandPrompt string
	//go:embed identity.md
	IdentityPrompt string
)

// allTemplates はモードとテンプレート文字列を紐づけるマップです。
var allTemplates = map[string]string{
	ModeCaption:  CaptionPrompt,
	ModeRecap:    RecapPrompt,
	ModeExpand:   ExpandPrompt,
	ModeIdentity: IdentityPrompt,
}
