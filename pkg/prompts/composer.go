package prompts

import (
	"strings"
	"unicode/utf8"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

const (
	// DefaultMaxPromptLength は合成後プロンプトの既定の最大文字数（rune 数）です。
	DefaultMaxPromptLength = 1800

	// CharacterHeader はキャラクター定義セクションの見出しです。
	CharacterHeader = "### CHARACTER MASTER DEFINITIONS (STRICT IDENTITY) ###"
	// SceneHeader はシーン本文セクションの見出しです。
	SceneHeader = "### SCENE ###"
	// StyleHeader は画風セクションの見出しです。
	StyleHeader = "### GLOBAL VISUAL STYLE ###"

	// SceneNegativePrompt は挿絵に含めたくない要素です。
	SceneNegativePrompt = "speech bubble, text, letters, words, signatures, watermark, username, low quality, distorted, bad anatomy"

	sectionSeparator = "\n\n"
	// minTraitRunes を下回る割り当てしか得られないキャラクターは名前だけを残します。
	minTraitRunes = 4
)

// ComposedPrompt は合成結果です。Truncated が true の場合、キャラクター定義が切り詰められています。
type ComposedPrompt struct {
	Text      string
	Truncated bool
}

// Composer はキャラクターのビジュアルアイデンティティとシーンの記述から生成プロンプトを組み立てます。
// I/O を持たない純粋な処理で、同じ入力に対して常に同じ出力を返します。
type Composer struct {
	maxLength   int
	styleSuffix string
}

// NewComposer は Composer を生成します。maxLength が 0 以下なら既定値を使います。
func NewComposer(maxLength int, styleSuffix string) *Composer {
	if maxLength <= 0 {
		maxLength = DefaultMaxPromptLength
	}
	return &Composer{
		maxLength:   maxLength,
		styleSuffix: strings.TrimSpace(styleSuffix),
	}
}

// MaxLength は設定された最大文字数を返します。
func (c *Composer) MaxLength() int {
	return c.maxLength
}

type clause struct {
	name   string
	traits []rune
}

// Compose はキャラクター定義を chars の順序のまま並べ、区切りの後に scenePrompt をそのまま続けます。
// 最大長を超える場合はキャラクターの特徴部分だけを長さに比例して切り詰め、名前とシーン記述は残します。
func (c *Composer) Compose(scenePrompt string, chars []domain.Character, style string) ComposedPrompt {
	clauses := make([]clause, 0, len(chars))
	for _, ch := range chars {
		clauses = append(clauses, splitIdentity(ch))
	}
	styleLine := c.styleLine(style)

	full := render(clauses, nil, scenePrompt, styleLine)
	if utf8.RuneCountInString(full) <= c.maxLength {
		return ComposedPrompt{Text: full}
	}

	// 名前だけを残した骨格の長さを求め、残りを特徴部分に比例配分します
	limits := make([]int, len(clauses))
	skeleton := render(clauses, limits, scenePrompt, styleLine)
	available := c.maxLength - utf8.RuneCountInString(skeleton)
	if available <= 0 && styleLine != "" {
		styleLine = ""
		skeleton = render(clauses, limits, scenePrompt, styleLine)
		available = c.maxLength - utf8.RuneCountInString(skeleton)
	}
	if available <= 0 {
		return ComposedPrompt{Text: skeleton, Truncated: true}
	}

	total := 0
	for _, cl := range clauses {
		if len(cl.traits) > 0 {
			total += len(cl.traits) + len(traitSeparator)
		}
	}
	for i, cl := range clauses {
		if len(cl.traits) == 0 {
			continue
		}
		share := available * (len(cl.traits) + len(traitSeparator)) / total
		limits[i] = share - len(traitSeparator)
	}

	return ComposedPrompt{Text: render(clauses, limits, scenePrompt, styleLine), Truncated: true}
}

func (c *Composer) styleLine(style string) string {
	style = strings.TrimSpace(style)
	var parts []string
	if style != "" {
		parts = append(parts, "Render in "+style+" style.")
	}
	if c.styleSuffix != "" {
		parts = append(parts, c.styleSuffix)
	}
	return strings.Join(parts, " ")
}

const traitSeparator = ": "

// render はプロンプト全体を組み立てます。limits が nil の場合は切り詰めません。
func render(clauses []clause, limits []int, scenePrompt, styleLine string) string {
	var sb strings.Builder
	if len(clauses) > 0 {
		sb.WriteString(CharacterHeader)
		sb.WriteString("\n")
		for i, cl := range clauses {
			sb.WriteString("- ")
			sb.WriteString(cl.name)
			traits := cl.traits
			if limits != nil {
				traits = cutTraits(traits, limits[i])
			}
			if len(traits) > 0 {
				sb.WriteString(traitSeparator)
				sb.WriteString(string(traits))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(SceneHeader)
	sb.WriteString("\n")
	sb.WriteString(scenePrompt)
	if styleLine != "" {
		sb.WriteString(sectionSeparator)
		sb.WriteString(StyleHeader)
		sb.WriteString("\n")
		sb.WriteString(styleLine)
	}
	return sb.String()
}

// cutTraits は limit 以内に収まるよう、語の途中を避けて特徴部分を切り詰めます。
func cutTraits(traits []rune, limit int) []rune {
	if len(traits) <= limit {
		return traits
	}
	if limit < minTraitRunes {
		return nil
	}
	cut := traits[:limit]
	if !isBoundary(traits[limit]) {
		if idx := lastBoundary(cut); idx > 0 {
			cut = cut[:idx]
		}
	}
	return []rune(strings.TrimRight(string(cut), " ,;:"))
}

func isBoundary(r rune) bool {
	return r == ' ' || r == ',' || r == ';'
}

func lastBoundary(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if isBoundary(rs[i]) {
			return i
		}
	}
	return -1
}

// splitIdentity は "<name>: <traits>" 形式のアイデンティティを名前と特徴に分けます。
func splitIdentity(ch domain.Character) clause {
	name := domain.NormalizeText(ch.Name)
	identity := strings.TrimSpace(ch.VisualIdentity)
	if rest, ok := strings.CutPrefix(identity, name+traitSeparator); ok {
		identity = rest
	} else if identity == name {
		identity = ""
	}
	return clause{name: name, traits: []rune(identity)}
}
