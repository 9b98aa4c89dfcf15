// Package identity はキャラクターの説明から、シーン間で再利用するビジュアルアイデンティティを導出します。
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// DefaultMaxLength はアイデンティティ文字列の既定の最大文字数（rune 数）です。
const DefaultMaxLength = 320

// derivationVersion は導出ロジックを変えた際にキャッシュを無効化するための版です。
const derivationVersion = "1"

// ReferenceMode は参照画像を生成器に渡せるかどうかを表します。
type ReferenceMode int

const (
	// ReferenceEmphasis は参照画像を生成器に渡せない場合で、テキストで強く一貫性を指示します。
	ReferenceEmphasis ReferenceMode = iota
	// ReferenceAttached は参照画像を生成器に添付できる場合です。
	ReferenceAttached
)

const (
	emphasisClause = "match the established reference appearance exactly (same face, hairstyle, outfit, and colors)"
	attachedClause = "keep consistent with the attached reference image"
)

func (m ReferenceMode) clause() string {
	if m == ReferenceAttached {
		return attachedClause
	}
	return emphasisClause
}

// Summarizer は説明文から外見上の特徴を抽出する任意の AI 処理です。
type Summarizer interface {
	Summarize(ctx context.Context, name, description string) ([]string, error)
}

// Builder はビジュアルアイデンティティを構築し、フィンガープリントでキャッシュの鮮度を判定します。
type Builder struct {
	maxLength  int
	mode       ReferenceMode
	summarizer Summarizer
	group      singleflight.Group
}

// Option は Builder の設定を変更します。
type Option func(*Builder)

// WithMaxLength は最大文字数を設定します。
func WithMaxLength(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxLength = n
		}
	}
}

// WithReferenceMode は参照画像の扱いを設定します。
func WithReferenceMode(m ReferenceMode) Option {
	return func(b *Builder) { b.mode = m }
}

// WithSummarizer は AI による特徴抽出を有効にします。
func WithSummarizer(s Summarizer) Option {
	return func(b *Builder) { b.summarizer = s }
}

// NewBuilder は Builder を生成します。
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{maxLength: DefaultMaxLength, mode: ReferenceEmphasis}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fingerprint はアイデンティティの入力（説明文と参照画像の有無）と導出設定から決定論的なハッシュを返します。
// 参照画像の中身ではなく有無だけを使います。
func (b *Builder) Fingerprint(c domain.Character) string {
	h := sha256.New()
	for _, part := range []string{
		derivationVersion,
		strconv.Itoa(int(b.mode)),
		strconv.Itoa(b.maxLength),
		strconv.FormatBool(b.summarizer != nil),
		normalize(c.Name),
		normalize(c.Description),
		strconv.FormatBool(c.HasReference()),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Build はキャッシュが古い場合にのみアイデンティティを再構築し、更新済みのキャラクターを返します。
// 説明文が空の場合は IdentityBuildError を返します。
func (b *Builder) Build(ctx context.Context, c domain.Character) (domain.Character, error) {
	fp := b.Fingerprint(c)
	if c.IdentityFresh(fp) {
		return c, nil
	}

	v, err, _ := b.group.Do(c.ID+":"+fp, func() (any, error) {
		return b.derive(ctx, c)
	})
	if err != nil {
		return c, err
	}

	c.VisualIdentity = v.(string)
	c.IdentityFingerprint = fp
	return c, nil
}

func (b *Builder) derive(ctx context.Context, c domain.Character) (string, error) {
	name := normalize(c.Name)
	desc := normalize(c.Description)
	if name == "" {
		return "", &domain.IdentityBuildError{CharacterID: c.ID, Name: c.Name, Reason: "name is empty"}
	}
	if desc == "" {
		return "", &domain.IdentityBuildError{CharacterID: c.ID, Name: c.Name, Reason: "description is empty"}
	}

	traits := ExtractTraits(desc)
	if b.summarizer != nil {
		summarized, err := b.summarizer.Summarize(ctx, name, desc)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.WarnContext(ctx, "AIによる特徴抽出に失敗したため、説明文から直接導出します",
				"character_id", c.ID, "error", err)
		} else if len(summarized) > 0 {
			traits = summarized
		}
	}

	identity := Compose(name, traits, c.HasReference(), b.mode, b.maxLength)
	if identity == "" {
		return "", &domain.IdentityBuildError{CharacterID: c.ID, Name: c.Name, Reason: "no visual traits could be extracted"}
	}
	return identity, nil
}

// ExtractTraits は説明文を句読点で区切り、重複を除いた特徴のリストにします。
func ExtractTraits(description string) []string {
	fields := strings.FieldsFunc(normalize(description), func(r rune) bool {
		switch r {
		case '.', ',', ';', '\n', '。', '、', '!', '?':
			return true
		}
		return false
	})

	seen := make(map[string]struct{}, len(fields))
	traits := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := strings.ToLower(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		traits = append(traits, f)
	}
	return traits
}

// Compose は "<name>: <traits>" 形式の文字列を最大長以内で組み立てます。
// 特徴は先頭から順に、区切りの位置で切ります。
func Compose(name string, traits []string, hasReference bool, mode ReferenceMode, maxLength int) string {
	suffix := ""
	if hasReference {
		suffix = "; " + mode.clause()
	}
	prefix := name + ": "
	budget := maxLength - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(suffix)

	var kept []string
	used := 0
	for _, t := range traits {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		cost := utf8.RuneCountInString(t)
		if len(kept) > 0 {
			cost += 2
		}
		if used+cost > budget {
			if len(kept) == 0 && budget > 0 {
				kept = append(kept, truncateWords(t, budget))
			}
			break
		}
		kept = append(kept, t)
		used += cost
	}
	if len(kept) == 0 || kept[0] == "" {
		return ""
	}
	return prefix + strings.Join(kept, ", ") + suffix
}

func truncateWords(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	cut := string(rs[:limit])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func normalize(s string) string {
	return domain.NormalizeText(s)
}

// String はデバッグ用の表現を返します。
func (m ReferenceMode) String() string {
	if m == ReferenceAttached {
		return "attached"
	}
	return "emphasis"
}
