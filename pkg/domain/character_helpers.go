package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CharactersMap はIDをキーとしたキャラクターの検索用マップです。
type CharactersMap map[string]Character

// BuildCharactersMap はスライス形式のデータを検索効率の良いマップ形式に変換します。
func BuildCharactersMap(chars []Character) CharactersMap {
	m := make(CharactersMap, len(chars))
	for _, c := range chars {
		m[c.ID] = c
	}
	return m
}

// FindCharacter は IDからキャラクター情報を特定します。
func (m CharactersMap) FindCharacter(id string) *Character {
	if m == nil {
		return nil
	}
	if char, ok := m[id]; ok {
		res := char
		return &res
	}
	return nil
}

// Ordered は指定された ID の順序どおりにキャラクターを並べて返します。
// 見つからない ID は missing として返します。
func (m CharactersMap) Ordered(ids []string) (chars []Character, missing []string) {
	chars = make([]Character, 0, len(ids))
	for _, id := range ids {
		c, ok := m[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		chars = append(chars, c)
	}
	return chars, missing
}

// UniqueIDs は順序を保ったまま重複と空文字を取り除きます。
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NormalizeText は NFC 正規化と空白の畳み込みを行います。名前の比較やアイデンティティの導出で共通に使います。
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
