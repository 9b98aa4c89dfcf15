package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSeedFromName(t *testing.T) {
	t.Run("同じ名前から同じSeedが生成されること", func(t *testing.T) {
		seed1 := GetSeedFromName("Elora")
		seed2 := GetSeedFromName("Elora")

		assert.NotZero(t, seed1)
		assert.Equal(t, seed1, seed2, "同じ名前から異なるSeedが生成されました。決定論的ではありません")
	})

	t.Run("Seedが正の値であること", func(t *testing.T) {
		for _, name := range []string{"Thorin", "Sildar", "Gundren", "ずんだもん"} {
			assert.GreaterOrEqual(t, GetSeedFromName(name), int32(0), name)
		}
	})
}

func TestNewCharacter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewCharacter("c1", "  Thorin ", "Fighter", "stout dwarf", now)

	assert.Equal(t, "Thorin", c.Name)
	assert.Equal(t, "Fighter", c.Role)
	assert.Equal(t, int64(GetSeedFromName("  Thorin ")), c.Seed)
	assert.Equal(t, now, c.CreatedAt)
	assert.Empty(t, c.VisualIdentity)
}

func TestCharacter_String(t *testing.T) {
	c := Character{ID: "test-id", Name: "テスト名"}
	assert.Equal(t, "テスト名 (test-id)", c.String())
	assert.Equal(t, "テスト名", c.Label())

	c.Role = "Wizard"
	assert.Equal(t, "テスト名 (Wizard)", c.Label())
}

func TestCharacter_IdentityFresh(t *testing.T) {
	c := Character{VisualIdentity: "Elora: silver hair", IdentityFingerprint: "abc"}

	assert.True(t, c.IdentityFresh("abc"))
	assert.False(t, c.IdentityFresh("def"), "フィンガープリントが変われば古いキャッシュとみなすこと")

	c.VisualIdentity = ""
	assert.False(t, c.IdentityFresh("abc"), "空のアイデンティティは常に再構築が必要なこと")
}

func TestCharactersMap_Ordered(t *testing.T) {
	m := BuildCharactersMap([]Character{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob"},
		{ID: "c", Name: "Carol"},
	})

	chars, missing := m.Ordered([]string{"c", "x", "a"})
	if assert.Len(t, chars, 2) {
		assert.Equal(t, "Carol", chars[0].Name)
		assert.Equal(t, "Alice", chars[1].Name)
	}
	assert.Equal(t, []string{"x"}, missing)
	assert.Nil(t, m.FindCharacter("zzz"))
	if found := m.FindCharacter("b"); assert.NotNil(t, found) {
		assert.Equal(t, "Bob", found.Name)
	}
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, UniqueIDs([]string{"b", "", "a", "b"}))
	assert.True(t, HasDuplicateIDs([]string{"a", "b", "a"}))
	assert.False(t, HasDuplicateIDs([]string{"a", "b"}))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Elora Vane", NormalizeText("  Elora \t Vane\n"))
	assert.Equal(t, "\u00e9", NormalizeText("e\u0301"), "NFC に正規化すること")
}
