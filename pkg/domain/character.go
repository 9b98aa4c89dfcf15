package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Character はキャンペーンに登場するキャラクターの定義を保持します。
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"` // クラスや役割（例: "Ranger"）
	Description string `json:"description"`
	// ReferenceImage はキャラクターが所有する参照画像のアセットパス、または URL です。
	ReferenceImage string `json:"reference_image,omitempty"`

	// VisualIdentity は Description と ReferenceImage から導出されるキャッシュです。手動で編集しないでください。
	VisualIdentity      string `json:"visual_identity,omitempty"`
	IdentityFingerprint string `json:"identity_fingerprint,omitempty"`

	Seed      int64     `json:"seed"` // 画像生成の一貫性を保つためのシード値
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCharacter は名前と説明からキャラクター構造体を生成します。
func NewCharacter(id, name, role, description string, now time.Time) Character {
	return Character{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Role:        strings.TrimSpace(role),
		Description: description,
		Seed:        int64(GetSeedFromName(strings.TrimSpace(name))),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// String はキャラクターの情報を文字列で返します。
func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}

// HasReference は参照画像が設定されているかどうかを返します。
func (c Character) HasReference() bool {
	return strings.TrimSpace(c.ReferenceImage) != ""
}

// IdentityFresh は、キャッシュ済みの VisualIdentity が指定したフィンガープリントに対して有効かどうかを返します。
func (c Character) IdentityFresh(fingerprint string) bool {
	return c.VisualIdentity != "" && c.IdentityFingerprint == fingerprint
}

// Label は表示用に名前と役割を組み合わせた文字列を返します。
func (c Character) Label() string {
	if c.Role == "" {
		return c.Name
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Role)
}

// GetSeedFromName は名前から決定論的なシード値を生成します。
func GetSeedFromName(name string) int32 {
	hash := sha256.Sum256([]byte(name))
	// ハッシュの最初の4バイトを int32 に変換
	seed := int32(binary.BigEndian.Uint32(hash[:4]))
	// 画像生成APIのシード値は正の数が望ましいため、最上位ビットを落とします
	return seed & 0x7FFFFFFF
}
