// Package store はキャラクター・キャンペーン・シーンの永続化を担います。
package store

import (
	"context"
)

// Kind は保存するエンティティの種別です。
type Kind string

const (
	KindCharacter Kind = "character"
	KindCampaign  Kind = "campaign"
	KindScene     Kind = "scene"
)

// Backend はレコードを JSON バイト列として保存する低レベルの契約です。
// Save は1回の呼び出し単位でアトミックであり、失敗時は以前のレコードがそのまま残ります。
type Backend interface {
	// Load はレコードを返します。存在しない場合は domain.ErrNotFound を満たすエラーを返します。
	Load(ctx context.Context, kind Kind, id string) ([]byte, error)
	Save(ctx context.Context, kind Kind, id, parentID string, data []byte) error
	// Delete は存在しないレコードに対しても成功します。
	Delete(ctx context.Context, kind Kind, id string) error
	// ListByParent は parentID に属するレコードを返します。parentID が空の場合は全件です。
	ListByParent(ctx context.Context, kind Kind, parentID string) ([][]byte, error)
}
