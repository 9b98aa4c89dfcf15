package builder

import (
	"context"

	"github.com/shouni/go-campaign-kit/pkg/adapters"
)

// unavailable は認証情報が無いときに使うプロバイダーで、呼ばれると設定エラーを返します。
type unavailable struct {
	reason error
}

func (u unavailable) Complete(context.Context, string, string) (string, error) {
	return "", u.reason
}

func (u unavailable) Generate(context.Context, adapters.ImageRequest) (*adapters.ImageResponse, error) {
	return nil, u.reason
}
