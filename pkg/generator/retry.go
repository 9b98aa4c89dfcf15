package generator

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// RetryPolicy は一時的なプロバイダーエラーに対する再試行の設定です。
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy は 3 回まで、500ms から指数的に待機する既定の設定を返します。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delay:    500 * time.Millisecond,
		MaxDelay: 8 * time.Second,
	}
}

// WithRetry は TransientProviderError のときだけ fn を再試行します。
// それ以外の分類やキャンセルは即座に返します。
func WithRetry[T any](ctx context.Context, p RetryPolicy, operation string, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.DoWithData(
		func() (T, error) {
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(domain.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.WarnContext(ctx, "一時的なエラーのため再試行します",
				"operation", operation, "attempt", n+1, "error", err)
		}),
	)
}
