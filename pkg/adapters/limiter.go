package adapters

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const defaultRateBurst = 2

// NewLimiter は interval ごとに 1 リクエストを許可するリミッターを返します。
// interval が 0 以下の場合は制限しません。
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(interval), defaultRateBurst)
}

type limitedText struct {
	next    TextGenerator
	limiter *rate.Limiter
}

// LimitText は TextGenerator にレート制限をかけます。
func LimitText(next TextGenerator, limiter *rate.Limiter) TextGenerator {
	if limiter == nil {
		return next
	}
	return &limitedText{next: next, limiter: limiter}
}

func (l *limitedText) Complete(ctx context.Context, systemContext, userPrompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Complete(ctx, systemContext, userPrompt)
}

type limitedImage struct {
	next    ImageGenerator
	limiter *rate.Limiter
}

// LimitImage は ImageGenerator にレート制限をかけます。参照画像への対応可否は引き継ぎます。
func LimitImage(next ImageGenerator, limiter *rate.Limiter) ImageGenerator {
	if limiter == nil {
		return next
	}
	return &limitedImage{next: next, limiter: limiter}
}

func (l *limitedImage) Generate(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Generate(ctx, req)
}

func (l *limitedImage) SupportsReferenceImages() bool {
	return SupportsReferences(l.next)
}
