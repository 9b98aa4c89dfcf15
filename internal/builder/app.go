package builder

import (
	"errors"

	"github.com/shouni/go-campaign-kit/internal/config"
	"github.com/shouni/go-campaign-kit/pkg/store"
	"github.com/shouni/go-campaign-kit/pkg/workflow"
)

// AppContext は、コマンド実行に必要な共通コンテキストを保持します。
// BuildAppContext で組み立てて、使い終わったら Close を呼んでください。
type AppContext struct {
	Config     *config.Config    // Config は LoadConfig で読み込んだ設定です
	Manager    *workflow.Manager // Manager はアプリケーションの操作窓口です
	Repository *store.Repository // Repository は永続化層です
	Provider   string            // Provider は使用中の生成プロバイダー名です
	closers    []func() error    // closers はストアなどの後始末です
}

// Close は保持しているリソースを解放します。
func (a *AppContext) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
