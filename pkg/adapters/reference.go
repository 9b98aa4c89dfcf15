package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/gemini-image-kit/pkg/imgutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-campaign-kit/pkg/asset"
	"github.com/shouni/go-campaign-kit/pkg/domain"
)

const (
	// DefaultReferenceQuality は参照画像を再圧縮するときの JPEG 品質です。
	DefaultReferenceQuality = 75
	// compressThreshold を超える参照画像は送信前に JPEG へ再圧縮します。
	compressThreshold = 1 << 20

	defaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = 1 * time.Hour
)

// Fetcher はリモートの参照画像を取得します。httpkit のクライアントが満たします。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// AssetReader はローカルの参照画像を読み込みます。
type AssetReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// ReferenceLoader はキャラクターの参照画像を読み込み、プロセス内でキャッシュします。
type ReferenceLoader struct {
	assets  AssetReader
	fetcher Fetcher
	cache   *cache.Cache
	group   singleflight.Group
	quality int
}

// NewReferenceLoader は ReferenceLoader を生成します。c が nil の場合は新しいキャッシュを作ります。
func NewReferenceLoader(assets AssetReader, fetcher Fetcher, c *cache.Cache) (*ReferenceLoader, error) {
	if assets == nil {
		return nil, fmt.Errorf("AssetReader は必須です")
	}
	if c == nil {
		c = cache.New(defaultCacheExpiration, cacheCleanupInterval)
	}
	return &ReferenceLoader{
		assets:  assets,
		fetcher: fetcher,
		cache:   c,
		quality: DefaultReferenceQuality,
	}, nil
}

// Load は 1 枚の参照画像を読み込みます。
func (l *ReferenceLoader) Load(ctx context.Context, path string) (ReferenceImage, error) {
	if cached, ok := l.cache.Get(path); ok {
		if ref, ok := cached.(ReferenceImage); ok {
			return ref, nil
		}
	}

	val, err, _ := l.group.Do(path, func() (interface{}, error) {
		if cached, ok := l.cache.Get(path); ok {
			return cached, nil
		}
		data, err := l.read(ctx, path)
		if err != nil {
			return nil, err
		}
		ref := l.prepare(path, data)
		l.cache.Set(path, ref, cache.DefaultExpiration)
		return ref, nil
	})
	if err != nil {
		return ReferenceImage{}, err
	}

	ref, ok := val.(ReferenceImage)
	if !ok {
		return ReferenceImage{}, fmt.Errorf("unexpected return type from singleflight: %T", val)
	}
	return ref, nil
}

// LoadFor は参照画像を持つキャラクターの画像を並列に読み込み、キャラクターの順序で返します。
func (l *ReferenceLoader) LoadFor(ctx context.Context, chars []domain.Character) ([]ReferenceImage, error) {
	results := make([]ReferenceImage, len(chars))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, c := range chars {
		if !c.HasReference() {
			continue
		}
		eg.Go(func() error {
			ref, err := l.Load(egCtx, c.ReferenceImage)
			if err != nil {
				return fmt.Errorf("キャラクター %s の参照画像の読み込みに失敗しました: %w", c.ID, err)
			}
			results[i] = ref
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	refs := make([]ReferenceImage, 0, len(results))
	for _, r := range results {
		if len(r.Data) > 0 {
			refs = append(refs, r)
		}
	}
	return refs, nil
}

func (l *ReferenceLoader) read(ctx context.Context, path string) ([]byte, error) {
	if asset.IsRemote(path) {
		if l.fetcher == nil {
			return nil, fmt.Errorf("リモート参照画像を取得するクライアントが設定されていません: %s", path)
		}
		return l.fetcher.FetchBytes(ctx, path)
	}
	return l.assets.Read(ctx, path)
}

func (l *ReferenceLoader) prepare(path string, data []byte) ReferenceImage {
	mimeType := http.DetectContentType(data)
	if len(data) <= compressThreshold {
		return ReferenceImage{Data: data, MimeType: mimeType}
	}
	compressed, err := imgutil.CompressToJPEG(data, l.quality)
	if err != nil {
		slog.Warn("参照画像の圧縮に失敗したため元のデータを使用します", "path", path, "error", err)
		return ReferenceImage{Data: data, MimeType: mimeType}
	}
	return ReferenceImage{Data: compressed, MimeType: "image/jpeg"}
}
