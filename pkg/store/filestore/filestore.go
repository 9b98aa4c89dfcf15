// Package filestore は store.Backend をローカルの JSON ファイルで実装します。
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shouni/go-campaign-kit/pkg/asset"
	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/store"
)

const fileExt = ".json"

// envelope はファイルに書き出すレコードの形式です。
type envelope struct {
	ParentID string          `json:"parent_id,omitempty"`
	Record   json.RawMessage `json:"record"`
}

// Store は <root>/<kind>/<id>.json にレコードを保存します。
type Store struct {
	root string
	mu   sync.RWMutex
}

// New はルートディレクトリを作成して Store を返します。
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("保存先ディレクトリは必須です")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("保存先ディレクトリの作成に失敗しました: %w", err)
	}
	return &Store{root: filepath.Clean(root)}, nil
}

func (s *Store) path(kind store.Kind, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("不正なID %q: %w", id, domain.ErrInvalidArgument)
	}
	return filepath.Join(s.root, string(kind), id+fileExt), nil
}

// Load はレコードを読み込みます。
func (s *Store) Load(ctx context.Context, kind store.Kind, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(kind, id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	env, err := readEnvelope(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewNotFound(string(kind), id)
	}
	if err != nil {
		return nil, err
	}
	return env.Record, nil
}

// Save は一時ファイルに書き込んでからリネームすることで、レコードをアトミックに置き換えます。
func (s *Store) Save(ctx context.Context, kind store.Kind, id, parentID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(kind, id)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(envelope{ParentID: parentID, Record: data}, "", "  ")
	if err != nil {
		return fmt.Errorf("%s %q のエンコードに失敗しました: %w", kind, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := asset.WriteFileAtomic(p, payload, 0o644); err != nil {
		return fmt.Errorf("%s %q の保存に失敗しました: %w", kind, id, err)
	}
	return nil
}

// Delete はレコードを削除します。
func (s *Store) Delete(ctx context.Context, kind store.Kind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(kind, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %q の削除に失敗しました: %w", kind, id, err)
	}
	return nil
}

// ListByParent は種別ディレクトリを走査し、parentID に一致するレコードをファイル名順で返します。
func (s *Store) ListByParent(ctx context.Context, kind store.Kind, parentID string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, string(kind))

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s 一覧の取得に失敗しました: %w", kind, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out [][]byte
	for _, name := range names {
		env, err := readEnvelope(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if parentID != "" && env.ParentID != parentID {
			continue
		}
		out = append(out, env.Record)
	}
	return out, nil
}

func readEnvelope(p string) (envelope, error) {
	var env envelope
	data, err := os.ReadFile(p)
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%s のデコードに失敗しました: %w", filepath.Base(p), err)
	}
	return env, nil
}
