package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store はシーン画像や参照画像など、エンティティが所有するバイナリを保存します。
// 書き込みは完全に成功するか、何も残さないかのどちらかです。
type Store interface {
	Save(ctx context.Context, dir, prefix string, data []byte, mimeType string) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// LocalStore はローカルディスク上にアセットを保存します。
type LocalStore struct {
	baseDir string
}

// NewLocalStore は LocalStore を生成します。
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("アセットの保存先ディレクトリは必須です")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("アセットディレクトリの作成に失敗しました: %w", err)
	}
	return &LocalStore{baseDir: filepath.Clean(baseDir)}, nil
}

// Save は <baseDir>/<dir>/<prefix>_<uuid8><ext> に書き込み、そのパスを返します。
func (s *LocalStore) Save(ctx context.Context, dir, prefix string, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("保存する画像データが空です")
	}
	targetDir, err := ResolveOutputPath(s.baseDir, dir)
	if err != nil {
		return "", fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	name := fmt.Sprintf("%s_%s%s", SafeName(prefix, "asset"), ShortID(uuid.NewString()), ExtensionFor(mimeType))
	fullPath, err := ResolveOutputPath(targetDir, name)
	if err != nil {
		return "", fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	if err := WriteFileAtomic(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("画像の書き込みに失敗しました %s: %w", fullPath, err)
	}
	return fullPath, nil
}

// Import はローカルファイルを読み込み、アセットとして複製します。
func (s *LocalStore) Import(ctx context.Context, dir, prefix, srcPath string) (string, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("画像ファイルの読み込みに失敗しました: %w", err)
	}
	return s.Save(ctx, dir, prefix, data, MimeTypeFor(srcPath))
}

// Read はアセットを読み込みます。
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateLocal(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("アセットの読み込みに失敗しました: %w", err)
	}
	return data, nil
}

// Delete はアセットを削除します。既に存在しない場合も成功します。
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateLocal(path); err != nil {
		return err
	}
	if !s.owns(path) {
		return fmt.Errorf("管理対象外のパスは削除できません: %s", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("アセットの削除に失敗しました: %w", err)
	}
	return nil
}

func (s *LocalStore) owns(path string) bool {
	rel, err := filepath.Rel(s.baseDir, filepath.Clean(path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
