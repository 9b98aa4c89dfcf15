package asset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shouni/go-utils/urlpath"
)

const (
	// DefaultImageDir は生成された画像を格納するデフォルトのディレクトリ名です。
	DefaultImageDir = "images"
	// DefaultReferenceDir はキャラクターの参照画像を格納するディレクトリ名です。
	DefaultReferenceDir = "references"
	// DefaultExportDir はモンタージュの出力先ディレクトリ名です。
	DefaultExportDir = "exports"
)

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

const maxSafeNameRunes = 48

// ResolveOutputPath は、ベースとなるディレクトリパスとファイル名から最終的な出力パスを生成します。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	return urlpath.ResolveOutputPath(baseDir, fileName)
}

// SafeName はファイル名に使える文字（各言語の文字、数字、_、-）だけを残した小文字の名前を返します。
// 空になる場合は fallback を返します。
func SafeName(name, fallback string) string {
	s := strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-"), "-")
	if s == "" {
		return fallback
	}
	if r := []rune(s); len(r) > maxSafeNameRunes {
		s = strings.TrimRight(string(r[:maxSafeNameRunes]), "-")
	}
	return s
}

// ShortID は ID の先頭 8 文字をファイル名向けに返します。
func ShortID(id string) string {
	s := strings.ReplaceAll(SafeName(id, ""), "-", "")
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// ExtensionFor は MIME タイプに対応する拡張子を返します。
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// MimeTypeFor はファイルパスの拡張子から MIME タイプを推定します。
func MimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// IsRemote はパスが HTTP(S) の URL かどうかを返します。
func IsRemote(path string) bool {
	p := strings.ToLower(path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func validateLocal(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("アセットパスが空です")
	}
	if IsRemote(path) {
		return fmt.Errorf("リモートのアセットは扱えません: %s", path)
	}
	return nil
}
