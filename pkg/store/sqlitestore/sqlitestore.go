// Package sqlitestore は store.Backend を SQLite で実装します。
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/store"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	kind      TEXT NOT NULL,
	id        TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	data      BLOB NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS records_parent ON records (kind, parent_id, id);
`

// Store は単一の records テーブルにレコードを保存します。
type Store struct {
	sqlDB *sql.DB
}

// Open は SQLite データベースを開き、スキーマを適用します。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// インメモリDBは接続ごとに別物になるため、接続を1本に固定します
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close は SQLite のハンドルを閉じます。
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load はレコードを読み込みます。
func (s *Store) Load(ctx context.Context, kind store.Kind, id string) ([]byte, error) {
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data FROM records WHERE kind = ? AND id = ?`, string(kind), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(string(kind), id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %q: %w", kind, id, err)
	}
	return data, nil
}

// Save はレコードを挿入または置換します。単一文のため1回の呼び出しでアトミックです。
func (s *Store) Save(ctx context.Context, kind store.Kind, id, parentID string, data []byte) error {
	if id == "" {
		return fmt.Errorf("id is required: %w", domain.ErrInvalidArgument)
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO records (kind, id, parent_id, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, id) DO UPDATE SET parent_id = excluded.parent_id, data = excluded.data`,
		string(kind), id, parentID, data,
	)
	if err != nil {
		return fmt.Errorf("save %s %q: %w", kind, id, err)
	}
	return nil
}

// Delete はレコードを削除します。
func (s *Store) Delete(ctx context.Context, kind store.Kind, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, string(kind), id); err != nil {
		return fmt.Errorf("delete %s %q: %w", kind, id, err)
	}
	return nil
}

// ListByParent は parentID に属するレコードを ID 順で返します。
func (s *Store) ListByParent(ctx context.Context, kind store.Kind, parentID string) ([][]byte, error) {
	query := `SELECT data FROM records WHERE kind = ? ORDER BY id`
	args := []any{string(kind)}
	if parentID != "" {
		query = `SELECT data FROM records WHERE kind = ? AND parent_id = ? ORDER BY id`
		args = append(args, parentID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return out, nil
}
