package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HildaM/logs/slog"
	_ "modernc.org/sqlite" // sqlite 驱动
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id         TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore 基于 sqlite 的快照存储，挂起的会话在进程重启后仍可恢复
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite 打开（或创建）sqlite 快照库，path 为 ":memory:" 时使用内存库
func NewSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint db: %w", err)
	}
	// sqlite 只支持单写
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}

	slog.Info("NewSQLite info, checkpoint db initialized: %s", path)
	return &SQLiteStore{db: db}, nil
}

// Get 读取快照
func (s *SQLiteStore) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM checkpoints WHERE id = ?`, checkPointID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read checkpoint %s: %w", checkPointID, err)
	}
	return data, true, nil
}

// Set 写入快照，已存在时覆盖
func (s *SQLiteStore) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		checkPointID, checkPoint)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", checkPointID, err)
	}
	return nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
