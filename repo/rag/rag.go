// Package rag 本地参考资料检索，基于 sqlite FTS5 全文索引
package rag

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/HildaM/logs/slog"
	_ "modernc.org/sqlite" // sqlite 驱动

	"github.com/hildam/unghost-agent-go/entity/model"
)

const (
	// maxChunkChars 单个片段的最大长度
	maxChunkChars = 1500
	// defaultLimit 默认返回的片段数
	defaultLimit = 5
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Document 检索命中的片段
type Document struct {
	URI     string `json:"uri"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Retriever 本地资料检索器，资料按 URI 懒加载进索引
type Retriever struct {
	db *sql.DB

	mu      sync.Mutex
	indexed map[string]bool
}

// NewRetriever 创建内存索引
func NewRetriever() (*Retriever, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	// 内存库只能使用同一个连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`CREATE VIRTUAL TABLE chunks USING fts5(uri UNINDEXED, title, content)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &Retriever{db: db, indexed: make(map[string]bool)}, nil
}

// Index 将尚未索引的资料读入索引，读取失败的资料会被跳过
func (r *Retriever) Index(ctx context.Context, resources []model.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range resources {
		if r.indexed[res.URI] {
			continue
		}
		content, err := os.ReadFile(strings.TrimPrefix(res.URI, "file://"))
		if err != nil {
			slog.Error("Index failed, read resource %s, err = %+v", res.URI, err)
			continue
		}
		for _, chunk := range split(string(content)) {
			if _, err := r.db.ExecContext(ctx,
				`INSERT INTO chunks (uri, title, content) VALUES (?, ?, ?)`, res.URI, res.Title, chunk); err != nil {
				return fmt.Errorf("failed to index %s: %w", res.URI, err)
			}
		}
		r.indexed[res.URI] = true
		slog.Debug("Index debug, indexed resource %s", res.URI)
	}
	return nil
}

// Query 在给定资料范围内检索关键词，按相关度排序
func (r *Retriever) Query(ctx context.Context, keywords string, resources []model.Resource, limit int) ([]Document, error) {
	match := matchExpr(keywords)
	if match == "" || len(resources) == 0 {
		return nil, nil
	}
	if err := r.Index(ctx, resources); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	uris := make([]string, 0, len(resources))
	args := []any{match}
	for _, res := range resources {
		uris = append(uris, "?")
		args = append(args, res.URI)
	}
	args = append(args, limit)

	r.mu.Lock()
	defer r.mu.Unlock()
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT uri, title, content FROM chunks WHERE chunks MATCH ? AND uri IN (%s) ORDER BY bm25(chunks) LIMIT ?`,
		strings.Join(uris, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.URI, &doc.Title, &doc.Content); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Close 关闭索引
func (r *Retriever) Close() error {
	return r.db.Close()
}

// matchExpr 关键词转为 FTS5 的 OR 查询，去掉特殊字符
func matchExpr(keywords string) string {
	tokens := tokenPattern.FindAllString(strings.ToLower(keywords), -1)
	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		quoted = append(quoted, `"`+token+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// split 按段落切分，短段落合并到不超过 maxChunkChars
func split(content string) []string {
	var chunks []string
	var current strings.Builder
	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > maxChunkChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}
