// Package checkpoint 运行快照存储，实现 compose.CheckPointStore 接口，用 threadID 进行索引
package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/compose"

	"github.com/hildam/unghost-agent-go/entity/conf"
)

// memoryStore 进程内存储，进程退出后丢失
type memoryStore struct {
	mu  sync.RWMutex
	buf map[string][]byte // map映射存储
}

// NewMemory 创建内存存储
func NewMemory() compose.CheckPointStore {
	return &memoryStore{buf: make(map[string][]byte)}
}

// Get 读取快照
func (c *memoryStore) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.buf[checkPointID]
	if !ok {
		return nil, false, nil
	}
	// 拷贝，避免调用方修改内部数据
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Set 写入快照
func (c *memoryStore) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := make([]byte, len(checkPoint))
	copy(data, checkPoint)
	c.buf[checkPointID] = data
	return nil
}

// New 根据配置创建存储
func New(cfg conf.StorageConfig) (compose.CheckPointStore, error) {
	switch cfg.Checkpoint {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown checkpoint store: %s", cfg.Checkpoint)
	}
}
