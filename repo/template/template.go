// Package template 加载各节点的系统提示词
package template

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/HildaM/logs/slog"
)

//go:embed prompts/*.md
var builtin embed.FS

// Loader 提示词加载器，优先读取覆盖目录，找不到时回退到内置提示词
type Loader struct {
	dir string // 覆盖目录，为空时只使用内置提示词
}

// NewLoader 创建加载器
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// GetPromptTemplate 加载并返回一个提示模板
func (l *Loader) GetPromptTemplate(ctx context.Context, promptName string) (string, error) {
	fileName := fmt.Sprintf("%s.md", promptName)

	if l.dir != "" {
		content, err := os.ReadFile(filepath.Join(l.dir, fileName))
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			msg := fmt.Errorf("GetPromptTemplate failed, read template file, err: %w", err)
			slog.Error(msg.Error())
			return "", msg
		}
	}

	content, err := builtin.ReadFile("prompts/" + fileName)
	if err != nil {
		msg := fmt.Errorf("GetPromptTemplate failed, prompt %s not found, err: %w", promptName, err)
		slog.Error(msg.Error())
		return "", msg
	}
	return string(content), nil
}
