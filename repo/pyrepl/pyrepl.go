// Package pyrepl 数据处理步骤使用的 python 执行工具
package pyrepl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/hildam/unghost-agent-go/entity/consts"
)

const (
	// DefaultTimeout 单次执行超时
	DefaultTimeout = 30 * time.Second
	// maxOutputChars 返回给模型的输出上限
	maxOutputChars = 20000
)

// Runner 通过子进程执行代码，代码从标准输入读入
type Runner struct {
	Command string        // 解释器，默认 python3
	Args    []string      // 解释器参数，默认 "-"
	Timeout time.Duration // 超时时间
}

// New 创建 python3 执行器
func New() *Runner {
	return &Runner{Command: "python3", Args: []string{"-"}, Timeout: DefaultTimeout}
}

// Run 执行代码，返回标准输出；失败时返回的错误带上标准错误内容
func (r *Runner) Run(ctx context.Context, code string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.Command, r.Args...)
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("execution timed out after %s", timeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, truncate(msg))
		}
		return "", err
	}
	return truncate(stdout.String()), nil
}

// CodeInput 执行参数
type CodeInput struct {
	Code string `json:"code" jsonschema:"description=The python code to execute. Use print(...) to see the output."`
}

// Tool python_repl_tool，执行失败时把错误作为结果返回给模型
func (r *Runner) Tool() (tool.InvokableTool, error) {
	return utils.InferTool(consts.PythonRepl,
		"Execute python code for data analysis or calculation. Print the values you want to see.",
		func(ctx context.Context, in *CodeInput) (string, error) {
			out, err := r.Run(ctx, in.Code)
			if err != nil {
				slog.Error("python_repl_tool failed, err = %+v", err)
				return fmt.Sprintf("Error executing code:\n```python\n%s\n```\nError: %v", in.Code, err), nil
			}
			return fmt.Sprintf("Successfully executed:\n```python\n%s\n```\nStdout: %s", in.Code, out), nil
		})
}

func truncate(s string) string {
	if r := []rune(s); len(r) > maxOutputChars {
		return string(r[:maxOutputChars])
	}
	return s
}
