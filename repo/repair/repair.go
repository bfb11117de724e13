// Package repair 修复模型输出的近似 JSON 文本
package repair

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/kaptinlin/jsonrepair"
)

// fencePattern 匹配 markdown 代码块中的内容
var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\s*```")

// JSON 尽力将模型输出修复为合法 JSON。
// 输入为空时返回空串，其余情况总是返回非空文本：不像 JSON 的内容原样返回，修复失败时返回截取出的片段，交由调用方校验。
func JSON(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	// 1. 去掉 markdown 代码块
	if m := fencePattern.FindStringSubmatch(content); len(m) > 1 && strings.TrimSpace(m[1]) != "" {
		content = strings.TrimSpace(m[1])
	}
	start := firstBracket(content)
	if start < 0 {
		return content
	}

	// 2. 截取第一个完整的对象或数组，后面的说明文字不参与修复
	candidate := balanced(content[start:])
	if json.Valid([]byte(candidate)) {
		return candidate
	}

	// 3. 交给 jsonrepair 修复多余逗号、注释或截断
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err == nil && strings.TrimSpace(repaired) != "" {
		return repaired
	}
	slog.Error("repair failed, err = %+v, content = %s", err, candidate)
	return candidate
}

// firstBracket 第一个 { 或 [ 的位置
func firstBracket(content string) int {
	return strings.IndexAny(content, "{[")
}

// balanced 返回从开头括号起第一个括号配平的片段，字符串中的括号不计入；未配平时返回全部内容
func balanced(content string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return content[:i+1]
			}
		}
	}
	return content
}
