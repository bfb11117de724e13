// Package outreach 触达消息模板库，提供查询、摘要、选择与填充
package outreach

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/HildaM/logs/slog"

	"github.com/hildam/unghost-agent-go/entity/model"
)

//go:embed templates.json
var defaultTemplates []byte

// variablePattern 模板变量 {{name}}
var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// contextKeys 模板变量与选择上下文中对应的键
var contextKeys = []struct {
	variable string
	key      string
}{
	{"name", "recipient_name"},
	{"company", "recipient_company"},
	{"topic", "recent_activity"},
	{"community", "shared_communities"},
}

// Store 模板库，创建后只读，可在多个运行间共享
type Store struct {
	templates []model.OutreachTemplate
}

// NewStore 加载模板，file 为空时使用内置模板
func NewStore(file string) (*Store, error) {
	data := defaultTemplates
	if file != "" {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read template file: %w", err)
		}
		data = content
	}

	var templates []model.OutreachTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}
	slog.Info("NewStore info, loaded %d outreach templates", len(templates))
	return &Store{templates: templates}, nil
}

// All 全部模板
func (s *Store) All() []model.OutreachTemplate {
	return s.templates
}

// Get 按 ID 查询模板
func (s *Store) Get(id string) (*model.OutreachTemplate, bool) {
	for i := range s.templates {
		if s.templates[i].TemplateID == id {
			tpl := s.templates[i]
			return &tpl, true
		}
	}
	return nil, false
}

// ByTone 按语气过滤（忽略大小写的精确匹配）
func (s *Store) ByTone(tone string) []model.OutreachTemplate {
	var out []model.OutreachTemplate
	for _, tpl := range s.templates {
		if strings.EqualFold(tpl.Tone, tone) {
			out = append(out, tpl)
		}
	}
	return out
}

// ByUseCase 按场景过滤（忽略大小写的包含匹配）
func (s *Store) ByUseCase(useCase string) []model.OutreachTemplate {
	needle := strings.ToLower(useCase)
	var out []model.OutreachTemplate
	for _, tpl := range s.templates {
		if strings.Contains(strings.ToLower(tpl.UseCase), needle) {
			out = append(out, tpl)
		}
	}
	return out
}

// Summary 生成注入提示词的模板摘要
func (s *Store) Summary() string {
	return Summarize(s.templates)
}

// Summarize 格式化模板列表
func Summarize(templates []model.OutreachTemplate) string {
	var b strings.Builder
	b.WriteString("Available Outreach Templates:\n\n")
	for _, tpl := range templates {
		fmt.Fprintf(&b, "Template ID: %s\n", orNA(tpl.TemplateID))
		fmt.Fprintf(&b, "Tone: %s\n", orNA(tpl.Tone))
		fmt.Fprintf(&b, "Use Case: %s\n", orNA(tpl.UseCase))
		fmt.Fprintf(&b, "Hook Type: %s\n", orNA(tpl.HookType))
		fmt.Fprintf(&b, "CTA Type: %s\n", orNA(tpl.CTAType))
		fmt.Fprintf(&b, "Template: %s\n", orNA(tpl.PromptTemplate))
		b.WriteString(strings.Repeat("-", 50) + "\n\n")
	}
	return b.String()
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}

// SelectBest 根据上下文选择最匹配的模板，没有任何匹配时返回 nil。
// 语气与场景过滤结果为空时忽略该过滤条件。
func (s *Store) SelectBest(ctx map[string]string, tone, useCase string) *model.OutreachTemplate {
	candidates := s.templates
	if tone != "" {
		if filtered := s.ByTone(tone); len(filtered) > 0 {
			candidates = filtered
		}
	}
	if useCase != "" {
		if filtered := s.ByUseCase(useCase); len(filtered) > 0 {
			candidates = filtered
		}
	}

	var best *model.OutreachTemplate
	bestScore := 0
	for i := range candidates {
		score := Score(candidates[i], ctx, useCase)
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}
	if best == nil {
		slog.Debug("SelectBest debug, no suitable template, tone = %s, use_case = %s", tone, useCase)
		return nil
	}

	slog.Debug("SelectBest debug, selected template %s with score %d", best.TemplateID, bestScore)
	tpl := *best
	return &tpl
}

// Score 模板与上下文的匹配分：上下文能填充的变量各 1 分，场景匹配 2 分
func Score(tpl model.OutreachTemplate, ctx map[string]string, useCase string) int {
	score := 0
	for _, ck := range contextKeys {
		if strings.Contains(tpl.PromptTemplate, "{{"+ck.variable+"}}") && ctx[ck.key] != "" {
			score++
		}
	}
	if useCase != "" && strings.Contains(strings.ToLower(tpl.UseCase), strings.ToLower(useCase)) {
		score += 2
	}
	return score
}

// Variables 提取模板中的变量名，按首次出现顺序去重
func Variables(tpl model.OutreachTemplate) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range variablePattern.FindAllStringSubmatch(tpl.PromptTemplate, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Fill 使用给定值替换模板变量，未提供的变量保留原样
func Fill(tpl model.OutreachTemplate, values map[string]string) string {
	text := tpl.PromptTemplate
	for key, value := range values {
		text = strings.ReplaceAll(text, "{{"+key+"}}", value)
	}
	return text
}
