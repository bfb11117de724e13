// Package llm 创建各档位的对话模型
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	openai3 "github.com/cloudwego/eino-ext/libs/acl/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/hildam/unghost-agent-go/entity/conf"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

// Models 模型集合，创建一次后注入到各节点
type Models struct {
	basic     einomodel.ToolCallingChatModel // 基础模型
	reasoning einomodel.ToolCallingChatModel // 推理模型
	plan      einomodel.ToolCallingChatModel // 结构化输出的计划模型
}

// NewModels 根据配置创建模型
func NewModels(ctx context.Context, cfg conf.ModelConfig) (*Models, error) {
	basic, err := NewChatModel(ctx, cfg.BasicModel)
	if err != nil {
		return nil, fmt.Errorf("create basic model: %w", err)
	}
	reasoning, err := NewChatModel(ctx, cfg.ReasoningModel)
	if err != nil {
		return nil, fmt.Errorf("create reasoning model: %w", err)
	}
	plan, err := NewPlanModel(ctx, cfg.BasicModel)
	if err != nil {
		return nil, fmt.Errorf("create plan model: %w", err)
	}
	return NewModelsFrom(basic, reasoning, plan), nil
}

// NewModelsFrom 使用现成的模型组装，reasoning 与 plan 为空时回退到 basic
func NewModelsFrom(basic, reasoning, plan einomodel.ToolCallingChatModel) *Models {
	if reasoning == nil {
		reasoning = basic
	}
	if plan == nil {
		plan = basic
	}
	return &Models{basic: basic, reasoning: reasoning, plan: plan}
}

// Basic 基础模型
func (m *Models) Basic() einomodel.ToolCallingChatModel {
	return m.basic
}

// Reasoning 推理模型
func (m *Models) Reasoning() einomodel.ToolCallingChatModel {
	return m.reasoning
}

// Plan 结构化输出的计划模型
func (m *Models) Plan() einomodel.ToolCallingChatModel {
	return m.plan
}

// ForTier 按档位返回模型，未知档位使用基础模型
func (m *Models) ForTier(tier string) einomodel.ToolCallingChatModel {
	if tier == consts.LLMReasoning {
		return m.reasoning
	}
	return m.basic
}

// NewChatModel 创建Chat模型
func NewChatModel(ctx context.Context, cfg conf.Model) (*openai.ChatModel, error) {
	return openai.NewChatModel(ctx, chatModelConfig(cfg))
}

// NewPlanModel 创建计划模型，响应格式约束为计划的 JSON Schema
func NewPlanModel(ctx context.Context, cfg conf.Model) (*openai.ChatModel, error) {
	planSchema, err := openapi3gen.NewSchemaRefForValue(&model.Plan{}, nil)
	if err != nil {
		return nil, fmt.Errorf("generate plan schema: %w", err)
	}

	modelCfg := chatModelConfig(cfg)
	modelCfg.ResponseFormat = &openai3.ChatCompletionResponseFormat{
		Type: openai3.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai3.ChatCompletionResponseFormatJSONSchema{
			Name:   "plan",
			Strict: false,
			Schema: planSchema.Value,
		},
	}
	return openai.NewChatModel(ctx, modelCfg)
}

func chatModelConfig(cfg conf.Model) *openai.ChatModelConfig {
	return &openai.ChatModelConfig{
		Model:      cfg.ModelID,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		ByAzure:    cfg.ByAzure,
		APIVersion: cfg.APIVersion,
	}
}
