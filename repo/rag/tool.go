package rag

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
)

// noResults 未命中时返回给模型的文本
const noResults = "No results found from the local knowledge base."

// SearchInput 本地检索参数
type SearchInput struct {
	Keywords string `json:"keywords" jsonschema:"description=Keywords to look up in the user's resource files"`
}

// Tool 限定在给定资料范围内的 local_search_tool
func (r *Retriever) Tool(resources []model.Resource) (tool.InvokableTool, error) {
	return utils.InferTool(consts.LocalSearch,
		"Retrieve relevant passages from the resource files the user mentioned. Use this before searching the web.",
		func(ctx context.Context, in *SearchInput) (string, error) {
			docs, err := r.Query(ctx, in.Keywords, resources, defaultLimit)
			if err != nil {
				return "", err
			}
			if len(docs) == 0 {
				return noResults, nil
			}
			data, err := json.Marshal(docs)
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
}
