package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/hildam/unghost-agent-go/entity/consts"
)

// 面向触达场景的检索工具名称
const (
	LinkedInToolName          = "linkedin_research_tool"
	CompanyToolName           = "company_research_tool"
	SocialMediaToolName       = "social_media_research_tool"
	ThoughtLeadershipToolName = "thought_leadership_research_tool"
)

// QueryInput 检索参数
type QueryInput struct {
	Query string `json:"query" jsonschema:"description=The search query"`
}

// Tool web_search 工具，返回 JSON 格式的结果列表
func (t *Tavily) Tool() (tool.InvokableTool, error) {
	return utils.InferTool(consts.WebSearch,
		"Search the web for up to date information. Returns a JSON list of pages and images.",
		func(ctx context.Context, in *QueryInput) (string, error) {
			results, err := t.Search(ctx, in.Query)
			if err != nil {
				return "", err
			}
			data, err := json.Marshal(results)
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
}

// PersonInput 人物检索参数
type PersonInput struct {
	Name    string `json:"name" jsonschema:"description=Full name of the person"`
	Company string `json:"company,omitempty" jsonschema:"description=Current company of the person if known"`
}

// CompanyInput 公司检索参数
type CompanyInput struct {
	Company string `json:"company" jsonschema:"description=Company name"`
	Focus   string `json:"focus,omitempty" jsonschema:"description=Optional focus such as funding or product launches"`
}

// TopicInput 观点检索参数
type TopicInput struct {
	Name  string `json:"name" jsonschema:"description=Full name of the person"`
	Topic string `json:"topic,omitempty" jsonschema:"description=Optional topic the person is known for"`
}

// query 拼接非空的查询片段
func query(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// FocusedTools 在给定的检索工具上构造面向人物、公司、社交与观点的检索工具
func FocusedTools(searcher tool.InvokableTool) ([]tool.BaseTool, error) {
	if searcher == nil {
		return nil, nil
	}
	run := func(ctx context.Context, name, q string) (string, error) {
		args, err := json.Marshal(QueryInput{Query: q})
		if err != nil {
			return "", err
		}
		out, err := searcher.InvokableRun(ctx, string(args))
		if err != nil {
			slog.Error("%s failed, query = %s, err = %+v", name, q, err)
			return fmt.Sprintf("Search failed. Error: %v", err), nil
		}
		return out, nil
	}

	linkedin, err := utils.InferTool(LinkedInToolName,
		"Research a person's professional background, current role and career history on LinkedIn.",
		func(ctx context.Context, in *PersonInput) (string, error) {
			return run(ctx, LinkedInToolName, query("site:linkedin.com", in.Name, in.Company))
		})
	if err != nil {
		return nil, err
	}
	company, err := utils.InferTool(CompanyToolName,
		"Research a company's recent news, funding, products and strategic priorities.",
		func(ctx context.Context, in *CompanyInput) (string, error) {
			return run(ctx, CompanyToolName, query(in.Company, in.Focus, "company news"))
		})
	if err != nil {
		return nil, err
	}
	social, err := utils.InferTool(SocialMediaToolName,
		"Find a person's recent public posts and activity on social media such as X and LinkedIn.",
		func(ctx context.Context, in *PersonInput) (string, error) {
			return run(ctx, SocialMediaToolName, query(in.Name, in.Company, "recent posts twitter OR x.com OR linkedin"))
		})
	if err != nil {
		return nil, err
	}
	thought, err := utils.InferTool(ThoughtLeadershipToolName,
		"Find talks, podcasts, articles and interviews that show what a person thinks about a topic.",
		func(ctx context.Context, in *TopicInput) (string, error) {
			return run(ctx, ThoughtLeadershipToolName, query(in.Name, in.Topic, "talk OR podcast OR interview OR article"))
		})
	if err != nil {
		return nil, err
	}
	return []tool.BaseTool{linkedin, company, social, thought}, nil
}
