package conf

import (
	"strconv"
	"strings"

	"github.com/hildam/unghost-agent-go/entity/model"
)

// DefaultRecursionLimit 单个步骤内工具调用往返的默认上限
const DefaultRecursionLimit = 25

// MCPServerConfig MCP服务器配置
type MCPServerConfig struct {
	Transport    string            `yaml:"transport"`     // stdio 或 sse，为空时根据 url 推断
	Command      string            `yaml:"command"`       // MCP服务器启动命令
	Args         []string          `yaml:"args"`          // 命令行参数列表
	Env          map[string]string `yaml:"env"`           // 环境变量映射，可选配置
	URL          string            `yaml:"url"`           // SSE 服务地址
	Headers      []string          `yaml:"headers"`       // SSE 请求头，格式 "Key: Value"
	EnabledTools []string          `yaml:"enabled_tools"` // 启用的工具，为空表示不挂载到任何执行者
	AddToAgents  []string          `yaml:"add_to_agents"` // 挂载到哪些执行者
}

// MCPConfig MCP配置
type MCPConfig struct {
	Servers map[string]MCPServerConfig `yaml:"servers"` // key为服务器名称
}

// Model 单个模型配置
type Model struct {
	ModelID    string `yaml:"model_id"`    // 模型ID
	BaseURL    string `yaml:"base_url"`    // 模型服务的基础URL地址
	APIKey     string `yaml:"api_key"`     // 模型服务的API密钥
	ByAzure    bool   `yaml:"by_azure"`    // 是否使用 Azure OpenAI
	APIVersion string `yaml:"api_version"` // Azure API 版本
}

// Empty 是否未配置
func (m Model) Empty() bool {
	return m.ModelID == ""
}

// ModelConfig 模型配置
type ModelConfig struct {
	DefaultModel   Model `yaml:"default_model"`   // 默认模型，其他档位缺省时回退到它
	BasicModel     Model `yaml:"basic_model"`     // 基础模型
	ReasoningModel Model `yaml:"reasoning_model"` // 推理模型，深度思考时使用
}

// SettingConfig 应用运行配置
type SettingConfig struct {
	MaxPlanIterations             int    `yaml:"max_plan_iterations"`             // 最大计划迭代次数
	MaxStepNum                    int    `yaml:"max_step_num"`                    // 单个计划的最大步骤数
	RecursionLimit                string `yaml:"recursion_limit"`                 // 单步骤工具调用往返上限
	MaxLimitToken                 int    `yaml:"max_limit_token"`                 // 单条消息最大长度
	AutoAcceptedPlan              bool   `yaml:"auto_accepted_plan"`              // 自动接受计划
	EnableBackgroundInvestigation bool   `yaml:"enable_background_investigation"` // 计划前进行背景调查
	EnableDeepThinking            bool   `yaml:"enable_deep_thinking"`            // 计划时使用推理模型
	MaxSearchResults              int    `yaml:"max_search_results"`              // 检索结果条数
	SelectedTemplateID            string `yaml:"selected_template_id"`            // 预选的触达模板
	ReportStyle                   string `yaml:"report_style"`                    // 报告风格
	UserBackground                string `yaml:"user_background"`                 // 发件人背景
	EnablePythonRepl              bool   `yaml:"enable_python_repl"`              // 是否启用 python 执行工具
	Locale                        string `yaml:"locale"`                          // 默认语言
}

// GetRecursionLimit 解析工具调用往返上限，非正数或无法解析时使用默认值
func (s SettingConfig) GetRecursionLimit() int {
	v, err := strconv.Atoi(strings.TrimSpace(s.RecursionLimit))
	if err != nil || v <= 0 {
		return DefaultRecursionLimit
	}
	return v
}

// SearchConfig 检索配置
type SearchConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key"` // Tavily API Key，为空时只使用 MCP 检索工具
	Endpoint     string `yaml:"endpoint"`       // Tavily 接口地址
	Timeout      int    `yaml:"timeout"`        // 超时时间，秒
}

// CrawlerConfig 抓取配置
type CrawlerConfig struct {
	Timeout         int    `yaml:"timeout"`           // 超时时间，秒
	UserAgent       string `yaml:"user_agent"`        // 请求 UA
	MaxContentChars int    `yaml:"max_content_chars"` // 返回内容最大长度
}

// StorageConfig 状态存储配置
type StorageConfig struct {
	Checkpoint string `yaml:"checkpoint"`  // memory 或 sqlite
	SQLitePath string `yaml:"sqlite_path"` // sqlite 文件路径
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Addr string `yaml:"addr"` // 监听地址，为空时不暴露
}

// LogConfig 日志配置
type LogConfig struct {
	File  string `yaml:"file"`  // 日志文件
	Level string `yaml:"level"` // 日志级别
}

// PromptConfig 提示词配置
type PromptConfig struct {
	Dir string `yaml:"dir"` // 覆盖内置提示词的目录
}

// TemplateConfig 触达模板配置
type TemplateConfig struct {
	File string `yaml:"file"` // 覆盖内置模板的 JSON 文件
}

// AppConfig 应用配置
type AppConfig struct {
	MCP         MCPConfig         `yaml:"mcp"`           // MCP服务相关配置
	Model       ModelConfig       `yaml:"model"`         // 大语言模型相关配置
	AgentLLMMap map[string]string `yaml:"agent_llm_map"` // 各节点使用的模型档位
	Setting     SettingConfig     `yaml:"setting"`       // 应用运行时配置参数
	Search      SearchConfig      `yaml:"search"`        // 检索配置
	Crawler     CrawlerConfig     `yaml:"crawler"`       // 抓取配置
	Storage     StorageConfig     `yaml:"storage"`       // 状态存储配置
	Metrics     MetricsConfig     `yaml:"metrics"`       // 指标配置
	Log         LogConfig         `yaml:"log"`           // 日志配置
	Prompts     PromptConfig      `yaml:"prompts"`       // 提示词配置
	Templates   TemplateConfig    `yaml:"templates"`     // 触达模板配置
	Resources   []model.Resource  `yaml:"resources"`     // 本地参考资料
}

// LLMTier 返回节点使用的模型档位
func (c *AppConfig) LLMTier(agent string) string {
	if tier, ok := c.AgentLLMMap[agent]; ok && tier != "" {
		return tier
	}
	return "basic"
}
