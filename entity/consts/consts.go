package consts

const (
	GraphName = "unghost_outreach_agent" // 工作流名称，用于标识整个工作流
	End       = "__end__"                // 流程结束节点
)

// Agent 名字
const (
	Coordinator            = "coordinator"             // 任务协调者，负责理解需求并移交给计划者
	Planner                = "planner"                 // 计划者，负责制定和优化执行计划
	Reporter               = "reporter"                // 报告者，负责汇总观察结果并输出最终触达消息
	Researcher             = "researcher"              // 研究者，负责收件人与公司信息收集
	Strategizer            = "strategizer"             // 策略者，负责触达策略与消息起草
	Coder                  = "coder"                   // 代码执行者，负责数据处理类步骤
	ResearchTeam           = "research_team"           // 步骤路由，根据计划步骤分派执行者
	BackgroundInvestigator = "background_investigator" // 背景调查者，计划前的网络检索
	Human                  = "human_feedback"          // 人工反馈，负责计划审核
)

// GetAgentNameList 返回列表
func GetAgentNameList() []string {
	return []string{
		Coordinator,
		Planner,
		Reporter,
		Researcher,
		Strategizer,
		Coder,
		ResearchTeam,
		BackgroundInvestigator,
		Human,
	}
}

// 人类反馈标记，按前缀匹配（忽略大小写）
const (
	EditPlan   = "[EDIT_PLAN]" // 编辑计划，用户要求修改当前计划
	AcceptPlan = "[ACCEPTED]"  // 接受计划，用户确认当前计划
)

// 工具名称
const (
	HandoffToPlanner = "handoff_to_planner" // 协调者唯一可调用的工具
	WebSearch        = "web_search"         // 网络检索工具
	LocalSearch      = "local_search_tool"  // 本地资源检索工具
	CrawlTool        = "crawl_tool"         // 网页抓取工具
	PythonRepl       = "python_repl_tool"   // python 执行工具
)

// 模型档位
const (
	LLMBasic     = "basic"     // 基础模型
	LLMReasoning = "reasoning" // 推理模型
)

// DefaultLocale 默认语言
const DefaultLocale = "en-US"

// 运行配置默认值
const (
	DefaultMaxPlanIterations = 1 // 最大计划迭代次数
	DefaultMaxStepNum        = 3 // 单个计划最多步骤数
)
