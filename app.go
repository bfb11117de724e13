package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hildam/unghost-agent-go/agent"
	"github.com/hildam/unghost-agent-go/agent/coder"
	"github.com/hildam/unghost-agent-go/agent/coordinator"
	"github.com/hildam/unghost-agent-go/agent/executor"
	"github.com/hildam/unghost-agent-go/agent/human"
	"github.com/hildam/unghost-agent-go/agent/investigator"
	"github.com/hildam/unghost-agent-go/agent/planner"
	"github.com/hildam/unghost-agent-go/agent/reporter"
	"github.com/hildam/unghost-agent-go/agent/researcher"
	"github.com/hildam/unghost-agent-go/agent/strategizer"
	"github.com/hildam/unghost-agent-go/agent/team"
	"github.com/hildam/unghost-agent-go/entity/conf"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/checkpoint"
	"github.com/hildam/unghost-agent-go/repo/crawler"
	"github.com/hildam/unghost-agent-go/repo/llm"
	"github.com/hildam/unghost-agent-go/repo/mcp"
	"github.com/hildam/unghost-agent-go/repo/metrics"
	"github.com/hildam/unghost-agent-go/repo/outreach"
	"github.com/hildam/unghost-agent-go/repo/pyrepl"
	"github.com/hildam/unghost-agent-go/repo/rag"
	"github.com/hildam/unghost-agent-go/repo/search"
	"github.com/hildam/unghost-agent-go/repo/template"
)

// app 组装好的运行时依赖
type app struct {
	manager  *conf.Manager
	workflow *agent.Workflow
	registry *prometheus.Registry

	closers []io.Closer
}

// runFlags 覆盖配置文件中的运行开关
type runFlags struct {
	autoAccept   bool
	noBackground bool
	deepThinking bool
	templateID   string
	threadID     string
}

// newApp 加载配置并创建工作流
func newApp(ctx context.Context, configPath string) (*app, error) {
	manager := conf.NewManager(configPath)
	if err := manager.Load(); err != nil {
		return nil, err
	}
	cfg := manager.Get()

	if err := slog.InitFile(cfg.Log.File, slog.WithLevel(cfg.Log.Level), slog.WithColor(false)); err != nil {
		return nil, fmt.Errorf("init log failed, err: %+v", err)
	}
	if configPath != "" {
		if err := manager.Watch(func(c *conf.AppConfig) {
			slog.Info("newApp info, settings reloaded, max_plan_iterations = %d", c.Setting.MaxPlanIterations)
		}); err != nil {
			slog.Error("newApp failed, watch config err = %+v", err)
		}
	}

	a := &app{manager: manager, registry: prometheus.NewRegistry()}
	workflow, err := a.build(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.workflow = workflow
	return a, nil
}

// build 创建所有节点
func (a *app) build(ctx context.Context, cfg *conf.AppConfig) (*agent.Workflow, error) {
	recorder := metrics.NewRecorder(a.registry)
	prompts := template.NewLoader(cfg.Prompts.Dir)

	templates, err := outreach.NewStore(cfg.Templates.File)
	if err != nil {
		return nil, err
	}
	models, err := llm.NewModels(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	catalog, err := mcp.NewCatalog(ctx, cfg.MCP.Servers)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, catalog)

	webSearch, err := a.webSearch(cfg, catalog)
	if err != nil {
		return nil, err
	}
	crawl, err := crawler.New(cfg.Crawler)
	if err != nil {
		return nil, err
	}
	crawlTool, err := crawl.Tool()
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, retriever)

	var repl *pyrepl.Runner
	if cfg.Setting.EnablePythonRepl {
		repl = pyrepl.New()
	}

	store, err := checkpoint.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	factory := executor.ReactFactory(cfg.Setting.MaxLimitToken)
	limit := cfg.Setting.GetRecursionLimit()

	research, err := researcher.New(researcher.Tools{
		Crawl:     crawlTool,
		WebSearch: webSearch,
		Retriever: retriever,
		Catalog:   catalog,
	}, models.ForTier(cfg.LLMTier(consts.Researcher)), prompts, factory, limit, recorder)
	if err != nil {
		return nil, err
	}
	strategy, err := strategizer.New(templates, catalog, models.ForTier(cfg.LLMTier(consts.Strategizer)),
		prompts, factory, limit, recorder)
	if err != nil {
		return nil, err
	}
	code, err := coder.New(repl, catalog, models.ForTier(cfg.LLMTier(consts.Coder)), prompts, factory, limit, recorder)
	if err != nil {
		return nil, err
	}

	return agent.NewWorkflow(ctx, []agent.Agent{
		coordinator.New(models.ForTier(cfg.LLMTier(consts.Coordinator)), prompts),
		investigator.New(webSearch),
		planner.New(models, cfg.LLMTier(consts.Planner), prompts, templates, recorder),
		human.New(templates),
		team.New(),
		research,
		strategy,
		code,
		reporter.New(models.ForTier(cfg.LLMTier(consts.Reporter)), prompts),
	}, store, recorder)
}

// webSearch 配置了 Tavily 时使用 Tavily，否则使用 MCP 提供的检索工具
func (a *app) webSearch(cfg *conf.AppConfig, catalog *mcp.Catalog) (tool.InvokableTool, error) {
	if cfg.Search.TavilyAPIKey == "" {
		if t := catalog.SearchTool(); t != nil {
			return t, nil
		}
		slog.Error("webSearch failed, no tavily api key and no MCP search tool")
		return nil, nil
	}
	tavily, err := search.NewTavily(cfg.Search, cfg.Setting.MaxSearchResults)
	if err != nil {
		return nil, err
	}
	return tavily.Tool()
}

// newState 使用当前配置与命令行开关创建初始状态
func (a *app) newState(input string, flags runFlags) *model.State {
	cfg := a.manager.Get()
	s := cfg.Setting

	state := model.NewState(input)
	state.Locale = s.Locale
	state.Resources = cfg.Resources
	state.MaxPlanIterations = s.MaxPlanIterations
	state.MaxStepNum = s.MaxStepNum
	state.AutoAcceptedPlan = s.AutoAcceptedPlan || flags.autoAccept
	state.EnableBackgroundInvestigation = s.EnableBackgroundInvestigation && !flags.noBackground
	state.EnableDeepThinking = s.EnableDeepThinking || flags.deepThinking
	state.SelectedTemplateID = s.SelectedTemplateID
	if flags.templateID != "" {
		state.SelectedTemplateID = flags.templateID
	}
	state.ReportStyle = s.ReportStyle
	state.UserBackground = s.UserBackground
	return state
}

// serveMetrics 暴露 prometheus 指标，addr 为空时不启动
func (a *app) serveMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serveMetrics failed, err = %+v", err)
		}
	}()
	slog.Info("serveMetrics info, listening on %s", addr)
}

// Close 释放资源
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
