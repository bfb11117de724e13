package conf

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hildam/unghost-agent-go/entity/consts"
)

const (
	// EnvPrefix 环境变量前缀，UNGHOST_SETTING__MAX_PLAN_ITERATIONS 对应 setting.max_plan_iterations
	EnvPrefix = "UNGHOST_"
	// RecursionLimitEnv 工具调用往返上限的环境变量
	RecursionLimitEnv = "AGENT_RECURSION_LIMIT"
)

// Manager 配置管理器，负责加载、监听与并发安全读取
type Manager struct {
	path string

	mu  sync.RWMutex // 配置读写锁
	f   *file.File   // 文件提供者
	cfg *AppConfig   // 当前配置
}

// NewManager 创建配置管理器，path 为空时只读取环境变量
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load 便捷加载
func Load(path string) (*AppConfig, error) {
	m := NewManager(path)
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m.Get(), nil
}

// Load 加载配置
func (m *Manager) Load() error {
	if m.path != "" {
		m.f = file.Provider(m.path)
	}
	cfg, err := m.read()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Get 获取配置
func (m *Manager) Get() *AppConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Watch 监听配置文件变化，变化时重新加载并回调
func (m *Manager) Watch(onChange func(*AppConfig)) error {
	if m.f == nil {
		return fmt.Errorf("Watch failed, file provider not initialized")
	}

	return m.f.Watch(func(event interface{}, err error) {
		if err != nil {
			slog.Error("Watch failed, config file watch err = %+v", err)
			return
		}

		// 配置文件发生变化，重新加载
		cfg, err := m.read()
		if err != nil {
			slog.Error("Watch failed, reload config err = %+v", err)
			return
		}

		m.mu.Lock()
		m.cfg = cfg
		m.mu.Unlock()

		slog.Info("Watch info, config reloaded from %s", m.path)
		if onChange != nil {
			onChange(cfg)
		}
	})
}

// read 依次读取文件与环境变量，解析到结构体
func (m *Manager) read() (*AppConfig, error) {
	k := koanf.New(".")

	if m.f != nil {
		if err := k.Load(m.f, yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// 环境变量覆盖文件配置
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	// 解析配置到结构体，使用 yaml 标签
	var config AppConfig
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if v, ok := os.LookupEnv(RecursionLimitEnv); ok {
		config.Setting.RecursionLimit = v
	}

	applyDefaults(&config)
	return &config, nil
}

// applyDefaults 补齐缺省值
func applyDefaults(c *AppConfig) {
	if c.Model.BasicModel.Empty() {
		c.Model.BasicModel = c.Model.DefaultModel
	}
	if c.Model.ReasoningModel.Empty() {
		c.Model.ReasoningModel = c.Model.BasicModel
	}

	s := &c.Setting
	if s.MaxPlanIterations <= 0 {
		s.MaxPlanIterations = consts.DefaultMaxPlanIterations
	}
	if s.MaxStepNum <= 0 {
		s.MaxStepNum = consts.DefaultMaxStepNum
	}
	if s.MaxLimitToken <= 0 {
		s.MaxLimitToken = 32000
	}
	if s.MaxSearchResults <= 0 {
		s.MaxSearchResults = 3
	}
	if s.Locale == "" {
		s.Locale = consts.DefaultLocale
	}
	if s.ReportStyle == "" {
		s.ReportStyle = "outreach"
	}

	if c.Search.Endpoint == "" {
		c.Search.Endpoint = "https://api.tavily.com/search"
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 30
	}
	if c.Crawler.Timeout <= 0 {
		c.Crawler.Timeout = 30
	}
	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = "Mozilla/5.0 (compatible; unghost-agent/1.0)"
	}
	if c.Crawler.MaxContentChars <= 0 {
		c.Crawler.MaxContentChars = 20000
	}
	if c.Storage.Checkpoint == "" {
		c.Storage.Checkpoint = "memory"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/checkpoints.db"
	}
	if c.Log.File == "" {
		c.Log.File = "logs/app.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
