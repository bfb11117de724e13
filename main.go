package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/HildaM/logs/slog"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hildam/unghost-agent-go/agent"
	"github.com/hildam/unghost-agent-go/entity/conf"
	"github.com/hildam/unghost-agent-go/entity/consts"
	"github.com/hildam/unghost-agent-go/entity/model"
	"github.com/hildam/unghost-agent-go/repo/callback"
	"github.com/hildam/unghost-agent-go/repo/outreach"
)

// Version 版本号
const Version = "0.1.0"

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "unghost",
		Short:         "Research a recipient and draft a personalised outreach message",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Config file path (YAML)")

	cmd.AddCommand(runCmd(&configPath), resumeCmd(&configPath), templatesCmd(&configPath), versionCmd())
	return cmd
}

func runCmd(configPath *string) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run [request]",
		Short: "Start a new outreach run, prompting for the request when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			a.serveMetrics(a.manager.Get().Metrics.Addr)

			if flags.threadID == "" {
				flags.threadID = uuid.New().String()
			}
			reader := bufio.NewReader(os.Stdin)
			input := strings.TrimSpace(strings.Join(args, " "))
			if input == "" {
				fmt.Print("请输入你的需求： ")
				line, _ := reader.ReadString('\n')
				input = strings.TrimSpace(line)
			}
			if input == "" {
				return fmt.Errorf("empty request")
			}

			res, err := console(flags.threadID, func(opt agent.RunOption) (*agent.Result, error) {
				return a.workflow.Run(ctx, flags.threadID, a.newState(input, flags), opt)
			})
			if err != nil {
				return err
			}
			return review(ctx, a, reader, res)
		},
	}
	cmd.Flags().BoolVar(&flags.autoAccept, "auto-accept", false, "Accept generated plans without review")
	cmd.Flags().BoolVar(&flags.noBackground, "no-background", false, "Skip the background web search before planning")
	cmd.Flags().BoolVar(&flags.deepThinking, "deep-thinking", false, "Plan with the reasoning model")
	cmd.Flags().StringVar(&flags.templateID, "template", "", "Outreach template id to use")
	cmd.Flags().StringVar(&flags.threadID, "thread", "", "Thread id, generated when empty")
	return cmd
}

func resumeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <thread> <feedback>",
		Short: "Resume a suspended run with [ACCEPTED] or [EDIT_PLAN] <changes>",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			threadID, feedback := args[0], strings.Join(args[1:], " ")
			res, err := console(threadID, func(opt agent.RunOption) (*agent.Result, error) {
				return a.workflow.Resume(ctx, threadID, feedback, opt)
			})
			if err != nil {
				return err
			}
			return review(ctx, a, bufio.NewReader(os.Stdin), res)
		},
	}
}

func templatesCmd(configPath *string) *cobra.Command {
	var tone, useCase string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the available outreach templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conf.Load(*configPath)
			if err != nil {
				return err
			}
			store, err := outreach.NewStore(cfg.Templates.File)
			if err != nil {
				return err
			}
			list := store.All()
			if tone != "" {
				list = store.ByTone(tone)
			}
			if useCase != "" {
				list = intersect(list, store.ByUseCase(useCase))
			}
			fmt.Println(outreach.Summarize(list))
			return nil
		},
	}
	cmd.Flags().StringVar(&tone, "tone", "", "Only list templates with this tone")
	cmd.Flags().StringVar(&useCase, "use-case", "", "Only list templates whose use case contains this text")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", consts.GraphName, Version)
		},
	}
}

// console 运行一次调用，同时把节点输出打印到控制台
func console(threadID string, call func(agent.RunOption) (*agent.Result, error)) (*agent.Result, error) {
	out := make(chan *model.ChatResp, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for resp := range out {
			fmt.Print(callback.Format(resp))
		}
	}()

	res, err := call(agent.WithCallbacks(&callback.LoggerCallback{ID: threadID, Out: out}))
	close(out)
	<-done
	fmt.Println()

	if err != nil {
		slog.Error("console failed, err = %+v", err)
		return res, err
	}
	return res, nil
}

// review 会话挂起时展示计划并读取反馈，直到运行结束
func review(ctx context.Context, a *app, reader *bufio.Reader, res *agent.Result) error {
	for res.Status == model.StatusSuspended {
		fmt.Printf("\n[thread] %s\n\n%s\n\n", res.ThreadID, res.State.RawPlan)
		fmt.Printf("输入 %s 接受计划，或 %s <修改意见>（直接回车视为接受）： ", consts.AcceptPlan, consts.EditPlan)
		line, err := reader.ReadString('\n')
		feedback := strings.TrimSpace(line)
		if err != nil && feedback == "" {
			fmt.Printf("\n稍后可以使用 `unghost resume %s <feedback>` 继续\n", res.ThreadID)
			return nil
		}
		if feedback == "" {
			feedback = consts.AcceptPlan
		}

		threadID := res.ThreadID
		res, err = console(threadID, func(opt agent.RunOption) (*agent.Result, error) {
			return a.workflow.Resume(ctx, threadID, feedback, opt)
		})
		if err != nil {
			return err
		}
	}

	fmt.Printf("\n[thread] %s [status] %s\n", res.ThreadID, res.Status)
	if res.FinalReport != "" {
		fmt.Printf("\n%s\n", res.FinalReport)
	}
	return nil
}

// intersect 保留同时出现在两个列表中的模板
func intersect(a, b []model.OutreachTemplate) []model.OutreachTemplate {
	ids := make(map[string]bool, len(b))
	for _, tpl := range b {
		ids[tpl.TemplateID] = true
	}
	var out []model.OutreachTemplate
	for _, tpl := range a {
		if ids[tpl.TemplateID] {
			out = append(out, tpl)
		}
	}
	return out
}
