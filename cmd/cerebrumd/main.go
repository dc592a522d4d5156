package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cerebrumd/cerebrum"
	"github.com/cerebrumd/cerebrum/config"
	"github.com/cerebrumd/cerebrum/goal"
	"github.com/cerebrumd/cerebrum/lifecycle"
	"github.com/cerebrumd/cerebrum/logging"
	"github.com/cerebrumd/cerebrum/model"
	"github.com/cerebrumd/cerebrum/model/anthropic"
	"github.com/cerebrumd/cerebrum/model/openai"
	"github.com/cerebrumd/cerebrum/scheduler"
	"github.com/cerebrumd/cerebrum/store"
)

var rootCmd = &cobra.Command{
	Use:   "cerebrumd",
	Short: "Cerebrum goal daemon",
	Long: `Cerebrumd runs the goal engine: it stores goals, keeps a priority queue,
gates user goals behind approval, and works on the active goal through
background cycles and worker workflows.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(goalCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CEREBRUM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("definitions", "", "worker/workflow definitions file (default <workspace>/.cerebrum/definitions.yaml)")
	rootCmd.PersistentFlags().String("provider", "mock", "completion provider: mock, anthropic or openai")
	rootCmd.PersistentFlags().String("model", "", "completion model identifier")
	rootCmd.PersistentFlags().Bool("cache", true, "cache completion responses")
	rootCmd.PersistentFlags().Duration("approval-timeout", lifecycle.DefaultApprovalTimeout, "auto-approval delay, 0 disables")
	rootCmd.PersistentFlags().Duration("reflection-interval", 0, "reflection cycle interval (default 5m)")
	rootCmd.PersistentFlags().Duration("processing-interval", 0, "processing cycle interval (default 30s)")
	rootCmd.PersistentFlags().Duration("dispatch-interval", 0, "tier dispatch cycle interval (default 30s)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "json", "log format: json or text")
	for _, name := range []string{
		"workspace", "definitions", "provider", "model", "cache",
		"approval-timeout", "reflection-interval", "processing-interval", "dispatch-interval",
		"log-level", "log-format",
	} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func definitionsPath() string {
	if p := viper.GetString("definitions"); p != "" {
		return p
	}
	workspace := viper.GetString("workspace")
	return workspace + "/.cerebrum/definitions.yaml"
}

func buildLogger() *logging.CerebrumLogger {
	level := logging.LogLevelInfo
	switch viper.GetString("log-level") {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewSlogLogger(level, viper.GetString("log-format"), false)
}

func buildModel() (model.CompletionModel, error) {
	var inner model.CompletionModel
	switch provider := viper.GetString("provider"); provider {
	case "mock":
		inner = model.NewMockModel("mock", "mock")
	case "anthropic":
		inner = anthropic.NewModel(func(o *anthropic.Options) {
			if id := viper.GetString("model"); id != "" {
				o.Model = anthropicsdk.Model(id)
			}
		})
	case "openai":
		inner = openai.NewModel(func(o *openai.Options) {
			if id := viper.GetString("model"); id != "" {
				o.Model = id
			}
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if !viper.GetBool("cache") {
		return inner, nil
	}
	cached, err := model.NewCachedModel(inner)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the goal daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			st, err := store.OpenSQLite(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer st.Close()

			completion, err := buildModel()
			if err != nil {
				return err
			}

			defsFile := config.NewFile(definitionsPath())
			defs, err := defsFile.Load()
			if err != nil {
				return err
			}
			if len(defs.Workers) == 0 {
				defs = config.DefaultDefinitions()
				if err := defsFile.Save(defs); err != nil {
					return err
				}
				logger.Info("seeded default definitions", "path", defsFile.Path())
			}

			delegationWF := ""
			if len(defs.Workflows) > 0 {
				delegationWF = defs.Workflows[0].ID
			}

			brain := cerebrum.New(func(o *cerebrum.Options) {
				o.Store = st
				o.Model = completion
				o.WorkerPersister = defsFile
				o.WorkflowPersister = defsFile
				o.Notifier = lifecycle.NotifierFunc(printNotification)
				o.ApprovalTimeout = viper.GetDuration("approval-timeout")
				o.DelegationWorkflowID = delegationWF
				o.Logger = logger
				if d := viper.GetDuration("reflection-interval"); d > 0 {
					o.ReflectionInterval = d
				}
				if d := viper.GetDuration("processing-interval"); d > 0 {
					o.ProcessingInterval = d
				}
				if d := viper.GetDuration("dispatch-interval"); d > 0 {
					o.DispatchInterval = d
				}
			})
			for _, w := range defs.Workers {
				if err := brain.RegisterWorker(w); err != nil {
					return err
				}
			}
			for _, wf := range defs.Workflows {
				if err := brain.RegisterWorkflow(wf); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := brain.Start(ctx); err != nil {
				return err
			}
			logger.Info("cerebrumd running", "workspace", viper.GetString("workspace"))
			<-ctx.Done()
			brain.Stop()
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the default worker and workflow definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := config.NewFile(definitionsPath())
			if err := f.Save(config.DefaultDefinitions()); err != nil {
				return err
			}
			fmt.Println("wrote", f.Path())
			return nil
		},
	}
}

func goalCmd() *cobra.Command {
	root := &cobra.Command{Use: "goal", Short: "Inspect and manage goals"}
	root.AddCommand(goalAddCmd())
	root.AddCommand(goalListCmd())
	root.AddCommand(goalApproveCmd())
	root.AddCommand(goalRejectCmd())
	return root
}

func withStore(fn func(st *store.SQLiteStore) error) error {
	st, err := store.OpenSQLite(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

// withController builds a one-shot lifecycle controller over the workspace
// store so CLI mutations go through the same transition rules as the daemon:
// tier gating, the approval window and the single-active invariant. The
// auto-approval timer stays off; only the long-running daemon owns it.
func withController(fn func(ctrl *lifecycle.Controller) error) error {
	return withStore(func(sqlst *store.SQLiteStore) error {
		st := store.NewRetryStore(sqlst)
		ctrl := lifecycle.New(st, scheduler.New(st), func(o *lifecycle.Options) {
			o.ApprovalTimeout = 0
			o.Notifier = lifecycle.NotifierFunc(printNotification)
		})
		defer ctrl.Close()
		return fn(ctrl)
	})
}

func goalAddCmd() *cobra.Command {
	var (
		description string
		goalType    string
		priority    int
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a user-derived goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctrl *lifecycle.Controller) error {
				g := goal.New(args[0], description, goal.Type(goalType), goal.TierUserDerived,
					goal.Origin{Source: goal.OriginExplicitRequest, Confidence: 1.0}, priority)
				if err := ctrl.CreateGoal(cmd.Context(), g); err != nil {
					return err
				}
				fmt.Println("created goal", g.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "goal description")
	cmd.Flags().StringVar(&goalType, "type", string(goal.TypeShortTerm), "goal type")
	cmd.Flags().IntVarP(&priority, "priority", "p", 5, "base priority 1-10")
	return cmd
}

func goalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(st *store.SQLiteStore) error {
				goals, err := st.AllGoals(cmd.Context())
				if err != nil {
					return err
				}
				for _, g := range goals {
					fmt.Printf("%s  %-17s %3d%%  [%s] %s\n", g.ID, g.Status, g.Progress, g.Tier, g.Title)
				}
				return nil
			})
		},
	}
}

func goalApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a goal waiting for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctrl *lifecycle.Controller) error {
				if err := ctrl.Approve(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println("approved goal", args[0])
				return nil
			})
		},
	}
}

func goalRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a goal waiting for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctrl *lifecycle.Controller) error {
				if err := ctrl.Reject(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println("rejected goal", args[0])
				return nil
			})
		},
	}
}

func printNotification(n lifecycle.Notification) {
	switch n.Kind {
	case lifecycle.NoticeApprovalRequest:
		fmt.Printf("\n[approval needed] %s\n%s\n", n.Title, n.Message)
	case lifecycle.NoticeProgressUpdate:
		fmt.Printf("\n[progress] %s: %d%%\n", n.Title, n.Progress)
	case lifecycle.NoticeCompletion:
		fmt.Printf("\n[completed] %s\n%s\n", n.Title, n.Message)
	}
}
