package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"stratval/adapters/catalog"
	"stratval/adapters/lean"
	"stratval/adapters/llm"
	"stratval/api"
	"stratval/app"
	"stratval/domain/core"
	"stratval/domain/strategy"
	"stratval/internal/codegen"
	"stratval/internal/config"
	"stratval/internal/logging"
	"stratval/internal/registry"
	"stratval/internal/report"
	"stratval/internal/verify"
)

var (
	flagConfig     string
	flagDryRun     bool
	flagForce      bool
	flagSkipVerify bool
	flagForceLLM   bool
	flagLocal      bool
	flagWindows    int
	flagParallel   int
)

func main() {
	root := &cobra.Command{
		Use:           "stratval",
		Short:         "Walk-forward validation pipeline for strategy candidates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "stratval.yaml", "path to config file")

	root.AddCommand(
		initCmd(),
		verifyCmd(),
		runCmd(),
		runAllCmd(),
		statusCmd(),
		reportCmd(),
		serveCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig reads config and applies CLI overrides common to the run
// commands.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagLocal {
		cfg.Backtest.Mode = "local"
	}
	if flagWindows > 0 {
		cfg.WalkFwd.Windows = flagWindows
	}
	logging.Setup(cfg.LogLevel)
	return cfg, nil
}

// buildPipeline wires the full pipeline from config.
func buildPipeline(cfg *config.Config, opts app.Options) (*app.Pipeline, *catalog.Workspace, func(), error) {
	workspace, err := catalog.NewWorkspace(cfg.Workspace)
	if err != nil {
		return nil, nil, nil, err
	}

	resolver, err := registry.New(filepath.Join(cfg.Workspace, "registry.json"))
	if err != nil {
		return nil, nil, nil, err
	}

	client := llm.NewClient(cfg.LLM)
	var genOpts []codegen.Option
	if flagForceLLM {
		genOpts = append(genOpts, codegen.WithForceLLM(true))
	}
	generator := codegen.New(client, cfg.LLM.Model, cfg.LLM.MaxTokens, genOpts...)

	var apiClient *lean.APIClient
	if cfg.Backtest.Mode == "cloud" {
		creds, err := lean.LoadCredentials(cfg.Backtest.CredentialsPath)
		if err != nil {
			return nil, nil, nil, err
		}
		apiClient = lean.NewAPIClient(cfg.Backtest.APIBaseURL, creds, cfg.Backtest.RequestsPerSec)
	}
	runner := lean.NewRunner(cfg.Backtest, cfg.Workspace, apiClient)

	cleanup := func() {}
	var index app.Indexer
	if cfg.Catalog.Driver != "" {
		idx, err := catalog.OpenIndex(cfg.Catalog.Driver, cfg.Catalog.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		index = idx
		cleanup = func() { idx.Close() }
	}

	pipeline := app.NewPipeline(cfg, workspace, workspace, resolver, generator, runner, index, opts)
	return pipeline, workspace, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace directory tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := catalog.NewWorkspace(cfg.Workspace); err != nil {
				return err
			}
			fmt.Printf("workspace initialized at %s\n", cfg.Workspace)
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <strategy-id>",
		Short: "Run structural checks on a candidate without backtesting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			workspace, err := catalog.NewWorkspace(cfg.Workspace)
			if err != nil {
				return err
			}
			id, err := core.ParseStrategyID(args[0])
			if err != nil {
				return err
			}

			cand, err := workspace.Load(cmd.Context(), id)
			if err != nil {
				return err
			}
			rep := verify.New().Verify(cand)
			for _, c := range rep.Checks {
				marker := map[string]string{"pass": "ok", "warn": "WARN", "fail": "FAIL"}[string(c.Status)]
				fmt.Printf("  [%s] %s", marker, c.Name)
				if c.Message != "" {
					fmt.Printf(": %s", c.Message)
				}
				fmt.Println()
			}
			fmt.Printf("overall: %s\n", rep.Overall)
			return nil
		},
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "stop after code generation")
	cmd.Flags().BoolVar(&flagForce, "force", false, "re-run candidates that already have an outcome")
	cmd.Flags().BoolVar(&flagSkipVerify, "skip-verify", false, "skip structural verification")
	cmd.Flags().BoolVar(&flagForceLLM, "force-llm", false, "generate with the model even when a template matches")
	cmd.Flags().BoolVar(&flagLocal, "local", false, "run backtests locally instead of in the cloud")
	cmd.Flags().IntVar(&flagWindows, "windows", 0, "override the walk-forward window count (1, 2, 5, 12)")
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <strategy-id>",
		Short: "Validate one candidate end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := core.ParseStrategyID(args[0])
			if err != nil {
				return err
			}

			pipeline, _, cleanup, err := buildPipeline(cfg, app.Options{
				DryRun: flagDryRun, Force: flagForce,
				SkipVerify: flagSkipVerify,
			})
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext()
			defer cancel()

			result, err := pipeline.Run(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s", result.StrategyID, result.Determination)
			if result.Reason != "" {
				fmt.Printf(" (%s)", result.Reason)
			}
			fmt.Println()
			return nil
		},
	}
	addRunFlags(cmd)
	return cmd
}

func runAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Validate every pending candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if flagParallel > 0 {
				cfg.WalkFwd.Parallelism = flagParallel
			}
			pipeline, _, cleanup, err := buildPipeline(cfg, app.Options{
				DryRun: flagDryRun, Force: flagForce,
				SkipVerify: flagSkipVerify,
			})
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext()
			defer cancel()

			results, err := pipeline.RunAll(ctx)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("%s: %s\n", r.StrategyID, r.Determination)
			}
			return nil
		},
	}
	addRunFlags(cmd)
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "concurrent validations (default from config)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every candidate's bucket and determination",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			workspace, err := catalog.NewWorkspace(cfg.Workspace)
			if err != nil {
				return err
			}

			for _, status := range []string{"pending", "validated", "invalidated", "blocked"} {
				cands, err := workspace.List(cmd.Context(), strategyStatus(status))
				if err != nil {
					return err
				}
				fmt.Printf("%s (%d)\n", status, len(cands))
				for _, cand := range cands {
					line := "  " + string(cand.ID)
					if rec, err := workspace.LoadState(cmd.Context(), cand.ID); err == nil {
						line += fmt.Sprintf("  %s [%s]", rec.Outcome, rec.State)
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the validation report as markdown and a workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			workspace, err := catalog.NewWorkspace(cfg.Workspace)
			if err != nil {
				return err
			}

			rows, err := api.NewServer(workspace).Rows(cmd.Context())
			if err != nil {
				return err
			}

			mdPath := filepath.Join(output, "report.md")
			if err := os.WriteFile(mdPath, []byte(report.Markdown(rows)), 0o644); err != nil {
				return err
			}
			xlsxPath := filepath.Join(output, "report.xlsx")
			if err := report.WriteWorkbook(xlsxPath, rows); err != nil {
				return err
			}
			fmt.Printf("wrote %s and %s\n", mdPath, xlsxPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", ".", "directory to write reports into")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only status page over the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			workspace, err := catalog.NewWorkspace(cfg.Workspace)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return api.NewServer(workspace).ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
}

func strategyStatus(s string) strategy.Status {
	return strategy.Status(s)
}
