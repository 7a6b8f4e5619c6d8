package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/runpad/internal/config"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errRunFailed reports a program that ran but did not succeed. Its output
// has already been printed.
var errRunFailed = errors.New("program failed")

var (
	configPath   string
	logLevel     string
	workspaceURL string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "runpad",
	Short: "Local-first workspace for running code in terminal tabs",
	Long: `runpad keeps a virtual workspace of source files (local edits layered over
an optional workspace service) and runs them through remote execution
services, either as one-shot batch jobs or as interactive sessions.

Without a subcommand, runpad opens the terminal UI when attached to a TTY.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return cmd.Help()
		}
		return runTUI(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (JSON); defaults to the per-user config path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	rootCmd.PersistentFlags().StringVar(&workspaceURL, "workspace-url", "", "Workspace service base URL; empty string means local only")
}

// setup loads configuration and initializes logging for every subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}

	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c.ApplyEnv()
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = logLevel
	}
	if cmd.Flags().Changed("workspace-url") {
		c.WorkspaceURL = workspaceURL
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.ParseLevel(c.LogLevel), c.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Debug("Configuration loaded: workspace_url=%s, execution_url=%s, interactive_url=%s",
		c.WorkspaceURL, c.ExecutionURL, c.InteractiveURL)

	cfg = c
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
