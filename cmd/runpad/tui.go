package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/codefionn/runpad/internal/execution"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal UI",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context())
	},
}

func runTUI(ctx context.Context) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("the terminal UI needs an interactive terminal")
	}

	a := openApp(cfg)
	defer a.close()

	model := tui.New(ctx, tui.Options{
		Workspace:    a.ws,
		Runner:       execution.NewBatchRunner(cfg.ExecutionURL),
		Dialer:       execution.NewWebsocketDialer(cfg.InteractiveURL),
		Capacity:     cfg.ScrollbackLines,
		Prompt:       cfg.Prompt,
		BatchTimeout: cfg.BatchTimeout(),
	})
	defer model.Shutdown()

	logger.Info("runpad starting")
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
