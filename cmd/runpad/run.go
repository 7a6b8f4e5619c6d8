package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/execution"
	"github.com/codefionn/runpad/internal/language"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/terminal"
	"github.com/spf13/cobra"
)

var runMode string

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Run a workspace file",
	Long: `Run a workspace file through the execution services.

Programs that read standard input run interactively: stdin lines are sent to
the program as they are typed. Everything else runs as a batch job.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cfg)
		defer a.close()

		ctx := cmd.Context()
		p := args[0]
		code, err := a.ws.Open(ctx, p)
		if err != nil {
			return err
		}
		lang := language.Detect(p)
		if !language.Runnable(lang) {
			return apperr.Errorf(apperr.KindValidation, "cannot run %s files: %s", lang, p)
		}

		mode := execution.Classify(lang, code)
		switch runMode {
		case "", "auto":
		case string(execution.ModeBatch):
			mode = execution.ModeBatch
		case string(execution.ModeInteractive):
			mode = execution.ModeInteractive
		default:
			return fmt.Errorf("unknown mode %q (want auto, batch or interactive)", runMode)
		}
		logger.Info("Running %s as %s (%s)", p, lang, mode)

		if mode == execution.ModeBatch {
			return runBatch(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), lang, code)
		}
		return runInteractive(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), lang, code)
	},
}

func runBatch(ctx context.Context, stdout, stderr io.Writer, lang, code string) error {
	runner := execution.NewBatchRunner(cfg.ExecutionURL)
	res, err := runner.Run(ctx, lang, code, cfg.BatchTimeout())
	if err != nil {
		return err
	}
	io.WriteString(stdout, res.Stdout)
	io.WriteString(stderr, res.Stderr)
	if !res.Success {
		return errRunFailed
	}
	return nil
}

// consoleSink writes session output straight to the process streams.
type consoleSink struct {
	out, errOut io.Writer
	errStyle    func(...string) string
}

func (c *consoleSink) WriteStdout(text string) { io.WriteString(c.out, text) }
func (c *consoleSink) WriteStderr(text string) { io.WriteString(c.errOut, text) }
func (c *consoleSink) WriteError(text string)  { fmt.Fprintln(c.errOut, c.errStyle(text)) }
func (c *consoleSink) ShowPrompt()             {}

func runInteractive(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, lang, code string) error {
	sink := &consoleSink{out: stdout, errOut: stderr, errStyle: terminal.DefaultStyles().Error.Render}
	sess := execution.NewSession(execution.NewWebsocketDialer(cfg.InteractiveURL), sink)
	if err := sess.Open(ctx, lang, code); err != nil {
		return err
	}
	defer sess.Close()

	go func() {
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if err := sess.SendLine(scanner.Text()); err != nil {
				logger.Debug("Stopped forwarding stdin: %v", err)
				return
			}
		}
	}()

	select {
	case <-sess.Done():
	case <-ctx.Done():
		return nil
	}
	if sess.Err() != nil {
		return errRunFailed
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "auto", "Execution mode: auto, batch or interactive")
	rootCmd.AddCommand(runCmd)
}
