package main

import (
	"context"
	"fmt"

	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/workspaced"
	"github.com/spf13/cobra"
)

var (
	serveDir  string
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a directory as a workspace service",
	Long:  "Serve a directory over the workspace service HTTP contract, with Prometheus metrics at /metrics.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.ServeDir
		if cmd.Flags().Changed("dir") {
			dir = serveDir
		}
		addr := cfg.ServeAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		server, err := workspaced.New(dir)
		if err != nil {
			return fmt.Errorf("failed to create workspace server: %w", err)
		}
		return serve(cmd.Context(), server, addr)
	},
}

func serve(ctx context.Context, server *workspaced.Server, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()
	fmt.Printf("Serving %s on http://%s\n", server.Root(), addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down workspace server")
		if err := server.Stop(); err != nil {
			return err
		}
		return <-errCh
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveDir, "dir", "", "Directory to serve (default from config)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
