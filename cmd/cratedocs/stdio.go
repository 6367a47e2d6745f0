package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cratedocs/cratedocs/internal/config"
	"github.com/cratedocs/cratedocs/internal/engine"
	"github.com/cratedocs/cratedocs/stdio"
)

func newStdioCommand() *cobra.Command {
	var (
		debug   bool
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Run the server on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if logFile == "" {
				logFile = cfg.LogFile
			}

			// Stdout carries frames, so the log goes to a file.
			if logFile == "" {
				if err := os.MkdirAll("logs", 0o755); err != nil {
					return fmt.Errorf("create log directory: %w", err)
				}
				logFile = filepath.Join("logs", fmt.Sprintf("stdio-server-%d.log", os.Getpid()))
			}
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()

			log := newLogger(f, debug, cfg.LogLevel)
			log.Info("server.start", "transport", "stdio", "version", version)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			h := stdio.NewHandler(
				engine.New(newService(cfg, log), engine.WithLogger(log)),
				stdio.WithLogger(log),
				stdio.WithMaxFrameSize(cfg.MaxFrameSize),
			)
			err = h.Serve(ctx)
			log.Info("server.stop", "transport", "stdio")
			return err
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file path (default logs/stdio-server-<pid>.log)")
	return cmd
}
