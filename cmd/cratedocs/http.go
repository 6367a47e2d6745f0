package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cratedocs/cratedocs/internal/config"
	"github.com/cratedocs/cratedocs/internal/engine"
	"github.com/cratedocs/cratedocs/sessions"
	"github.com/cratedocs/cratedocs/streaminghttp"
)

func newHTTPCommand() *cobra.Command {
	var (
		address string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Run the server with the HTTP/SSE interface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if address == "" {
				address = cfg.HTTPAddr
			}

			log := newLogger(os.Stderr, debug, cfg.LogLevel)

			h, err := streaminghttp.New(
				engine.New(newService(cfg, log), engine.WithLogger(log)),
				sessions.NewHub(),
				streaminghttp.WithLogger(log),
				streaminghttp.WithMaxBodySize(int64(cfg.MaxFrameSize)),
			)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              address,
				Handler:           h,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("server.start", "transport", "http", "addr", address, "endpoint", streaminghttp.DefaultEndpointPath)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				// Hanging SSE streams keep Shutdown from draining.
				_ = srv.Close()
			}
			log.Info("server.stop", "transport", "http")
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "address to bind the HTTP server to (default 127.0.0.1:8080)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	return cmd
}
