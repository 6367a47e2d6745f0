package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cratedocs/cratedocs/docsrs"
	"github.com/cratedocs/cratedocs/docsvc"
	"github.com/cratedocs/cratedocs/internal/config"
	"github.com/cratedocs/cratedocs/internal/logctx"
)

const version = "0.2.0"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cratedocs",
		Short:         "Rust crate documentation server for the Model Context Protocol",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newStdioCommand())
	root.AddCommand(newHTTPCommand())
	root.AddCommand(newTestCommand())
	return root
}

// newLogger builds the process logger: JSON records to w, enriched with
// context-carried request/session/tool attributes.
func newLogger(w io.Writer, debug bool, level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch {
	case debug:
		lvl = slog.LevelDebug
	default:
		switch level {
		case "debug":
			lvl = slog.LevelDebug
		case "warn":
			lvl = slog.LevelWarn
		case "error":
			lvl = slog.LevelError
		}
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(logctx.Handler{Handler: h})
}

// newService wires the live collaborators into a documentation service.
func newService(cfg config.Config, log *slog.Logger) *docsvc.Service {
	client := docsrs.NewClient(
		docsrs.WithTimeout(cfg.FetchTimeout),
		docsrs.WithLogger(log),
	)
	return docsvc.NewService(client, client, docsvc.WithLogger(log))
}
