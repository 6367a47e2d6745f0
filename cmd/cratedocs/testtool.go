package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cratedocs/cratedocs/internal/config"
	"github.com/cratedocs/cratedocs/mcp"
)

const testHelp = `CrateDocs CLI tool tester

Usage examples:
  cratedocs test --tool lookup_crate --crate-name serde
  cratedocs test --tool lookup_crate --crate-name tokio --version 1.35.0
  cratedocs test --tool lookup_item --crate-name tokio --item-path sync::mpsc::Sender
  cratedocs test --tool search_crates --query logger --limit 5
  cratedocs test --tool search_crates --query logger --format json
  cratedocs test --tool lookup_crate --crate-name tokio --output tokio-docs.md

Available tools:
  lookup_crate   - Look up documentation for a Rust crate
  lookup_item    - Look up documentation for a specific item in a crate
                   Format: 'module::path::ItemName' (e.g., 'sync::mpsc::Sender')
  search_crates  - Search for crates on crates.io
  help           - Show this help information

Output options:
  --format       - Output format: markdown (default), text, json
  --output       - Write output to a file instead of stdout`

func newTestCommand() *cobra.Command {
	var (
		tool      string
		crateName string
		itemPath  string
		query     string
		crateVer  string
		limit     int
		format    string
		output    string
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Invoke a documentation tool directly from the CLI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tool == "help" {
				fmt.Fprintln(cmd.OutOrStdout(), testHelp)
				return nil
			}

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := newLogger(os.Stderr, debug, cfg.LogLevel)

			args := map[string]any{}
			switch tool {
			case "lookup_crate":
				if crateName == "" {
					return fmt.Errorf("--crate-name is required for lookup_crate")
				}
				args["crate_name"] = crateName
			case "lookup_item":
				if crateName == "" {
					return fmt.Errorf("--crate-name is required for lookup_item")
				}
				if itemPath == "" {
					return fmt.Errorf("--item-path is required for lookup_item")
				}
				args["crate_name"] = crateName
				args["item_path"] = itemPath
			case "search_crates":
				if query == "" {
					return fmt.Errorf("--query is required for search_crates")
				}
				args["query"] = query
				if limit > 0 {
					args["limit"] = limit
				}
			default:
				return fmt.Errorf("unknown tool: %s (try --tool help)", tool)
			}
			if crateVer != "" {
				args["version"] = crateVer
			}

			raw, err := json.Marshal(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("tool.test", "tool", tool)
			svc := newService(cfg, log)
			res, err := svc.Registry().Call(ctx, &mcp.CallToolRequest{Name: tool, Arguments: raw})
			if err != nil {
				return fmt.Errorf("%s: %w", tool, err)
			}

			for _, block := range res.Content {
				if block.Type != "text" {
					continue
				}
				rendered := renderOutput(format, block.Text)
				if output == "" {
					fmt.Fprintln(cmd.OutOrStdout(), rendered)
					continue
				}
				if dir := filepath.Dir(output); dir != "." {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return fmt.Errorf("create output directory: %w", err)
					}
				}
				if err := os.WriteFile(output, []byte(rendered+"\n"), 0o644); err != nil {
					return fmt.Errorf("write output file: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "lookup_crate", "the tool to test (lookup_crate, lookup_item, search_crates, help)")
	cmd.Flags().StringVar(&crateName, "crate-name", "", "crate name for lookup_crate and lookup_item")
	cmd.Flags().StringVar(&itemPath, "item-path", "", "item path for lookup_item (e.g. sync::mpsc::Sender)")
	cmd.Flags().StringVar(&query, "query", "", "search query for search_crates")
	cmd.Flags().StringVar(&crateVer, "version", "", "crate version (defaults to latest)")
	cmd.Flags().IntVar(&limit, "limit", 0, "result limit for search_crates")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format (markdown, text, json)")
	cmd.Flags().StringVar(&output, "output", "", "write output to a file instead of stdout")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	return cmd
}
