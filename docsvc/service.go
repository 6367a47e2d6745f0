package docsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cratedocs/cratedocs/doccache"
	"github.com/cratedocs/cratedocs/internal/logctx"
	"github.com/cratedocs/cratedocs/mcp"
)

// ServerName identifies this server during the initialize handshake.
const ServerName = "rust-docs"

// Instructions is the server's capability advertisement shown to clients.
const Instructions = "This server provides tools for looking up Rust crate documentation. " +
	"You can search for crates, lookup documentation for specific crates or " +
	"items within crates. Use these tools to find information about Rust libraries " +
	"you are not familiar with."

const (
	// DefaultSearchLimit applies when the caller omits limit.
	DefaultSearchLimit = 10
	// MaxSearchLimit silently clamps caller-supplied limits.
	MaxSearchLimit = 100
)

// Fetcher retrieves raw documentation content. Implementations are opaque,
// possibly slow, possibly failing network calls; they own the request
// timeout.
type Fetcher interface {
	FetchCrateDocs(ctx context.Context, name, version string) (string, error)
	FetchItemDocs(ctx context.Context, name, itemPath, version string) (string, error)
}

// Searcher queries the package index.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]CrateSummary, error)
}

// ErrUpstreamNotFound is the sentinel collaborators return when the
// upstream reports the crate or item does not exist (as opposed to a
// transient failure).
var ErrUpstreamNotFound = errors.New("upstream resource not found")

// CrateSummary is one search result, in the index's relevance order.
type CrateSummary struct {
	Name        string `json:"name"`
	MaxVersion  string `json:"max_version"`
	Description string `json:"description,omitempty"`
	Downloads   int64  `json:"downloads,omitempty"`
}

// Service validates invocations, consults the caches, and delegates misses
// to the collaborators. One Service is shared by every transport in the
// process, so the single-flight guarantee holds across transports.
type Service struct {
	log      *slog.Logger
	fetcher  Fetcher
	searcher Searcher
	docs     *doccache.Cache[string]
	searches *doccache.Cache[[]CrateSummary]
	registry *Registry
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires the dispatch layer. The registry is fixed here; nothing
// mutates it afterward.
func NewService(fetcher Fetcher, searcher Searcher, opts ...ServiceOption) *Service {
	s := &Service{
		log:      slog.Default(),
		fetcher:  fetcher,
		searcher: searcher,
		docs:     doccache.New[string](),
		searches: doccache.New[[]CrateSummary](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = NewRegistry(s.tools()...)
	return s
}

// Registry exposes the static tool catalog.
func (s *Service) Registry() *Registry {
	return s.registry
}

// LookupCrate returns crate-level documentation, from cache when possible.
func (s *Service) LookupCrate(ctx context.Context, name, version string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &InvalidArgumentsError{Field: "crate_name", Reason: "must not be empty"}
	}

	key := doccache.CrateKey(name, version)
	content, err := s.docs.GetOrFetch(ctx, key, func(ctx context.Context) (string, error) {
		s.log.InfoContext(ctx, "lookup_crate.fetch", slog.String("crate", name), slog.String("version", orLatest(version)))
		return s.fetcher.FetchCrateDocs(ctx, name, version)
	})
	if err != nil {
		if errors.Is(err, ErrUpstreamNotFound) {
			return "", &NotFoundError{Crate: name}
		}
		return "", &LookupError{Crate: name, Err: err}
	}
	return content, nil
}

// LookupItem returns documentation for one item within a crate.
func (s *Service) LookupItem(ctx context.Context, name, itemPath, version string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &InvalidArgumentsError{Field: "crate_name", Reason: "must not be empty"}
	}
	if doccache.NormalizeItemPath(itemPath) == "" {
		return "", &InvalidArgumentsError{Field: "item_path", Reason: "must not be empty"}
	}

	key := doccache.ItemKey(name, itemPath, version)
	content, err := s.docs.GetOrFetch(ctx, key, func(ctx context.Context) (string, error) {
		s.log.InfoContext(ctx, "lookup_item.fetch",
			slog.String("crate", name),
			slog.String("item_path", itemPath),
			slog.String("version", orLatest(version)))
		return s.fetcher.FetchItemDocs(ctx, name, itemPath, version)
	})
	if err != nil {
		if errors.Is(err, ErrUpstreamNotFound) {
			return "", &NotFoundError{Crate: name, ItemPath: itemPath}
		}
		return "", &LookupError{Crate: name, Err: err}
	}
	return content, nil
}

// SearchCrates queries the package index, preserving its relevance order.
// The limit defaults to DefaultSearchLimit and is clamped to
// [1, MaxSearchLimit]; it never fails merely for being out of range.
func (s *Service) SearchCrates(ctx context.Context, query string, limit int) ([]CrateSummary, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &InvalidArgumentsError{Field: "query", Reason: "must not be empty"}
	}
	limit = clampLimit(limit)

	key := doccache.SearchKey(query, limit)
	results, err := s.searches.GetOrFetch(ctx, key, func(ctx context.Context) ([]CrateSummary, error) {
		s.log.InfoContext(ctx, "search_crates.fetch", slog.String("query", query), slog.Int("limit", limit))
		return s.searcher.Search(ctx, query, limit)
	})
	if err != nil {
		return nil, &LookupError{Query: query, Err: err}
	}
	return results, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return limit
	}
}

func orLatest(version string) string {
	if strings.TrimSpace(version) == "" {
		return doccache.LatestVersion
	}
	return version
}

// tools declares the static tool surface. Descriptor order here is the
// order clients see in tools/list.
func (s *Service) tools() []StaticTool {
	type lookupCrateArgs struct {
		CrateName string `json:"crate_name" jsonschema:"description=The name of the crate to look up"`
		Version   string `json:"version,omitempty" jsonschema:"description=The version of the crate. Defaults to latest"`
	}
	type searchCratesArgs struct {
		Query string `json:"query" jsonschema:"description=The search query"`
		Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results to return. Defaults to 10; capped at 100"`
	}
	type lookupItemArgs struct {
		CrateName string `json:"crate_name" jsonschema:"description=The name of the crate"`
		ItemPath  string `json:"item_path" jsonschema:"description=Path to the item such as 'std::vec::Vec'"`
		Version   string `json:"version,omitempty" jsonschema:"description=The version of the crate. Defaults to latest"`
	}

	return []StaticTool{
		NewTool("lookup_crate", func(ctx context.Context, args lookupCrateArgs) (*mcp.CallToolResult, error) {
			ctx = logctx.WithToolCall(ctx, &logctx.ToolCall{Name: "lookup_crate"})
			content, err := s.LookupCrate(ctx, args.CrateName, args.Version)
			if err != nil {
				return nil, err
			}
			return textResult(content), nil
		}, WithToolDescription("Look up documentation for a Rust crate")),

		NewTool("search_crates", func(ctx context.Context, args searchCratesArgs) (*mcp.CallToolResult, error) {
			ctx = logctx.WithToolCall(ctx, &logctx.ToolCall{Name: "search_crates"})
			results, err := s.SearchCrates(ctx, args.Query, args.Limit)
			if err != nil {
				return nil, err
			}
			return textResult(formatSummaries(results)), nil
		}, WithToolDescription("Search for Rust crates on crates.io")),

		NewTool("lookup_item", func(ctx context.Context, args lookupItemArgs) (*mcp.CallToolResult, error) {
			ctx = logctx.WithToolCall(ctx, &logctx.ToolCall{Name: "lookup_item"})
			content, err := s.LookupItem(ctx, args.CrateName, args.ItemPath, args.Version)
			if err != nil {
				return nil, err
			}
			return textResult(content), nil
		}, WithToolDescription("Look up documentation for a specific item in a Rust crate")),
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.NewTextContent(text)}}
}

// formatSummaries renders search results as a compact listing, one crate
// per line, preserving relevance order.
func formatSummaries(results []CrateSummary) string {
	if len(results) == 0 {
		return "No crates found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, r.Name, r.MaxVersion)
		if r.Description != "" {
			fmt.Fprintf(&b, " - %s", r.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
