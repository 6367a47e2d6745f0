// Package docsrs implements the upstream collaborators: a docs.rs client
// for crate and item documentation pages and a crates.io client for the
// package-index search API. The dispatch layer treats both as opaque,
// possibly slow, possibly failing network calls.
package docsrs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cratedocs/cratedocs/docsvc"
)

const (
	defaultDocsBaseURL  = "https://docs.rs"
	defaultIndexBaseURL = "https://crates.io"
	defaultTimeout      = 30 * time.Second
	userAgent           = "cratedocs/0.2 (+https://github.com/cratedocs/cratedocs)"
)

// FetchError reports an upstream HTTP failure. A zero StatusCode means the
// request never produced a response (dial failure, timeout).
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client talks to docs.rs and crates.io. It implements docsvc.Fetcher and
// docsvc.Searcher.
type Client struct {
	http      *http.Client
	log       *slog.Logger
	docsBase  string
	indexBase string
}

var (
	_ docsvc.Fetcher  = (*Client)(nil)
	_ docsvc.Searcher = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds every upstream request. This is the caller-configurable
// timeout boundary of the system; a timeout surfaces as a FetchError.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDocsBaseURL overrides the docs.rs origin. Used by tests.
func WithDocsBaseURL(base string) Option {
	return func(c *Client) { c.docsBase = strings.TrimRight(base, "/") }
}

// WithIndexBaseURL overrides the crates.io origin. Used by tests.
func WithIndexBaseURL(base string) Option {
	return func(c *Client) { c.indexBase = strings.TrimRight(base, "/") }
}

// NewClient constructs a Client with production defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		log:       slog.Default(),
		docsBase:  defaultDocsBaseURL,
		indexBase: defaultIndexBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchCrateDocs retrieves the crate-level documentation page. An empty
// version means the latest release.
func (c *Client) FetchCrateDocs(ctx context.Context, name, version string) (string, error) {
	v := strings.TrimSpace(version)
	var target string
	if v == "" {
		target = fmt.Sprintf("%s/crate/%s/", c.docsBase, url.PathEscape(strings.TrimSpace(name)))
	} else {
		target = fmt.Sprintf("%s/crate/%s/%s/", c.docsBase, url.PathEscape(strings.TrimSpace(name)), url.PathEscape(v))
	}
	return c.fetchPage(ctx, target)
}

// FetchItemDocs retrieves the documentation page for one item, translating
// the Rust path separator into the docs.rs URL layout.
func (c *Client) FetchItemDocs(ctx context.Context, name, itemPath, version string) (string, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "latest"
	}
	pathPart := strings.ReplaceAll(strings.TrimSpace(itemPath), "::", "/")
	target := fmt.Sprintf("%s/%s/%s/%s/", c.docsBase, url.PathEscape(strings.TrimSpace(name)), url.PathEscape(v), pathPart)
	return c.fetchPage(ctx, target)
}

// Search queries the crates.io search API. Results arrive in the index's
// relevance order and are returned unreordered.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]docsvc.CrateSummary, error) {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(query))
	q.Set("per_page", strconv.Itoa(limit))
	target := fmt.Sprintf("%s/api/v1/crates?%s", c.indexBase, q.Encode())

	body, err := c.fetchPage(ctx, target)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Crates []struct {
			Name        string `json:"name"`
			MaxVersion  string `json:"max_version"`
			Description string `json:"description"`
			Downloads   int64  `json:"downloads"`
		} `json:"crates"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("decode search response: %w", err)}
	}

	out := make([]docsvc.CrateSummary, 0, len(envelope.Crates))
	for _, cr := range envelope.Crates {
		out = append(out, docsvc.CrateSummary{
			Name:        cr.Name,
			MaxVersion:  cr.MaxVersion,
			Description: cr.Description,
			Downloads:   cr.Downloads,
		})
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, target string) (string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "upstream.fetch.fail", slog.String("url", target), slog.String("err", err.Error()))
		return "", &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.log.InfoContext(ctx, "upstream.fetch.miss", slog.String("url", target))
		return "", fmt.Errorf("%s: %w", target, docsvc.ErrUpstreamNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.WarnContext(ctx, "upstream.fetch.status", slog.String("url", target), slog.Int("status", resp.StatusCode))
		return "", &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: target, Err: fmt.Errorf("read response body: %w", err)}
	}
	c.log.DebugContext(ctx, "upstream.fetch.ok",
		slog.String("url", target),
		slog.Int("bytes", len(body)),
		slog.Duration("dur", time.Since(start)))
	return string(body), nil
}

// IsNotFound reports whether err means the upstream resource is absent
// rather than temporarily unavailable.
func IsNotFound(err error) bool {
	return errors.Is(err, docsvc.ErrUpstreamNotFound)
}
