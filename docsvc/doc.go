// Package docsvc is the dispatch layer between a decoded tool invocation
// and the documentation sources. It owns the static tool registry, argument
// validation, cache-key normalization, and the single-flight cache
// consultation; the actual network fetches are delegated to the Fetcher and
// Searcher collaborators.
package docsvc
