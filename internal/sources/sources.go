// Package sources implements C6: a typed registry of source adapters,
// one per model.SourceKind, behind a common capability interface. Grounded
// on the ports.ArticleSource interface and scanner.Registry pattern in
// Alekseyt9-ArticlesScanner (internal/ports/ports.go,
// internal/infrastructure/parser/strategy_source.go), generalized from a
// single fetch-all-sites call into per-Source dispatch keyed by kind.
package sources

import (
	"context"
	"time"

	"github.com/deusflow/newsagg/internal/model"
)

// CandidateArticle is what every adapter produces before smartfilter/AI
// have touched it.
type CandidateArticle struct {
	SourceID         int64
	URL              string
	Title            string
	Content          string // may be empty; NeedsExtraction signals C3 should fill it in
	Language         string
	PublishedAt      time.Time
	FetchedAt        time.Time
	MediaFiles       []string
	NeedsExtraction  bool
	ForwardedFrom    string // telegram-specific metadata, empty for other kinds
}

// Adapter is the capability every source kind implements: fetch, and
// whether a given candidate still needs C3 to fill in its body.
type Adapter interface {
	Kind() model.SourceKind
	Fetch(ctx context.Context, source model.Source) ([]CandidateArticle, error)
	NeedsBodyExtraction(item CandidateArticle) bool
}

// Registry dispatches a Source to its Adapter by kind.
type Registry struct {
	adapters map[model.SourceKind]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.SourceKind]Adapter)}
}

// Register adds adapter under its own Kind().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// Resolve returns the adapter registered for kind, or ok=false.
func (r *Registry) Resolve(kind model.SourceKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// Fetch dispatches source to its adapter, respecting fetch_interval and
// updating consecutive-error bookkeeping the way every adapter must.
// Callers persist the returned (possibly mutated)
// Source afterward.
func (r *Registry) Fetch(ctx context.Context, source *model.Source, maxConsecutiveErrors int) ([]CandidateArticle, error) {
	if !source.Enabled {
		return nil, nil
	}
	if !source.LastFetchedAt.IsZero() && time.Since(source.LastFetchedAt) < source.FetchInterval {
		return nil, nil
	}
	if maxConsecutiveErrors > 0 && source.ConsecutiveErr >= maxConsecutiveErrors {
		return nil, nil
	}

	adapter, ok := r.Resolve(source.Kind)
	if !ok {
		return nil, nil
	}

	items, err := adapter.Fetch(ctx, *source)
	source.LastFetchedAt = time.Now()
	if err != nil {
		source.ConsecutiveErr++
		source.LastError = err.Error()
		if source.ConsecutiveErr >= maxConsecutiveErrors {
			// Adapters never hard-disable a source; they only stop
			// actively fetching it until an operator intervenes.
			return nil, err
		}
		return nil, err
	}

	source.ConsecutiveErr = 0
	source.LastError = ""

	for i := range items {
		if items[i].FetchedAt.IsZero() {
			items[i].FetchedAt = source.LastFetchedAt
		}
		if items[i].PublishedAt.IsZero() {
			items[i].PublishedAt = items[i].FetchedAt
		}
		items[i].NeedsExtraction = adapter.NeedsBodyExtraction(items[i])
	}
	return items, nil
}
