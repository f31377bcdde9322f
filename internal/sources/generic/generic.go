// Package generic is C6's Generic adapter: it never fetches actively.
// External callers (tests, a push integration) deliver candidates via
// Push, and Fetch drains whatever has accumulated for that source since
// the last call.
package generic

import (
	"context"
	"sync"

	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/sources"
)

// Adapter holds a per-source inbox of pushed candidates.
type Adapter struct {
	mu     sync.Mutex
	inbox  map[int64][]sources.CandidateArticle
}

// New builds an empty Generic adapter.
func New() *Adapter {
	return &Adapter{inbox: make(map[int64][]sources.CandidateArticle)}
}

func (a *Adapter) Kind() model.SourceKind { return model.SourceGeneric }

// Push queues a candidate for sourceID, to be drained on the next Fetch.
func (a *Adapter) Push(sourceID int64, item sources.CandidateArticle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	item.SourceID = sourceID
	a.inbox[sourceID] = append(a.inbox[sourceID], item)
}

func (a *Adapter) Fetch(ctx context.Context, source model.Source) ([]sources.CandidateArticle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	items := a.inbox[source.ID]
	delete(a.inbox, source.ID)
	return items, nil
}

func (a *Adapter) NeedsBodyExtraction(item sources.CandidateArticle) bool {
	return item.Content == ""
}
