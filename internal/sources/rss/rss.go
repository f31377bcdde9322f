// Package rss is C6's RSS/Atom adapter, built on
// github.com/mmcdole/gofeed — the teacher's feed parser, generalized from
// a flat feeds.yaml list (internal/rss/rss.go) into per-Source dispatch
// so each feed carries its own fetch_interval/enabled/error-count state.
package rss

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/sources"
)

// Adapter fetches a single RSS/Atom feed URL per model.Source.
type Adapter struct {
	parser           *gofeed.Parser
	minContentLength int
	logger           *slog.Logger
}

// New builds an RSS/Atom adapter. minContentLength mirrors
// MIN_CONTENT_LENGTH: feed bodies shorter than this are marked for
// extraction by C3 instead of being trusted as-is.
func New(minContentLength int, logger *slog.Logger) *Adapter {
	return &Adapter{parser: gofeed.NewParser(), minContentLength: minContentLength, logger: logger}
}

func (a *Adapter) Kind() model.SourceKind { return model.SourceRSS }

func (a *Adapter) Fetch(ctx context.Context, source model.Source) ([]sources.CandidateArticle, error) {
	feed, err := a.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]sources.CandidateArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		candidate := sources.CandidateArticle{
			SourceID:  source.ID,
			URL:       item.Link,
			Title:     item.Title,
			Content:   bestContent(item),
			FetchedAt: now,
		}
		if item.PublishedParsed != nil {
			candidate.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			candidate.PublishedAt = *item.UpdatedParsed
		}
		for _, enc := range item.Enclosures {
			if enc.URL != "" {
				candidate.MediaFiles = append(candidate.MediaFiles, enc.URL)
			}
		}
		items = append(items, candidate)
	}

	if a.logger != nil {
		a.logger.Info("rss feed fetched", "source", source.Name, "items", len(items))
	}
	return items, nil
}

func (a *Adapter) NeedsBodyExtraction(item sources.CandidateArticle) bool {
	return len(item.Content) < a.minContentLength
}

// bestContent prefers content:encoded (exposed by gofeed as item.Content)
// over the feed's short description/summary.
func bestContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}
