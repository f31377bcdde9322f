package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/sources"
)

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
	<title>Example Feed</title>
	<item>
		<title>Breaking story</title>
		<link>https://example.com/a</link>
		<description>Short summary.</description>
		<pubDate>Mon, 03 Aug 2026 10:00:00 GMT</pubDate>
	</item>
</channel></rss>`

func TestFetchParsesFeedItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	a := New(200, nil)
	items, err := a.Fetch(context.Background(), model.Source{ID: 1, URL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 feed item, got %d", len(items))
	}
	if items[0].Title != "Breaking story" {
		t.Errorf("expected title parsed from feed, got %q", items[0].Title)
	}
	if items[0].PublishedAt.IsZero() {
		t.Errorf("expected pubDate to be parsed into PublishedAt")
	}
}

func TestNeedsBodyExtractionBelowMinLength(t *testing.T) {
	a := New(500, nil)
	if !a.NeedsBodyExtraction(sources.CandidateArticle{Content: "short"}) {
		t.Errorf("expected short content to need body extraction")
	}
	long := ""
	for i := 0; i < 600; i++ {
		long += "x"
	}
	if a.NeedsBodyExtraction(sources.CandidateArticle{Content: long}) {
		t.Errorf("expected content over minContentLength to not need extraction")
	}
}
