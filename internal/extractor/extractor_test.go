package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/newsagg/internal/htmlutil"
	"github.com/deusflow/newsagg/internal/httpfetch"
)

func longParagraph(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		b.WriteString("substantive ")
	}
	b.WriteString("content.")
	return b.String()
}

func TestExtractSucceedsWithoutExtractionMemory(t *testing.T) {
	body := "<html><head><title>Fallback Page</title></head><body>" +
		"<h1>A Real Headline</h1>" +
		"<div class=\"article-body\"><p>" + longParagraph(60) + "</p>" +
		"<p>" + longParagraph(60) + "</p></div>" +
		"</body></html>"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	fetcher := httpfetch.New(4, 2, time.Second)
	e := New(fetcher, nil, nil, nil)

	result, err := e.Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Title != "A Real Headline" {
		t.Errorf("expected headline extracted, got %q", result.Title)
	}
	if len(result.Content) < MinQualityContentLen {
		t.Errorf("expected extracted content to clear the quality gate, got length %d", len(result.Content))
	}
}

func TestExtractFailsWhenContentTooShort(t *testing.T) {
	body := "<html><body><article><p>too short</p></article></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	fetcher := httpfetch.New(4, 2, time.Second)
	e := New(fetcher, nil, nil, nil)

	_, err := e.Extract(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected an error when no strategy clears the quality gate")
	}
}

func TestTryStructuredDataPrefersArticleBody(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"@type":"NewsArticle","articleBody":"` + longParagraph(50) + `"}</script>
	</head><body></body></html>`
	doc, err := htmlutil.ParseDocument(html)
	if err != nil {
		t.Fatalf("parsing html: %v", err)
	}
	content, selector, err := tryStructuredData(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selector != "ld+json:articleBody" {
		t.Errorf("expected ld+json selector label, got %q", selector)
	}
	if !strings.Contains(content, "substantive") {
		t.Errorf("expected articleBody content recovered, got %q", content)
	}
}

func TestTryRankedSelectorsFindsFirstMatchingEntry(t *testing.T) {
	html := `<html><body><div class="entry-content"><p>` + longParagraph(30) + `</p></div></body></html>`
	doc, err := htmlutil.ParseDocument(html)
	if err != nil {
		t.Fatalf("parsing html: %v", err)
	}
	content, selector, err := tryRankedSelectors(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selector != ".entry-content p" {
		t.Errorf("expected the entry-content selector to match, got %q", selector)
	}
	if content == "" {
		t.Errorf("expected non-empty content")
	}
}

func TestCleanContentDropsJunkLinesAndShortFragments(t *testing.T) {
	raw := "Accepter cookies for at fortsætte.\n" + longParagraph(10) + "\nok"
	got := cleanContent(raw)
	if strings.Contains(strings.ToLower(got), "cookies") {
		t.Errorf("expected junk line dropped, got %q", got)
	}
}

func TestCleanContentTruncatesAtMaxContentRunesPreservingParagraphs(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 30; i++ {
		paragraphs = append(paragraphs, longParagraph(40))
	}
	raw := strings.Join(paragraphs, "\n\n")
	got := cleanContent(raw)
	if len([]rune(got)) > MaxContentRunes {
		t.Errorf("expected truncation to respect MaxContentRunes, got length %d", len([]rune(got)))
	}
}

func TestQualityScoreRewardsLengthAndParagraphCount(t *testing.T) {
	short := qualityScore("too short")
	long := qualityScore(strings.Repeat("word ", 500) + "\n\n" + strings.Repeat("word ", 500) + "\n\n" + strings.Repeat("word ", 500))
	if long <= short {
		t.Errorf("expected longer, multi-paragraph content to score higher: short=%v long=%v", short, long)
	}
	if qualityScore("") != 0 {
		t.Errorf("expected empty content to score zero")
	}
}

func TestExtractTitlePrefersH1(t *testing.T) {
	doc, err := htmlutil.ParseDocument(`<html><head><title>Page Title</title></head><body><h1>Headline</h1></body></html>`)
	if err != nil {
		t.Fatalf("parsing html: %v", err)
	}
	if got := extractTitle(doc); got != "Headline" {
		t.Errorf("extractTitle = %q, want %q", got, "Headline")
	}
}
