package htmlutil

import (
	"net/url"
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing %q: %v", raw, err)
	}
	return u
}

func TestCanonicalURLStripsTrackingParams(t *testing.T) {
	base := mustParse(t, "https://example.com/news/")
	got, ok := CanonicalURL(base, "article-1?utm_source=newsletter&utm_medium=email&fbclid=abc&id=7")
	if !ok {
		t.Fatalf("expected a valid canonical URL")
	}
	if strings.Contains(got, "utm_") || strings.Contains(got, "fbclid") {
		t.Errorf("expected tracking params stripped, got %q", got)
	}
	if !strings.Contains(got, "id=7") {
		t.Errorf("expected non-tracking params preserved, got %q", got)
	}
}

func TestCanonicalURLRejectsFragmentsAndJavascript(t *testing.T) {
	base := mustParse(t, "https://example.com/")
	if _, ok := CanonicalURL(base, "#section"); ok {
		t.Errorf("expected fragment-only href to be rejected")
	}
	if _, ok := CanonicalURL(base, "javascript:void(0)"); ok {
		t.Errorf("expected javascript: href to be rejected")
	}
	if _, ok := CanonicalURL(base, ""); ok {
		t.Errorf("expected empty href to be rejected")
	}
}

func TestVisibleTextPreservesEmphasisMarkers(t *testing.T) {
	doc, err := ParseDocument(`<div>Some <strong>important</strong> and <em>subtle</em> text.</div>`)
	if err != nil {
		t.Fatalf("parsing document: %v", err)
	}
	got := VisibleText(doc.Find("div"))
	if !strings.Contains(got, "**important**") {
		t.Errorf("expected bold markers preserved, got %q", got)
	}
	if !strings.Contains(got, "_subtle_") {
		t.Errorf("expected em markers preserved, got %q", got)
	}
}

func TestVisibleTextSkipsScriptAndStyle(t *testing.T) {
	doc, err := ParseDocument(`<div>Visible<script>evil()</script><style>.x{}</style></div>`)
	if err != nil {
		t.Fatalf("parsing document: %v", err)
	}
	got := VisibleText(doc.Find("div"))
	if strings.Contains(got, "evil") || strings.Contains(got, ".x{}") {
		t.Errorf("expected script/style content dropped, got %q", got)
	}
}

func TestIsJunkLine(t *testing.T) {
	if !IsJunkLine("Accepter cookies for at fortsætte") {
		t.Errorf("expected cookie banner line to be flagged as junk")
	}
	if IsJunkLine("The president announced a new policy today.") {
		t.Errorf("expected ordinary sentence to not be flagged as junk")
	}
}

func TestHarvestMediaDedupesAndSkipsTrackingPixels(t *testing.T) {
	base := mustParse(t, "https://example.com/")
	doc, err := ParseDocument(`
		<div>
			<img src="/photo1.jpg">
			<img src="/photo1.jpg">
			<img src="https://doubleclick.net/pixel.gif">
			<video><source src="/clip.mp4"></video>
		</div>
	`)
	if err != nil {
		t.Fatalf("parsing document: %v", err)
	}
	media := HarvestMedia(base, doc.Find("div"))
	if len(media) != 2 {
		t.Fatalf("expected 2 deduplicated, non-tracking media URLs, got %d: %v", len(media), media)
	}
}
