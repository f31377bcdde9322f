package smartfilter

import (
	"testing"
	"time"
)

type fakeSeenChecker struct {
	seen map[string]bool
}

func (f fakeSeenChecker) SeenRecently(hash string, window time.Duration) bool {
	return f.seen[hash]
}

func TestContentHashIsStableAndCaseInsensitive(t *testing.T) {
	a := ContentHash("Breaking News", "Something happened today.")
	b := ContentHash("breaking news", "something happened today.")
	if a != b {
		t.Errorf("expected case-insensitive normalization to produce the same hash")
	}

	c := ContentHash("Breaking News", "Something else happened.")
	if a == c {
		t.Errorf("expected different content to produce a different hash")
	}
}

func TestSimilarityKeyBucketsByHostWordsAndWindow(t *testing.T) {
	c1 := Candidate{URL: "https://example.com/a", Title: "Major earthquake strikes region", PublishedAt: time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)}
	c2 := Candidate{URL: "https://example.com/b", Title: "Region strikes: MAJOR earthquake!", PublishedAt: time.Date(2026, 8, 3, 11, 0, 0, 0, time.UTC)}
	if SimilarityKey(c1) != SimilarityKey(c2) {
		t.Errorf("expected near-duplicate titles from the same host/window to collide:\n%s\n%s", SimilarityKey(c1), SimilarityKey(c2))
	}

	c3 := Candidate{URL: "https://other.com/a", Title: "Major earthquake strikes region", PublishedAt: c1.PublishedAt}
	if SimilarityKey(c1) == SimilarityKey(c3) {
		t.Errorf("expected different hosts to produce different similarity keys")
	}
}

func TestIsDuplicateChecksHashThenSimilarity(t *testing.T) {
	c := Candidate{URL: "https://example.com/a", Title: "Some Title", Content: "some content", PublishedAt: time.Now()}

	notSeen := fakeSeenChecker{seen: map[string]bool{}}
	if IsDuplicate(notSeen, c) {
		t.Errorf("expected not duplicate when nothing has been seen")
	}

	seenByHash := fakeSeenChecker{seen: map[string]bool{ContentHash(c.Title, c.Content): true}}
	if !IsDuplicate(seenByHash, c) {
		t.Errorf("expected duplicate when content hash was already seen")
	}

	seenBySimilarity := fakeSeenChecker{seen: map[string]bool{SimilarityKey(c): true}}
	if !IsDuplicate(seenBySimilarity, c) {
		t.Errorf("expected duplicate when similarity key was already seen")
	}
}

func TestLanguageAllowed(t *testing.T) {
	if !LanguageAllowed("en", false) {
		t.Errorf("expected en to always be allowed")
	}
	if !LanguageAllowed("RU", false) {
		t.Errorf("expected language matching to be case-insensitive")
	}
	if LanguageAllowed("da", false) {
		t.Errorf("expected non-allow-listed language to be rejected by default")
	}
	if !LanguageAllowed("da", true) {
		t.Errorf("expected source override to permit other languages")
	}
}

func TestIsBoilerplate(t *testing.T) {
	if !IsBoilerplate("too short") {
		t.Errorf("expected very short content to be treated as boilerplate")
	}
	longEnough := "This is a reasonably long piece of filler text to pass the length check easily."
	if IsBoilerplate(longEnough) {
		t.Errorf("expected ordinary long content to not be boilerplate")
	}
	if !IsBoilerplate(longEnough + " Please subscribe now for more updates like this one today.") {
		t.Errorf("expected subscribe-now marker to be detected as boilerplate")
	}
}

func TestLooksLikeAd(t *testing.T) {
	if !LooksLikeAd("This post is sponsored by our partner.") {
		t.Errorf("expected sponsored marker to be detected")
	}
	if LooksLikeAd("A perfectly ordinary news article with no markers.") {
		t.Errorf("expected ordinary content to not look like an ad")
	}
}
