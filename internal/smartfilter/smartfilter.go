// Package smartfilter implements C5: the gate every candidate article
// passes through before an AI call is ever spent on it. Three checks run
// in order — hash/link dedup, language allow-list, boilerplate/ad
// pre-filter — generalizing the teacher's internal/news.go dedup and
// scoring logic (makeNewsKey, makeSimilarityKey, containsAny) away from
// its hardcoded Danish/Ukrainian keyword taxonomy toward a generic
// template-match and regex-marker gate design.
package smartfilter

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Candidate is the minimal shape smartfilter needs from an ingested item.
type Candidate struct {
	URL         string
	Title       string
	Content     string
	Language    string
	PublishedAt time.Time
}

// SeenChecker reports whether a hash/link has already been seen within
// the dedup window, or is already persisted. Implemented by
// internal/persistqueue; kept narrow per the capability-interface
// Design Note.
type SeenChecker interface {
	SeenRecently(hash string, window time.Duration) bool
}

const similarityWindow = 6 * time.Hour

// stopwords mirror the teacher's significant-word filter used to build a
// similarity key from title text.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "have": true, "will": true, "are": true,
	"was": true, "were": true, "has": true, "not": true, "but": true,
}

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)subscribe now`),
	regexp.MustCompile(`(?i)accept (all )?cookies`),
	regexp.MustCompile(`(?i)sign up for our newsletter`),
	regexp.MustCompile(`(?i)404 not found`),
	regexp.MustCompile(`(?i)page not found`),
}

var adMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsponsored\b`),
	regexp.MustCompile(`(?i)\bpromo code\b`),
	regexp.MustCompile(`(?i)\baffiliate link\b`),
	regexp.MustCompile(`(?i)\bреклама\b`),
	regexp.MustCompile(`(?i)\bbuy now\b.{0,20}\bdiscount\b`),
}

var allowedLanguages = map[string]bool{"ru": true, "en": true}

// ContentHash computes the stable dedup digest of a normalized
// title+body pair.
func ContentHash(title, content string) string {
	h := sha1.New()
	h.Write([]byte(normalize(title) + "|" + normalize(content)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SimilarityKey buckets near-duplicate coverage of the same event: host +
// top-6 significant title words + a 6-hour time window, mirroring the
// teacher's makeSimilarityKey.
func SimilarityKey(c Candidate) string {
	host := ""
	if u, err := url.Parse(c.URL); err == nil {
		host = u.Host
	}
	words := significantWords(c.Title, 6)
	bucket := c.PublishedAt.Truncate(similarityWindow).Unix()
	return host + "|" + strings.Join(words, "-") + "|" + itoa(bucket)
}

func significantWords(title string, limit int) []string {
	fields := strings.Fields(normalize(title))
	var sig []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]")
		if len(f) < 3 || stopwords[f] {
			continue
		}
		sig = append(sig, f)
	}
	sort.Strings(sig)
	if len(sig) > limit {
		sig = sig[:limit]
	}
	return sig
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IsDuplicate reports whether c should be dropped as a duplicate: its
// content hash was seen in the last 24h, or its similarity key collides
// with a recently-seen item.
func IsDuplicate(seen SeenChecker, c Candidate) bool {
	hash := ContentHash(c.Title, c.Content)
	if seen.SeenRecently(hash, 24*time.Hour) {
		return true
	}
	return seen.SeenRecently(SimilarityKey(c), similarityWindow)
}

// LanguageAllowed reports whether lang may proceed: ru/en always do;
// anything else only if the source explicitly allows it.
func LanguageAllowed(lang string, sourceAllowsOthers bool) bool {
	lang = strings.ToLower(lang)
	if allowedLanguages[lang] {
		return true
	}
	return sourceAllowsOthers
}

// IsBoilerplate reports whether content matches a known
// navigation/boilerplate template instead of real article text.
func IsBoilerplate(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 50 {
		return true
	}
	for _, p := range boilerplatePatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// LooksLikeAd reports whether content matches a probable-ad regex
// marker. This is a pre-filter only: analyze_article_complete (C7) still
// makes the final ad/not-ad call.
func LooksLikeAd(content string) bool {
	for _, p := range adMarkerPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}
