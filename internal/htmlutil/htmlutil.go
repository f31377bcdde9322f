// Package htmlutil provides the HTML normalization helpers shared by every
// extraction strategy in internal/extractor (C2): URL canonicalization,
// visible-text extraction that preserves inline emphasis, and media
// harvesting. Built on goquery, the same HTML toolkit the rest of this
// module's scraping code uses.
package htmlutil

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// trackingPixelDomains lists the tracking-pixel and ad-network hosts skipped
// when harvesting media.
var trackingPixelDomains = []string{
	"doubleclick.net", "googlesyndication.com", "scorecardresearch.com",
	"facebook.com/tr", "google-analytics.com", "adnxs.com",
}

var junkTextIndicators = []string{
	"cookie", "gdpr", "privatlivspolitik", "abonnement",
	"tilmeld dig nyhedsbrevet", "log ind", "opret bruger",
	"læs mere på", "klik her for at", "følg os på",
	"del artiklen", "print artiklen", "send til en ven", "gem artiklen",
}

// CanonicalURL resolves href against base and strips common tracking query
// parameters (utm_*, fbclid, gclid) so the same article reached via
// different campaign links normalizes to one URL.
func CanonicalURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	q := resolved.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || lower == "fbclid" || lower == "gclid" {
			q.Del(key)
		}
	}
	resolved.RawQuery = q.Encode()
	resolved.Fragment = ""
	return resolved.String(), true
}

// VisibleText extracts the rendered text of sel, preserving strong/em
// inline emphasis as plain markers ("**bold**", "_em_") rather than
// dropping them, keeping link text without a marker, and collapsing
// internal whitespace.
func VisibleText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				return
			}
			switch goquery.NodeName(c) {
			case "strong", "b":
				b.WriteString("**")
				walk(c)
				b.WriteString("**")
			case "em", "i":
				b.WriteString("_")
				walk(c)
				b.WriteString("_")
			case "a":
				walk(c)
			case "br":
				b.WriteString("\n")
			case "script", "style", "noscript":
				// skip
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	return collapseWhitespace(b.String())
}

var wsRe = regexp.MustCompile(`[ \t]+`)

func collapseWhitespace(s string) string {
	s = wsRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// IsJunkLine reports whether line matches a known boilerplate phrase
// (cookie banners, share prompts, newsletter signup) that should be
// dropped from extracted body text.
func IsJunkLine(line string) bool {
	lower := strings.ToLower(line)
	for _, indicator := range junkTextIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// HarvestMedia collects ordered, deduplicated media URLs (img/src,
// img/data-src, video/source/src) from doc, skipping tracking pixels and
// known ad-network domains.
func HarvestMedia(base *url.URL, doc *goquery.Selection) []string {
	seen := make(map[string]bool)
	var media []string

	add := func(raw string) {
		resolved, ok := CanonicalURL(base, raw)
		if !ok || seen[resolved] || isTrackingOrAdURL(resolved) {
			return
		}
		seen[resolved] = true
		media = append(media, resolved)
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src)
		} else if src, ok := s.Attr("data-src"); ok {
			add(src)
		}
	})
	doc.Find("video source, video").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src)
		}
	})

	return media
}

func isTrackingOrAdURL(u string) bool {
	lower := strings.ToLower(u)
	for _, d := range trackingPixelDomains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// ParseDocument parses raw HTML bytes into a goquery document.
func ParseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
