// Package extractor implements C3, the multi-strategy content extractor.
// Strategies are tried in a fixed cost-ascending order, each consulting
// (and in turn updating) internal/extractmem so a domain converges on its
// cheapest working strategy over time. Built on goquery via
// internal/htmlutil, grounded on the teacher's internal/scraper.go
// per-domain selector dispatch, generalized into a ranked, data-driven
// selector table (selectors.go) instead of a hostname switch.
package extractor

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsagg/internal/apperr"
	"github.com/deusflow/newsagg/internal/extractmem"
	"github.com/deusflow/newsagg/internal/htmlutil"
	"github.com/deusflow/newsagg/internal/httpfetch"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/smartfilter"
)

// MaxContentRunes truncates extracted content at a sentence boundary once
// it would otherwise exceed this, preserving full paragraphs (mirrors the
// teacher's 1800-char cap in cleanContent, generalized to runes).
const MaxContentRunes = 1800

// MinQualityContentLen is the quality-gate floor: below this, extraction
// is treated as having failed even though a strategy returned something.
const MinQualityContentLen = 200

// Quality gate thresholds: minimum letter-to-character ratio (catches
// markup soup and link farms that slipped past a selector), minimum
// sentence count (catches nav/boilerplate lists masquerading as prose),
// and the composite score floor a strategy's content must clear.
const (
	minLetterRatio   = 0.6
	minSentenceCount = 2
	qualityGateFloor = 0.35

	// defaultRenderTimeoutMS mirrors extractmem's default budget, used
	// before any per-domain adaptive timeout has been recorded.
	defaultRenderTimeoutMS = 8000
)

// SelectorDiscoverer is the narrow capability strategy 6 needs from C7:
// given raw HTML, propose a CSS selector likely to hold the article body.
type SelectorDiscoverer interface {
	ExtractSelectors(ctx context.Context, html, url string) (selector string, err error)
}

// Result is a successfully extracted article body plus the provenance
// needed to feed back into extraction memory.
type Result struct {
	Title         string
	Content       string
	PublishedAt   time.Time
	Media         []string
	Strategy      model.ExtractionStrategy
	SelectorUsed  string
	QualityScore  float64
}

// Extractor runs the six extraction strategies in order.
type Extractor struct {
	fetcher  *httpfetch.Fetcher
	memory   *extractmem.Memory
	renderer httpfetch.Renderer
	ai       SelectorDiscoverer
}

// New builds an Extractor. ai and renderer may be nil, in which case
// strategies 5 and 6 are skipped for every domain.
func New(fetcher *httpfetch.Fetcher, memory *extractmem.Memory, renderer httpfetch.Renderer, ai SelectorDiscoverer) *Extractor {
	if renderer == nil {
		renderer = httpfetch.NullRenderer{}
	}
	return &Extractor{fetcher: fetcher, memory: memory, renderer: renderer, ai: ai}
}

// Extract fetches articleURL and runs the strategy cascade, recording
// every attempt in extraction memory regardless of outcome.
func (e *Extractor) Extract(ctx context.Context, articleURL string) (*Result, error) {
	parsed, err := url.Parse(articleURL)
	if err != nil {
		return nil, apperr.NewPermanentHTTP(0, articleURL)
	}
	domain := parsed.Host

	resp, err := e.fetcher.Fetch(ctx, articleURL, httpfetch.Options{})
	if err != nil {
		return nil, err
	}
	doc, err := htmlutil.ParseDocument(string(resp.Body))
	if err != nil {
		return nil, apperr.NewQualityFail("unparseable html")
	}

	title := extractTitle(doc)

	type attempt struct {
		strategy model.ExtractionStrategy
		run      func() (content, selector string, err error)
	}

	attempts := []attempt{
		{model.StrategyLearnedSelector, func() (string, string, error) { return e.tryLearnedSelector(ctx, domain, doc) }},
		{model.StrategyDensity, func() (string, string, error) { return tryDensityHeuristic(doc) }},
		{model.StrategyStructuredData, func() (string, string, error) { return tryStructuredData(doc) }},
		{model.StrategyCSSList, func() (string, string, error) { return tryRankedSelectors(doc) }},
		{model.StrategyHeadlessRender, func() (string, string, error) { return e.tryHeadlessRender(ctx, domain, articleURL) }},
		{model.StrategyAISelector, func() (string, string, error) { return e.tryAISelector(ctx, domain, doc, string(resp.Body), articleURL) }},
	}

	skip := e.ineffectiveStrategies(ctx, domain)

	var lastErr error
	for _, a := range attempts {
		if skip[a.strategy] {
			continue
		}
		start := time.Now()
		content, selector, runErr := a.run()
		elapsed := time.Since(start)
		content = cleanContent(content)

		quality := qualityScore(content)
		success := runErr == nil && len(content) >= MinQualityContentLen && quality >= qualityGateFloor

		e.recordAttempt(ctx, domain, articleURL, a.strategy, selector, success, len(content), quality, elapsed, runErr)

		if success {
			media := htmlutil.HarvestMedia(parsed, doc.Selection)
			return &Result{
				Title:        title,
				Content:      content,
				PublishedAt:  extractPublishedAt(doc),
				Media:        media,
				Strategy:     a.strategy,
				SelectorUsed: selector,
				QualityScore: quality,
			}, nil
		}
		if runErr != nil {
			lastErr = runErr
		} else {
			lastErr = apperr.NewQualityFail("content below minimum length")
		}
	}

	if lastErr == nil {
		lastErr = apperr.ErrNotFound
	}
	return nil, lastErr
}

// ineffectiveStrategies consults the domain's accumulated per-method
// success/failure record and returns the set of strategies worth skipping
// this run, per extractmem.IneffectiveMethods.
func (e *Extractor) ineffectiveStrategies(ctx context.Context, domain string) map[model.ExtractionStrategy]bool {
	if e.memory == nil {
		return nil
	}
	stability, err := e.memory.DomainStability(ctx, domain)
	if err != nil {
		return nil
	}
	ineffective := extractmem.IneffectiveMethods(stability)
	if len(ineffective) == 0 {
		return nil
	}
	skip := make(map[model.ExtractionStrategy]bool, len(ineffective))
	for _, s := range ineffective {
		skip[s] = true
	}
	return skip
}

func (e *Extractor) recordAttempt(ctx context.Context, domain, articleURL string, strategy model.ExtractionStrategy, selector string, success bool, contentLen int, quality float64, elapsed time.Duration, runErr error) {
	if e.memory == nil {
		return
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	_ = e.memory.RecordAttempt(ctx, &model.ExtractionAttempt{
		ArticleURL:       articleURL,
		Domain:           domain,
		Strategy:         strategy,
		SelectorUsed:     selector,
		Success:          success,
		ContentLength:    contentLen,
		QualityScore:     quality,
		ExtractionTimeMS: elapsed.Milliseconds(),
		ErrorMessage:     errMsg,
	})
}

// --- Strategy 1: learned selector ---

func (e *Extractor) tryLearnedSelector(ctx context.Context, domain string, doc *goquery.Document) (string, string, error) {
	if e.memory == nil {
		return "", "", apperr.ErrNotFound
	}
	pattern, err := e.memory.Lookup(ctx, domain)
	if err != nil || pattern == nil || pattern.SelectorPattern == "" {
		return "", "", apperr.ErrNotFound
	}
	content := paragraphsFromSelector(doc, pattern.SelectorPattern, 1)
	if content == "" {
		return "", pattern.SelectorPattern, apperr.ErrNotFound
	}
	return content, pattern.SelectorPattern, nil
}

// --- Strategy 2: density heuristic ---

// tryDensityHeuristic scores block elements by text density (text length
// relative to markup and link length) and picks the densest one,
// approximating a Readability-style heuristic.
func tryDensityHeuristic(doc *goquery.Document) (string, string, error) {
	var bestSel *goquery.Selection
	var bestScore float64

	doc.Find("div, section, article").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) < MinQualityContentLen {
			return
		}
		linkText := 0
		s.Find("a").Each(func(_ int, a *goquery.Selection) {
			linkText += len(a.Text())
		})
		linkDensity := float64(linkText) / float64(len(text)+1)
		pCount := s.Find("p").Length()
		score := float64(len(text)) * (1 - linkDensity) * float64(1+pCount)
		if score > bestScore {
			bestScore = score
			bestSel = s
		}
	})

	if bestSel == nil {
		return "", "", apperr.ErrNotFound
	}
	var paragraphs []string
	bestSel.Find("p").Each(func(_ int, p *goquery.Selection) {
		t := strings.TrimSpace(p.Text())
		if len(t) > minParagraphLen {
			paragraphs = append(paragraphs, t)
		}
	})
	if len(paragraphs) == 0 {
		return "", "", apperr.ErrNotFound
	}
	return strings.Join(paragraphs, "\n\n"), "density-heuristic", nil
}

// --- Strategy 3: structured data ---

func tryStructuredData(doc *goquery.Document) (string, string, error) {
	var body string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		t, _ := payload["@type"].(string)
		switch t {
		case "NewsArticle", "Article", "BlogPosting":
			if b, ok := payload["articleBody"].(string); ok && len(b) > 0 {
				body = b
				return false
			}
		}
		return true
	})
	if body != "" {
		return body, "ld+json:articleBody", nil
	}

	if sel := doc.Find("[itemprop=articleBody]"); sel.Length() > 0 {
		return htmlutil.VisibleText(sel), "[itemprop=articleBody]", nil
	}

	if og := doc.Find(`meta[property="og:description"]`); og.Length() > 0 {
		if content, ok := og.Attr("content"); ok && len(content) > minParagraphLen {
			return content, "og:description", nil
		}
	}

	return "", "", apperr.ErrNotFound
}

// --- Strategy 4: prioritized CSS selector list ---

func tryRankedSelectors(doc *goquery.Document) (string, string, error) {
	for _, selector := range rankedSelectors {
		minNeeded := 1
		if strings.HasPrefix(selector, "main") || strings.HasPrefix(selector, "#content") || strings.HasPrefix(selector, ".text") {
			minNeeded = minParagraphsForGenericSelector
		}
		content := paragraphsFromSelector(doc, selector, minNeeded)
		if content != "" {
			return content, selector, nil
		}
	}
	return "", "", apperr.ErrNotFound
}

func paragraphsFromSelector(doc *goquery.Document, selector string, minCount int) string {
	var paragraphs []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > minParagraphLen {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) < minCount {
		return ""
	}
	return strings.Join(paragraphs, "\n\n")
}

// --- Strategy 5: headless render ---

func (e *Extractor) tryHeadlessRender(ctx context.Context, domain, articleURL string) (string, string, error) {
	budget := int64(defaultRenderTimeoutMS)
	if e.memory != nil {
		if b, err := e.memory.RenderTimeout(ctx, domain); err == nil {
			budget = b
		}
	}
	html, renderErr := e.renderer.Render(ctx, articleURL, "article", budget)
	if e.memory != nil {
		if renderErr != nil {
			_ = e.memory.AdjustRenderTimeout(ctx, domain, budget, 1, 0)
		} else {
			_ = e.memory.AdjustRenderTimeout(ctx, domain, budget, 0, 1)
		}
	}
	if renderErr != nil {
		return "", "", renderErr
	}
	doc, err := htmlutil.ParseDocument(html)
	if err != nil {
		return "", "", apperr.NewQualityFail("unparseable rendered html")
	}
	content, selector, err := tryRankedSelectors(doc)
	return content, selector, err
}

// --- Strategy 6: AI-assisted selector discovery ---

func (e *Extractor) tryAISelector(ctx context.Context, domain string, doc *goquery.Document, rawHTML, articleURL string) (string, string, error) {
	if e.ai == nil || e.memory == nil {
		return "", "", apperr.ErrNotFound
	}
	should, err := e.memory.ShouldInvokeAI(ctx, domain)
	if err != nil || !should {
		return "", "", apperr.ErrNotFound
	}
	_ = e.memory.RecordAIInvocation(ctx, domain)
	selector, err := e.ai.ExtractSelectors(ctx, rawHTML, articleURL)
	if err != nil || selector == "" {
		return "", "", apperr.ErrNotFound
	}
	content := paragraphsFromSelector(doc, selector, 1)
	if content == "" {
		return "", selector, apperr.ErrNotFound
	}
	// Re-validate the AI-proposed selector through strategy 4's path
	// before trusting it rather than returning it straight from the model.
	if validated := paragraphsFromSelector(doc, selector, 1); validated == "" {
		return "", selector, apperr.NewQualityFail("ai selector did not validate")
	}
	return content, selector, nil
}

// --- Metadata & cleanup ---

func extractTitle(doc *goquery.Document) string {
	for _, selector := range []string{"h1", "title", ".article-title", ".headline", ".entry-title"} {
		title := strings.TrimSpace(doc.Find(selector).First().Text())
		if title != "" {
			return title
		}
	}
	return ""
}

// extractPublishedAt tries, in order: <meta property=article:published_time>,
// <time datetime>, then JSON-LD datePublished.
func extractPublishedAt(doc *goquery.Document) time.Time {
	if meta := doc.Find(`meta[property="article:published_time"]`); meta.Length() > 0 {
		if v, ok := meta.Attr("content"); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t
			}
		}
	}
	if tEl := doc.Find("time[datetime]").First(); tEl.Length() > 0 {
		if v, ok := tEl.Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t
			}
		}
	}
	var published time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if v, ok := payload["datePublished"].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				published = t
				return false
			}
		}
		return true
	})
	return published
}

// cleanContent reconstructs paragraphs from sentence-terminated lines,
// drops boilerplate, and truncates at MaxContentRunes preserving full
// paragraphs. Generalized from the teacher's scraper.cleanContent, with
// the Danish-specific junk phrase list replaced by htmlutil.IsJunkLine's
// generic indicator set.
func cleanContent(content string) string {
	if content == "" {
		return ""
	}

	lines := strings.Split(content, "\n")
	var cleanLines []string
	var currentParagraph strings.Builder

	flush := func() {
		paragraph := strings.TrimSpace(currentParagraph.String())
		if len(paragraph) > 30 {
			cleanLines = append(cleanLines, paragraph)
		}
		currentParagraph.Reset()
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 8 {
			flush()
			continue
		}
		if htmlutil.IsJunkLine(line) {
			continue
		}
		if currentParagraph.Len() > 0 {
			currentParagraph.WriteString(" ")
		}
		currentParagraph.WriteString(line)
		if strings.HasSuffix(line, ".") || strings.HasSuffix(line, "!") || strings.HasSuffix(line, "?") {
			flush()
		}
	}
	flush()

	result := strings.Join(cleanLines, "\n\n")
	for strings.Contains(result, "  ") {
		result = strings.ReplaceAll(result, "  ", " ")
	}
	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}
	result = strings.TrimSpace(result)

	if len([]rune(result)) > MaxContentRunes {
		paragraphs := strings.Split(result, "\n\n")
		var selected []string
		total := 0
		for _, p := range paragraphs {
			if total+len(p) < MaxContentRunes-200 {
				selected = append(selected, p)
				total += len(p) + 2
			} else {
				break
			}
		}
		if len(selected) > 0 {
			result = strings.Join(selected, "\n\n")
		}
	}

	return result
}

// qualityScore is a 0..1 signal combining length, paragraph count, letter
// density, sentence count, and an ad-marker penalty, used both for the
// quality gate and for extraction-memory's rolling quality_score_avg.
func qualityScore(content string) float64 {
	if content == "" {
		return 0
	}
	length := len([]rune(content))
	paragraphs := strings.Count(content, "\n\n") + 1
	score := float64(length) / float64(MaxContentRunes)
	if score > 1 {
		score = 1
	}
	if paragraphs >= 3 {
		score += 0.1
	}
	if letterRatio(content) < minLetterRatio {
		score -= 0.35
	}
	if sentenceCount(content) < requiredSentenceCount(length) {
		score -= 0.35
	}
	if smartfilter.LooksLikeAd(content) {
		score -= 0.4
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// letterRatio is the share of non-space characters that are letters,
// catching markup soup, nav link lists, and other non-prose content that
// a selector occasionally scoops up along with the article body.
func letterRatio(s string) float64 {
	letters, total := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}

func sentenceCount(s string) int {
	count := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

// requiredSentenceCount scales the minimum sentence bar with content
// length: short extracts need only minSentenceCount, longer ones need
// proportionally more to count as real prose rather than a caption or a
// stray navigation fragment.
func requiredSentenceCount(contentLen int) int {
	required := minSentenceCount + contentLen/MinQualityContentLen
	if required < minSentenceCount {
		return minSentenceCount
	}
	return required
}
