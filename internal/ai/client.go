// Package ai implements C7: the single rate-limited outbound LLM concern.
// Built on github.com/google/generative-ai-go/genai (the teacher's
// provider), with github.com/sashabaranov/go-openai wired in as a
// secondary fallback provider tried whenever a Gemini call fails —
// generalizing the "try the primary endpoint, fall back to OpenAI" idiom
// the teacher used in internal/translate/translate.go (now folded into
// this package, since a separate translation layer has no role once
// analysis returns its summary directly in Russian).
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/deusflow/newsagg/internal/apperr"
	"github.com/deusflow/newsagg/internal/cache"
	"github.com/deusflow/newsagg/internal/metrics"
	"github.com/deusflow/newsagg/internal/retry"
)

// AdType enumerates the ad classification C7 returns.
type AdType string

const (
	AdNone             AdType = "none"
	AdSponsoredContent AdType = "sponsored_content"
	AdProductPlacement AdType = "product_placement"
	AdAffiliate        AdType = "affiliate"
	AdNativeAd         AdType = "native_ad"
)

// CategoryGuess is one AI-proposed free-form category label with confidence.
type CategoryGuess struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// UnifiedAnalysis is analyze_article_complete's return shape.
type UnifiedAnalysis struct {
	OptimizedTitle  string          `json:"optimized_title"`
	Categories      []CategoryGuess `json:"categories"`
	Summary         string          `json:"summary"`
	IsAdvertisement bool            `json:"is_advertisement"`
	AdConfidence    float64         `json:"ad_confidence"`
	AdType          AdType          `json:"ad_type"`
	AdReasoning     string          `json:"ad_reasoning"`
	AdMarkers       []string        `json:"ad_markers"`
	PublicationDate string          `json:"publication_date"`
}

// Config tunes the client; zero values fall back to sane defaults.
type Config struct {
	APIKey              string
	SummarizationModel  string
	CategorizationModel string
	DigestModel         string
	RPS                 float64
	MaxAttempts         int
	CacheTTL            time.Duration
	OpenAIFallbackKey   string // optional; enables the OpenAI fallback path
}

// Client is the single rate-limited LLM boundary every other component
// calls through.
type Client struct {
	genaiClient *genai.Client
	openaiClient *openai.Client

	cfg     Config
	limiter *rate.Limiter
	cache   *cache.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a Client. metrics/logger may be nil.
func New(ctx context.Context, cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if cfg.SummarizationModel == "" {
		cfg.SummarizationModel = "gemini-1.5-flash"
	}
	if cfg.CategorizationModel == "" {
		cfg.CategorizationModel = cfg.SummarizationModel
	}
	if cfg.DigestModel == "" {
		cfg.DigestModel = cfg.SummarizationModel
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 3
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("ai: creating gemini client: %w", err)
	}

	var oc *openai.Client
	if cfg.OpenAIFallbackKey != "" {
		oc = openai.NewClient(cfg.OpenAIFallbackKey)
	}

	return &Client{
		genaiClient:  gc,
		openaiClient: oc,
		cfg:          cfg,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		cache:        cache.New(),
		metrics:      m,
		logger:       logger,
	}, nil
}

// Close releases the underlying provider client.
func (c *Client) Close() {
	if c.genaiClient != nil {
		c.genaiClient.Close()
	}
}

// AnalyzeArticleComplete runs the unified-analysis call, honoring the
// global rate limiter, the 24h response cache, and retrying transient
// provider errors and structured-response parse failures.
func (c *Client) AnalyzeArticleComplete(ctx context.Context, title, body, url string) (*UnifiedAnalysis, error) {
	key := c.cacheKey("analyze", title, body, url)
	if cached, ok := c.cache.Get(key); ok {
		c.recordCall(true)
		return cached.(*UnifiedAnalysis), nil
	}

	prompt := fmt.Sprintf(analyzePrompt, title, sanitizeForPrompt(body, 6000))

	var result *UnifiedAnalysis
	err := retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: c.cfg.MaxAttempts, Delay: 2 * time.Second, Backoff: true, Jitter: true}, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperr.ErrCancelled
		}
		raw, err := c.generate(ctx, c.cfg.CategorizationModel, prompt)
		if err != nil {
			if ferr := c.classifyProviderError(ctx, prompt, err, &raw); ferr != nil {
				return ferr
			}
		}
		parsed, perr := parseUnifiedAnalysis(raw)
		if perr != nil {
			return perr // parse failures retry with the same (stricter) prompt
		}
		result = parsed
		return nil
	})
	if err != nil {
		c.recordCall(false)
		return nil, fmt.Errorf("analyze_article_complete: %w", err)
	}

	c.cache.Set(key, result, c.cfg.CacheTTL)
	c.recordCall(false)
	return result, nil
}

// ExtractSelectors proposes a CSS selector for the article body, used by
// C3 strategy 6. compressedDOM should already be trimmed to the
// structurally relevant markup.
func (c *Client) ExtractSelectors(ctx context.Context, compressedDOM, domain string) (string, error) {
	key := c.cacheKey("selectors", domain, compressedDOM, "")
	if cached, ok := c.cache.Get(key); ok {
		c.recordCall(true)
		return cached.(string), nil
	}

	prompt := fmt.Sprintf(selectorPrompt, domain, sanitizeForPrompt(compressedDOM, 4000))

	var selector string
	err := retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: c.cfg.MaxAttempts, Delay: 2 * time.Second, Backoff: true, Jitter: true}, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperr.ErrCancelled
		}
		raw, err := c.generate(ctx, c.cfg.CategorizationModel, prompt)
		if err != nil {
			return apperr.NewTransient(err)
		}
		sel := strings.TrimSpace(raw)
		if sel == "" {
			return apperr.NewQualityFail("empty selector")
		}
		selector = sel
		return nil
	})
	if err != nil {
		c.recordCall(false)
		return "", fmt.Errorf("extract_selectors: %w", err)
	}
	c.cache.Set(key, selector, c.cfg.CacheTTL)
	c.recordCall(false)
	return selector, nil
}

// CategorySummary builds a digest paragraph for a category's day, used to
// assemble DailySummary rows. briefsText is pre-formatted title/summary
// pairs.
func (c *Client) CategorySummary(ctx context.Context, category, briefsText string) (string, error) {
	key := c.cacheKey("digest", category, briefsText, "")
	if cached, ok := c.cache.Get(key); ok {
		c.recordCall(true)
		return cached.(string), nil
	}

	prompt := fmt.Sprintf(categorySummaryPrompt, category, sanitizeForPrompt(briefsText, 8000))

	var summary string
	err := retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: c.cfg.MaxAttempts, Delay: 2 * time.Second, Backoff: true, Jitter: true}, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperr.ErrCancelled
		}
		raw, err := c.generate(ctx, c.cfg.DigestModel, prompt)
		if err != nil {
			return apperr.NewTransient(err)
		}
		summary = strings.TrimSpace(raw)
		return nil
	})
	if err != nil {
		c.recordCall(false)
		return "", fmt.Errorf("category_summary: %w", err)
	}
	c.cache.Set(key, summary, c.cfg.CacheTTL)
	c.recordCall(false)
	return summary, nil
}

func (c *Client) generate(ctx context.Context, modelName, prompt string) (string, error) {
	model := c.genaiClient.GenerativeModel(modelName)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("ai: empty response from provider")
	}
	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}

// classifyProviderError wraps err as transient/provider and, if an OpenAI
// fallback key is configured, tries that provider once before giving up
// the attempt to the retry loop.
func (c *Client) classifyProviderError(ctx context.Context, prompt string, err error, raw *string) error {
	if c.openaiClient != nil {
		resp, oerr := c.openaiClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: openai.GPT3Dot5Turbo,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if oerr == nil && len(resp.Choices) > 0 {
			*raw = resp.Choices[0].Message.Content
			return nil
		}
	}
	if c.logger != nil {
		c.logger.Warn("ai provider call failed", "error", err)
	}
	return apperr.NewTransient(err)
}

func (c *Client) recordCall(cacheHit bool) {
	if c.metrics != nil {
		c.metrics.IncrementAICall(cacheHit)
	}
}

func (c *Client) cacheKey(kind, a, b, d string) string {
	h := sha256.New()
	h.Write([]byte(promptVersion))
	h.Write([]byte(kind))
	h.Write([]byte(a))
	h.Write([]byte(b))
	h.Write([]byte(d))
	return hex.EncodeToString(h.Sum(nil))
}

// sanitizeForPrompt strips carriage returns, collapses whitespace, and
// truncates to maxChars at a sentence boundary when possible, mirroring
// the teacher's gemini.go content-sanitization step.
func sanitizeForPrompt(content string, maxChars int) string {
	content = strings.ReplaceAll(content, "\r", "")
	content = strings.TrimSpace(content)
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	runes := []rune(content)
	trimmed := string(runes[:maxChars])
	if idx := strings.LastIndex(trimmed, ". "); idx > maxChars/4 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + " [TRUNCATED]"
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseUnifiedAnalysis validates and coerces the provider's JSON response.
// Unknown fields are ignored by json.Unmarshal; missing required fields
// return an error so the caller retries with the same (already strict)
// prompt, matching the "missing required fields cause a retry" contract.
func parseUnifiedAnalysis(raw string) (*UnifiedAnalysis, error) {
	match := jsonObjectRe.FindString(raw)
	if match == "" {
		return nil, apperr.NewQualityFail("no JSON object in ai response")
	}
	var result UnifiedAnalysis
	if err := json.Unmarshal([]byte(match), &result); err != nil {
		return nil, apperr.NewQualityFail("invalid JSON in ai response: " + err.Error())
	}
	if strings.TrimSpace(result.Summary) == "" {
		return nil, apperr.NewQualityFail("missing required field: summary")
	}
	if result.AdType == "" {
		result.AdType = AdNone
	}
	return &result, nil
}
