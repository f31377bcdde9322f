// Package telegram is an output adapter publishing the combined daily
// digest to a Telegram chat/channel. Grounded on the teacher's own
// internal/telegram/telegram.go (SendMessage's retry/backoff shape),
// extended with the 4096-char paragraph-boundary splitting and
// retry_after-aware 429 handling the teacher's single-message sender
// never needed.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/newsagg/internal/orchestrator"
)

// MaxMessageRunes is Telegram's hard message-length limit.
const MaxMessageRunes = 4096

// Adapter publishes digests to one Telegram chat via the Bot API.
type Adapter struct {
	token      string
	chatID     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
}

// New builds an Adapter. token/chatID come from TELEGRAM_TOKEN and
// TELEGRAM_CHAT_ID_NEWS.
func New(token, chatID string, logger *slog.Logger) *Adapter {
	return &Adapter{
		token:      token,
		chatID:     chatID,
		baseURL:    "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		maxRetries: 3,
	}
}

// Publish formats the digest as one message per category (split at
// paragraph boundaries if any category's text alone exceeds the message
// limit) and sends each, retrying transient failures with backoff.
func (a *Adapter) Publish(ctx context.Context, digest orchestrator.Digest) error {
	if a.token == "" || a.chatID == "" {
		return fmt.Errorf("telegram: adapter not configured (missing token or chat id)")
	}
	for _, cat := range digest.Categories {
		text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(cat.Headline), escapeHTML(cat.BodyText))
		for _, chunk := range splitAtParagraphBoundary(text, MaxMessageRunes) {
			if err := a.sendWithRetry(ctx, chunk); err != nil {
				return fmt.Errorf("telegram: sending category %q: %w", cat.CategoryName, err)
			}
		}
	}
	return nil
}

func (a *Adapter) sendWithRetry(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		retryAfter, err := a.sendOnce(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if a.logger != nil {
			a.logger.Warn("telegram send failed", "attempt", attempt, "error", err)
		}
		if attempt == a.maxRetries {
			break
		}
		wait := retryAfter
		if wait <= 0 {
			wait = time.Duration(1<<attempt) * time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d tries: %w", a.maxRetries, lastErr)
}

// sendOnce sends one message, returning the server's requested
// retry_after duration (from a 429 response body) when rate-limited.
func (a *Adapter) sendOnce(ctx context.Context, text string) (retryAfter time.Duration, err error) {
	url := fmt.Sprintf("%s/bot%s/sendMessage", a.baseURL, a.token)
	payload := map[string]any{
		"chat_id":                  a.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return 0, nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return parseRetryAfter(respBody), fmt.Errorf("rate limited: %s", respBody)
	}
	return 0, fmt.Errorf("telegram api error: status=%d body=%s", resp.StatusCode, respBody)
}

func parseRetryAfter(body []byte) time.Duration {
	var parsed struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Parameters.RetryAfter > 0 {
		return time.Duration(parsed.Parameters.RetryAfter) * time.Second
	}
	return 0
}

// splitAtParagraphBoundary breaks text into chunks no longer than max
// runes, preferring to break on a blank line, then any newline, rather
// than mid-sentence.
func splitAtParagraphBoundary(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = append(chunks, string(runes))
			break
		}
		window := string(runes[:max])
		cut := -1
		if i := strings.LastIndex(window, "\n\n"); i >= 0 {
			cut = len([]rune(window[:i]))
		}
		if cut < max/4 {
			cut = -1
			if i := strings.LastIndex(window, "\n"); i >= 0 {
				cut = len([]rune(window[:i]))
			}
		}
		if cut < max/4 {
			cut = max
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	return chunks
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
