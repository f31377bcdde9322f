package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/deusflow/newsagg/internal/orchestrator"
)

func TestPublishSendsOneMessagePerCategory(t *testing.T) {
	var received []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		received = append(received, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := New("test-token", "12345", nil)
	a.baseURL = server.URL

	digest := orchestrator.Digest{Categories: []orchestrator.CategoryDigest{
		{CategoryName: "tech", Headline: "Tech news", BodyText: "something happened"},
		{CategoryName: "world", Headline: "World news", BodyText: "something else happened"},
	}}

	if err := a.Publish(context.Background(), digest); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 messages sent, got %d", len(received))
	}
	if !strings.Contains(received[0]["text"].(string), "Tech news") {
		t.Errorf("expected first message to contain headline, got %v", received[0]["text"])
	}
}

func TestPublishRejectsMissingConfig(t *testing.T) {
	a := New("", "", nil)
	if err := a.Publish(context.Background(), orchestrator.Digest{Categories: []orchestrator.CategoryDigest{{}}}); err == nil {
		t.Fatal("expected error when token/chat id are unset")
	}
}

func TestSendWithRetryHonorsRetryAfterOn429(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"parameters":{"retry_after":0}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := New("tok", "chat", nil)
	a.baseURL = server.URL
	a.maxRetries = 2

	if err := a.sendWithRetry(context.Background(), "hello"); err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	got := parseRetryAfter([]byte(`{"parameters":{"retry_after":7}}`))
	if got.Seconds() != 7 {
		t.Errorf("parseRetryAfter = %v, want 7s", got)
	}
	if parseRetryAfter([]byte(`not json`)) != 0 {
		t.Errorf("expected zero duration for unparseable body")
	}
}

func TestSplitAtParagraphBoundaryPrefersBlankLine(t *testing.T) {
	text := strings.Repeat("a", 10) + "\n\n" + strings.Repeat("b", 10)
	chunks := splitAtParagraphBoundary(text, 15)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if strings.Contains(chunks[0], "b") {
		t.Errorf("expected first chunk to break before the second paragraph, got %q", chunks[0])
	}
}

func TestSplitAtParagraphBoundaryUnderLimitIsUnchanged(t *testing.T) {
	text := "short text"
	chunks := splitAtParagraphBoundary(text, MaxMessageRunes)
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("expected single unchanged chunk, got %v", chunks)
	}
}

func TestEscapeHTML(t *testing.T) {
	got := escapeHTML(`<b>a & b</b>`)
	want := "&lt;b&gt;a &amp; b&lt;/b&gt;"
	if got != want {
		t.Errorf("escapeHTML = %q, want %q", got, want)
	}
}
