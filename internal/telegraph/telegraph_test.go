package telegraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/newsagg/internal/orchestrator"
)

func TestPublishCreatesOnePageWhenUnderNodeLimit(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var form map[string]string
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if form["access_token"] != "tok" {
			t.Errorf("expected access_token to be forwarded, got %q", form["access_token"])
		}
		resp := map[string]any{"ok": true, "result": map[string]string{"url": "https://telegra.ph/page-1"}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := New("tok", "", nil)
	a.baseURL = server.URL

	digest := orchestrator.Digest{Day: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), Categories: []orchestrator.CategoryDigest{
		{Headline: "Headline one", BodyText: "line one\nline two"},
	}}

	if err := a.Publish(context.Background(), digest); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if requests != 1 {
		t.Errorf("expected exactly 1 page created, got %d", requests)
	}
}

func TestPublishRejectsMissingToken(t *testing.T) {
	a := New("", "", nil)
	if err := a.Publish(context.Background(), orchestrator.Digest{Categories: []orchestrator.CategoryDigest{{}}}); err == nil {
		t.Fatal("expected error when access token is unset")
	}
}

func TestCreatePageOnceReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "CONTENT_TEXT_INVALID"})
	}))
	defer server.Close()

	a := New("tok", "", nil)
	a.baseURL = server.URL

	_, err := a.createPageOnce(context.Background(), []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "CONTENT_TEXT_INVALID") {
		t.Fatalf("expected api error to surface, got %v", err)
	}
}

func TestChunkNodesSplitsAtMax(t *testing.T) {
	nodes := make([]node, 5)
	chunks := chunkNodes(nodes, 2)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks of size <=2, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != 5 {
		t.Errorf("expected all nodes preserved across chunks, got %d", total)
	}
}

func TestChunkNodesUnderLimitIsSingleChunk(t *testing.T) {
	nodes := make([]node, 3)
	chunks := chunkNodes(nodes, 10)
	if len(chunks) != 1 || len(chunks[0]) != 3 {
		t.Fatalf("expected a single chunk with all nodes, got %v", chunks)
	}
}

func TestTocNodesOnlyLinksBackward(t *testing.T) {
	if got := tocNodes(0, 3, nil); got != nil {
		t.Errorf("expected no TOC on the first page, got %v", got)
	}
	got := tocNodes(1, 3, []string{"https://telegra.ph/a"})
	if len(got) != 1 {
		t.Fatalf("expected one TOC node, got %d", len(got))
	}
	if !strings.Contains(got[0].Children[0], "https://telegra.ph/a") {
		t.Errorf("expected TOC to reference the prior page URL, got %v", got[0].Children)
	}
}

func TestBuildNodesIncludesHeadlineAndParagraphs(t *testing.T) {
	digest := orchestrator.Digest{Categories: []orchestrator.CategoryDigest{
		{Headline: "Big News", BodyText: "first line\nsecond line"},
	}}
	nodes := buildNodes(digest)
	if len(nodes) != 3 {
		t.Fatalf("expected 1 headline node + 2 paragraph nodes, got %d: %v", len(nodes), nodes)
	}
	if nodes[0].Tag != "h3" || nodes[0].Children[0] != "Big News" {
		t.Errorf("expected first node to be the headline, got %v", nodes[0])
	}
}
