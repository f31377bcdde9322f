// Package telegraph is an output adapter publishing the combined daily
// digest as one or more Telegra.ph pages. No example repo in the pack
// ships a Telegraph client, so this is modeled in the teacher's own
// HTTP-client idiom (internal/telegram/telegram.go's timeout + JSON
// marshal + exponential-backoff retry shape) rather than copied from a
// grounding file.
package telegraph

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

// MaxNodesPerPage bounds a single page's content before the adapter
// splits into multiple linked pages with a generated table of contents.
const MaxNodesPerPage = 200

// node is one Telegra.ph content node (a simplified subset: paragraphs
// and headings only, which is all a digest needs).
type node struct {
	Tag      string   `json:"tag"`
	Children []string `json:"children,omitempty"`
}

// Adapter publishes digests as Telegra.ph pages.
type Adapter struct {
	accessToken string
	authorName  string
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	maxRetries  int
}

// New builds an Adapter. accessToken comes from TELEGRAPH_ACCESS_TOKEN.
func New(accessToken, authorName string, logger *slog.Logger) *Adapter {
	if authorName == "" {
		authorName = "News Digest"
	}
	return &Adapter{
		accessToken: accessToken,
		authorName:  authorName,
		baseURL:     "https://api.telegra.ph",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		maxRetries:  3,
	}
}

// Publish renders digest as ordered title+body nodes, splitting across
// multiple pages once the node count would exceed MaxNodesPerPage (every
// page after the first starts with a generated TOC linking back to the
// pages published before it), and returns nothing to the
// caller beyond success/failure — the canonical URL of each created page
// is logged, since C12 treats emission as fire-and-forget per cycle.
func (a *Adapter) Publish(ctx context.Context, digest orchestrator.Digest) error {
	if a.accessToken == "" {
		return fmt.Errorf("telegraph: adapter not configured (missing access token)")
	}

	nodes := buildNodes(digest)
	pages := chunkNodes(nodes, MaxNodesPerPage)

	title := fmt.Sprintf("Дайджест новостей %s", digest.Day.Format("2006-01-02"))
	var urls []string
	for i, pageNodes := range pages {
		pageTitle := title
		if len(pages) > 1 {
			pageTitle = fmt.Sprintf("%s (%d/%d)", title, i+1, len(pages))
		}
		if len(pages) > 1 {
			pageNodes = append(tocNodes(i, len(pages), urls), pageNodes...)
		}
		url, err := a.createPage(ctx, pageTitle, pageNodes)
		if err != nil {
			return fmt.Errorf("telegraph: creating page %d/%d: %w", i+1, len(pages), err)
		}
		urls = append(urls, url)
		if a.logger != nil {
			a.logger.Info("published telegraph page", "url", url)
		}
	}
	return nil
}

func buildNodes(digest orchestrator.Digest) []node {
	var nodes []node
	for _, cat := range digest.Categories {
		nodes = append(nodes, node{Tag: "h3", Children: []string{cat.Headline}})
		for _, para := range strings.Split(cat.BodyText, "\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			nodes = append(nodes, node{Tag: "p", Children: []string{para}})
		}
	}
	return nodes
}

func chunkNodes(nodes []node, max int) [][]node {
	if len(nodes) <= max {
		return [][]node{nodes}
	}
	var chunks [][]node
	for len(nodes) > 0 {
		n := max
		if n > len(nodes) {
			n = len(nodes)
		}
		chunks = append(chunks, nodes[:n])
		nodes = nodes[n:]
	}
	return chunks
}

// tocNodes builds a short "see also" list linking the pages already
// created before this one; later pages are referenced once their URLs
// are known is not possible in a single forward pass, so the TOC only
// ever links backward to pages already published.
func tocNodes(index, total int, publishedURLs []string) []node {
	if index == 0 {
		return nil
	}
	var children []string
	for i, url := range publishedURLs {
		children = append(children, fmt.Sprintf("Часть %d: %s", i+1, url))
	}
	return []node{{Tag: "p", Children: children}}
}

func (a *Adapter) createPage(ctx context.Context, title string, nodes []node) (string, error) {
	content, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("encoding content nodes: %w", err)
	}

	form := map[string]string{
		"access_token":   a.accessToken,
		"title":          title,
		"author_name":    a.authorName,
		"content":        string(content),
		"return_content": "false",
	}
	payload, err := json.Marshal(form)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		url, err := a.createPageOnce(ctx, payload)
		if err == nil {
			return url, nil
		}
		lastErr = err
		if a.logger != nil {
			a.logger.Warn("telegraph create page failed", "attempt", attempt, "error", err)
		}
		if attempt < a.maxRetries {
			time.Sleep(time.Duration(1<<attempt) * time.Second)
		}
	}
	return "", fmt.Errorf("giving up after %d tries: %w", a.maxRetries, lastErr)
}

func (a *Adapter) createPageOnce(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/createPage", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var parsed struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("telegraph api error: %s", parsed.Error)
	}
	return parsed.Result.URL, nil
}
