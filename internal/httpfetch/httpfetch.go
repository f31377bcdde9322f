// Package httpfetch is the shared HTTP boundary (C1): a bounded-concurrency
// client with retry/backoff on transient failures and a typed error
// taxonomy, plus a Renderer seam for the headless-browser extraction
// strategy.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/deusflow/newsagg/internal/apperr"
	"github.com/deusflow/newsagg/internal/retry"
)

// Response is a fetched HTTP resource with its final (post-redirect) URL.
type Response struct {
	StatusCode int
	URL        string
	Body       []byte
	Header     http.Header
}

// Options tunes a single Fetch call.
type Options struct {
	Method      string
	Headers     map[string]string
	MaxAttempts int
	PerHostKey  string // defaults to the request host
}

// Fetcher performs rate- and concurrency-bounded HTTP fetches.
type Fetcher struct {
	client      *http.Client
	global      chan struct{}
	perHostMu   sync.Mutex
	perHost     map[string]chan struct{}
	perHostCap  int
	retryConfig retry.RetryConfig
}

// New builds a Fetcher with globalConcurrency total in-flight requests and
// perHostConcurrency in-flight requests per host.
func New(globalConcurrency, perHostConcurrency int, timeout time.Duration) *Fetcher {
	if globalConcurrency <= 0 {
		globalConcurrency = 20
	}
	if perHostConcurrency <= 0 {
		perHostConcurrency = 4
	}
	transport := &http.Transport{
		MaxIdleConns:        globalConcurrency * 2,
		MaxIdleConnsPerHost: perHostConcurrency * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Fetcher{
		client:     &http.Client{Timeout: timeout, Transport: transport},
		global:     make(chan struct{}, globalConcurrency),
		perHost:    make(map[string]chan struct{}),
		perHostCap: perHostConcurrency,
		retryConfig: retry.RetryConfig{
			MaxAttempts: 3,
			Delay:       500 * time.Millisecond,
			Backoff:     true,
			Jitter:      true,
		},
	}
}

func (f *Fetcher) hostSem(key string) chan struct{} {
	f.perHostMu.Lock()
	defer f.perHostMu.Unlock()
	sem, ok := f.perHost[key]
	if !ok {
		sem = make(chan struct{}, f.perHostCap)
		f.perHost[key] = sem
	}
	return sem
}

// Fetch retrieves targetURL, retrying transient failures (connect errors,
// 5xx, 429, timeouts) with exponential backoff, and returns a typed
// PermanentHTTPError for non-retryable statuses.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, opts Options) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	key := opts.PerHostKey
	if key == "" {
		key = hostOf(targetURL)
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = f.retryConfig.MaxAttempts
	}

	hostSem := f.hostSem(key)

	select {
	case f.global <- struct{}{}:
		defer func() { <-f.global }()
	case <-ctx.Done():
		return nil, apperr.ErrCancelled
	}
	select {
	case hostSem <- struct{}{}:
		defer func() { <-hostSem }()
	case <-ctx.Done():
		return nil, apperr.ErrCancelled
	}

	var resp *Response
	var permanentErr error
	cfg := f.retryConfig
	cfg.MaxAttempts = attempts

	err := retry.WithRetry(ctx, cfg, func() error {
		r, doErr := f.do(ctx, method, targetURL, opts.Headers)
		if doErr != nil {
			if !apperr.IsTransient(doErr) {
				permanentErr = doErr
				return nil
			}
			return doErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if permanentErr != nil {
		return nil, permanentErr
	}
	return resp, nil
}

func (f *Fetcher) do(ctx context.Context, method, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, apperr.NewPermanentHTTP(0, url)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "newsagg/1.0 (+https://github.com/deusflow/newsagg)")
	}

	httpResp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.ErrCancelled
		}
		return nil, apperr.NewTransient(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, apperr.NewTransient(fmt.Errorf("reading body: %w", err))
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.NewTransient(fmt.Errorf("rate limited: %s", url))
	case httpResp.StatusCode >= 500:
		return nil, apperr.NewTransient(fmt.Errorf("server error %d: %s", httpResp.StatusCode, url))
	case httpResp.StatusCode >= 400:
		return nil, apperr.NewPermanentHTTP(httpResp.StatusCode, url)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		URL:        httpResp.Request.URL.String(),
		Body:       body,
		Header:     httpResp.Header,
	}, nil
}

func hostOf(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == '/' && i+2 < len(rawURL) && rawURL[i+1] == '/' {
			rest := rawURL[i+2:]
			for j := 0; j < len(rest); j++ {
				if rest[j] == '/' {
					return rest[:j]
				}
			}
			return rest
		}
	}
	return rawURL
}

// Renderer performs a headless-browser render of a URL, used only by C3
// strategy 5 (headless render) when gated by extraction memory. No
// concrete browser driver ships in this module; NullRenderer documents
// the seam.
type Renderer interface {
	Render(ctx context.Context, url string, waitForSelector string, budgetMS int64) (string, error)
}

// NullRenderer always reports that rendering is unavailable.
type NullRenderer struct{}

func (NullRenderer) Render(ctx context.Context, url string, waitForSelector string, budgetMS int64) (string, error) {
	return "", apperr.ErrRenderUnavailable
}
