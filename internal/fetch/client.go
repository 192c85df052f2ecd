// Package fetch retrieves upstream file content over HTTPS.
//
// The client distinguishes real source content from upstream error
// responses: non-2xx statuses and HTML error bodies both surface as
// *fetch.Error rather than being written out as vendored files.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Error reports a failed retrieval of one URL.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of one successful fetch.
type Result struct {
	Body      []byte
	ETag      string
	FromCache bool
}

// Client fetches raw file content, optionally through a persistent
// cache (conditional GETs) and an in-run LRU so a URL listed by more
// than one manifest group is retrieved once.
type Client struct {
	hc    *http.Client
	token string
	cache *Cache
	seen  *lru.Cache[string, Result]
}

// NewClient returns a Client. token, when non-empty, is sent as a
// bearer Authorization header. cache may be nil.
func NewClient(token string, cache *Cache) *Client {
	seen, _ := lru.New[string, Result](512)
	return &Client{
		hc:    &http.Client{Timeout: 30 * time.Second},
		token: token,
		cache: cache,
		seen:  seen,
	}
}

// Fetch retrieves url. A cached ETag turns the request into a
// conditional GET; a 304 answer serves the cached body.
func (c *Client) Fetch(ctx context.Context, url string) (Result, error) {
	if r, ok := c.seen.Get(url); ok {
		return r, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, &Error{URL: url, Err: err}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var cached *Entry
	if c.cache != nil {
		cached, err = c.cache.Get(url)
		if err != nil {
			return Result{}, &Error{URL: url, Err: err}
		}
		if cached != nil && cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return Result{}, &Error{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		r := Result{Body: cached.Body, ETag: cached.ETag, FromCache: true}
		c.seen.Add(url, r)
		return r, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &Error{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &Error{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if looksLikeHTMLError(body, url) {
		return Result{}, &Error{
			URL:    url,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("response body is an HTML page, not file content"),
		}
	}

	etag := resp.Header.Get("ETag")
	if c.cache != nil {
		if err := c.cache.Put(url, etag, body); err != nil {
			return Result{}, &Error{URL: url, Err: err}
		}
	}

	r := Result{Body: body, ETag: etag}
	c.seen.Add(url, r)
	return r, nil
}

// looksLikeHTMLError flags HTML bodies served for non-HTML source
// files. Raw-content hosts answer some bad paths with a styled error
// page and a 2xx status, which must never be vendored as source.
func looksLikeHTMLError(body []byte, url string) bool {
	if hasSuffixFold(url, ".html") || hasSuffixFold(url, ".htm") {
		return false
	}
	head := bytes.ToLower(bytes.TrimLeft(body, " \t\r\n"))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && bytes.EqualFold([]byte(s[len(s)-len(suffix):]), []byte(suffix))
}
