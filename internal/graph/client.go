// Package graph is a minimal Microsoft Graph client for the OneNote API.
// It owns the retry, backoff and pagination policy for every request the
// exporter makes; callers above it only ever see an eventual result or an
// eventual failure.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production Graph endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const (
	defaultPageSize        = 20
	defaultListRetries     = 5
	defaultContentRetries  = 3
	defaultDownloadRetries = 3

	// defaultRetryAfter is used when a 429 response carries no Retry-After
	// header.
	defaultRetryAfter = 10 * time.Second
)

// ErrRetriesExhausted is returned when a request kept failing transiently
// until its retry budget ran out.
var ErrRetriesExhausted = errors.New("retries exhausted")

// StatusError is a non-retryable HTTP response, typically a 4xx other
// than 429. It aborts the whole fetch immediately.
type StatusError struct {
	StatusCode int
	Snippet    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Snippet)
}

// TokenProvider supplies the bearer token attached to every request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// SleepFunc blocks for the given duration. It exists so tests can replace
// backoff waits with a recorder.
type SleepFunc func(d time.Duration)

// Client talks to the Graph OneNote endpoints. All requests are sequential;
// the single rate-limited API gains nothing from concurrency and the 429
// waits would be harder to coordinate.
type Client struct {
	httpClient      *http.Client
	tokens          TokenProvider
	baseURL         string
	pageSize        int
	listRetries     int
	contentRetries  int
	downloadRetries int
	sleep           SleepFunc
	logger          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Graph endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithSleep replaces the backoff sleep function.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithPageSize sets the $top value injected into paginated listings.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRetries sets the retry budgets for listings and media downloads.
func WithRetries(list, download int) Option {
	return func(c *Client) {
		if list > 0 {
			c.listRetries = list
		}
		if download > 0 {
			c.downloadRetries = download
		}
	}
}

// NewClient creates a Graph client.
func NewClient(tokens TokenProvider, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient:      &http.Client{Timeout: 5 * time.Minute},
		tokens:          tokens,
		baseURL:         DefaultBaseURL,
		pageSize:        defaultPageSize,
		listRetries:     defaultListRetries,
		contentRetries:  defaultContentRetries,
		downloadRetries: defaultDownloadRetries,
		sleep:           time.Sleep,
		logger:          logger,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the hostname (with port, if any) of the configured endpoint.
// The resume engine looks for this substring in written markdown to detect
// pages whose media was never fully localized.
func (c *Client) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// ListNotebooks fetches all notebooks visible to the signed-in user.
func (c *Client) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	items, err := c.fetchList(ctx, c.baseURL+"/me/onenote/notebooks", false)
	if err != nil {
		return nil, fmt.Errorf("listing notebooks: %w", err)
	}
	notebooks, err := decodeItems[Notebook](items)
	if err != nil {
		return nil, fmt.Errorf("decoding notebooks: %w", err)
	}
	return notebooks, nil
}

// ListSections fetches all sections of a notebook.
func (c *Client) ListSections(ctx context.Context, notebookID string) ([]Section, error) {
	u := fmt.Sprintf("%s/me/onenote/notebooks/%s/sections", c.baseURL, url.PathEscape(notebookID))
	items, err := c.fetchList(ctx, u, false)
	if err != nil {
		return nil, fmt.Errorf("listing sections of notebook %s: %w", notebookID, err)
	}
	sections, err := decodeItems[Section](items)
	if err != nil {
		return nil, fmt.Errorf("decoding sections: %w", err)
	}
	return sections, nil
}

// ListPages fetches all pages of a section with pagination. Only id and
// title are selected; full page payloads are large and have caused upstream
// gateway timeouts.
func (c *Client) ListPages(ctx context.Context, sectionID string) ([]Page, error) {
	u := fmt.Sprintf("%s/me/onenote/sections/%s/pages?$select=id,title", c.baseURL, url.PathEscape(sectionID))
	items, err := c.fetchList(ctx, u, true)
	if err != nil {
		return nil, fmt.Errorf("listing pages of section %s: %w", sectionID, err)
	}
	pages, err := decodeItems[Page](items)
	if err != nil {
		return nil, fmt.Errorf("decoding pages: %w", err)
	}
	return pages, nil
}

// GetPageContent retrieves a page's HTML content. The request asks for
// element IDs and ink annotations so embedded drawings show up as media
// elements in the returned document.
func (c *Client) GetPageContent(ctx context.Context, pageID string) (string, error) {
	u := fmt.Sprintf("%s/me/onenote/pages/%s/content?includeIDs=true&includeInkML=true",
		c.baseURL, url.PathEscape(pageID))
	body, err := c.getWithRetry(ctx, u, c.contentRetries)
	if err != nil {
		return "", fmt.Errorf("fetching content of page %s: %w", pageID, err)
	}
	return string(body), nil
}

// fetchList retrieves a listing resource, following continuation links and
// accumulating all items in first-seen order.
//
// If a continuation page permanently fails after the retry budget but
// earlier pages already yielded items, the partial accumulation is returned
// as a degraded success: an interrupted listing is more useful than none,
// and the resume engine repairs whatever this run misses. A non-retryable
// HTTP status aborts the whole fetch instead.
//
// A payload without a "value" envelope is a singular resource and is
// returned verbatim as a single item.
func (c *Client) fetchList(ctx context.Context, rawURL string, paginate bool) ([]json.RawMessage, error) {
	if paginate && !strings.Contains(rawURL, "$top") {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL = fmt.Sprintf("%s%s$top=%d", rawURL, sep, c.pageSize)
	}

	var items []json.RawMessage
	current := rawURL
	for current != "" {
		body, err := c.getWithRetry(ctx, current, c.listRetries)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) || ctx.Err() != nil {
				return nil, err
			}
			if len(items) > 0 {
				c.logger.Warn("listing truncated after retries, keeping items fetched so far",
					"url", current, "items", len(items), "error", err)
				return items, nil
			}
			return nil, err
		}

		var probe map[string]json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return nil, fmt.Errorf("decoding listing payload: %w", err)
		}
		if _, ok := probe["value"]; !ok {
			// Singular resource, nothing to accumulate.
			return []json.RawMessage{body}, nil
		}

		var env listEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decoding listing envelope: %w", err)
		}
		items = append(items, env.Value...)

		if env.NextLink != "" {
			c.logger.Debug("following continuation link", "items", len(items))
		}
		current = env.NextLink
	}

	return items, nil
}

// getWithRetry performs an authenticated GET with the shared retry policy:
//
//   - 200: return the body.
//   - 429: sleep for the server's Retry-After (default 10s) and retry the
//     same URL. Throttling never consumes a retry attempt.
//   - 5xx and transport errors: sleep 2^attempt seconds, consume an attempt.
//   - anything else: fail immediately, not retryable.
func (c *Client) getWithRetry(ctx context.Context, rawURL string, retries int) ([]byte, error) {
	for attempt := 0; attempt < retries; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring token: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("request failed, backing off",
				"url", rawURL, "attempt", attempt+1, "retries", retries, "error", err)
			c.sleep(backoffDelay(attempt))
			attempt++
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			closeBody(resp)
			if err != nil {
				c.logger.Warn("reading response failed, backing off", "url", rawURL, "error", err)
				c.sleep(backoffDelay(attempt))
				attempt++
				continue
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header)
			closeBody(resp)
			c.logger.Warn("throttled by Graph API", "url", rawURL, "wait", wait)
			c.sleep(wait)
			// Loop back to the same URL without consuming an attempt.

		case resp.StatusCode >= 500:
			closeBody(resp)
			c.logger.Warn("server error, backing off",
				"url", rawURL, "status", resp.StatusCode, "attempt", attempt+1, "retries", retries)
			c.sleep(backoffDelay(attempt))
			attempt++

		default:
			snippet := readSnippet(resp.Body)
			closeBody(resp)
			return nil, &StatusError{StatusCode: resp.StatusCode, Snippet: snippet}
		}
	}

	return nil, fmt.Errorf("%s: %w", rawURL, ErrRetriesExhausted)
}

// backoffDelay is the exponential backoff for attempt n (0-based):
// 1s, 2s, 4s, 8s, ...
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// retryAfter parses a Retry-After header as delta-seconds or HTTP-date,
// falling back to a conservative default.
func retryAfter(h http.Header) time.Duration {
	value := h.Get("Retry-After")
	if value == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 200))
	return string(b)
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
