package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// DownloadFile streams the resource at rawURL into savePath under the same
// 429/5xx backoff policy as listings, with the (smaller) download retry
// budget. The body is copied to disk incrementally so memory use stays
// bounded for large attachments.
//
// A failed attempt may leave a partial file behind; that is fine, because a
// later attempt or a later run simply overwrites it, and the page that
// references it still carries the remote URL and so classifies as partially
// synced.
func (c *Client) DownloadFile(ctx context.Context, rawURL, savePath string) error {
	retries := c.downloadRetries
	for attempt := 0; attempt < retries; {
		if err := ctx.Err(); err != nil {
			return err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("acquiring token: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("download failed, backing off",
				"url", rawURL, "attempt", attempt+1, "retries", retries, "error", err)
			c.sleep(backoffDelay(attempt))
			attempt++
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			err := writeBody(savePath, resp.Body)
			closeBody(resp)
			if err != nil {
				c.logger.Warn("writing download failed, backing off",
					"url", rawURL, "path", savePath, "error", err)
				c.sleep(backoffDelay(attempt))
				attempt++
				continue
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header)
			closeBody(resp)
			c.logger.Warn("throttled while downloading", "url", rawURL, "wait", wait)
			c.sleep(wait)

		case resp.StatusCode >= 500:
			closeBody(resp)
			c.logger.Warn("server error while downloading",
				"url", rawURL, "status", resp.StatusCode, "attempt", attempt+1, "retries", retries)
			c.sleep(backoffDelay(attempt))
			attempt++

		default:
			snippet := readSnippet(resp.Body)
			closeBody(resp)
			return &StatusError{StatusCode: resp.StatusCode, Snippet: snippet}
		}
	}

	return fmt.Errorf("downloading %s: %w", rawURL, ErrRetriesExhausted)
}

func writeBody(savePath string, body io.Reader) error {
	f, err := os.Create(savePath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", savePath, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", savePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", savePath, err)
	}
	return nil
}
