package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// ClientConfig tunes the shared HTTP retrieval layer.
type ClientConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	RPS          float64
	Burst        int
}

// DefaultClientConfig returns production settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:      10 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 200 * time.Millisecond,
		RPS:          5,
		Burst:        10,
	}
}

// Client is the HTTP retrieval layer shared by the REST adapters. It retries
// transient failures with linear backoff, falls through an ordered list of
// fallback endpoints when a primary returns 404/403 or dies at the transport
// level, and rate-limits per host with a token bucket.
type Client struct {
	http     *http.Client
	cfg      ClientConfig
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates an HTTP client for adapter use.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.cfg.RPS), c.cfg.Burst)
		c.limiters[host] = lim
	}
	return lim
}

// GetJSON fetches the first endpoint that answers with a decodable 2xx body,
// walking the fallback list in order.
func (c *Client) GetJSON(ctx context.Context, source string, urls []string, out any) error {
	return c.doJSON(ctx, source, http.MethodGet, urls, "", out)
}

// PostJSON is GetJSON with a JSON request body.
func (c *Client) PostJSON(ctx context.Context, source string, urls []string, body string, out any) error {
	return c.doJSON(ctx, source, http.MethodPost, urls, body, out)
}

func (c *Client) doJSON(ctx context.Context, source, method string, urls []string, body string, out any) error {
	if len(urls) == 0 {
		return &model.SourceError{Source: source, Code: model.ErrCodeNetwork, Message: "no endpoints configured"}
	}

	var lastErr *model.SourceError
	for i, url := range urls {
		err := c.once(ctx, source, method, url, body, out)
		if err == nil {
			if i > 0 {
				log.Debug().Str("source", source).Str("endpoint", url).Msg("fallback endpoint served request")
			}
			return nil
		}
		lastErr = err
		if !shouldFallThrough(err) {
			return err
		}
		log.Debug().Str("source", source).Str("endpoint", url).Str("code", err.Code).Msg("endpoint failed, trying next")
	}
	return lastErr
}

// once performs one endpoint's request with retries on transient failure.
func (c *Client) once(ctx context.Context, source, method, url, body string, out any) *model.SourceError {
	host := hostOf(url)

	var lastErr *model.SourceError
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
			case <-ctx.Done():
				return &model.SourceError{Source: source, Code: model.ErrCodeTimeout, Message: ctx.Err().Error(), Temporary: true, Cause: ctx.Err()}
			}
		}

		if err := c.limiter(host).Wait(ctx); err != nil {
			return &model.SourceError{Source: source, Code: model.ErrCodeTimeout, Message: err.Error(), Temporary: true, Cause: err}
		}

		var reqBody io.Reader
		if body != "" {
			reqBody = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return &model.SourceError{Source: source, Code: model.ErrCodeNetwork, Message: err.Error(), Cause: err}
		}
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = model.NewTransportError(source, err)
			if ctx.Err() != nil {
				lastErr.Code = model.ErrCodeTimeout
				return lastErr
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			decErr := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if decErr != nil {
				return &model.SourceError{
					Source: source, Code: model.ErrCodeInvalidQuote,
					Message: fmt.Sprintf("decode response: %v", decErr), Cause: decErr,
				}
			}
			return nil
		}

		resp.Body.Close()
		lastErr = &model.SourceError{
			Source:     source,
			Code:       model.ErrCodeHTTPStatus,
			Message:    fmt.Sprintf("%s %s: HTTP %d", method, url, resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Temporary:  resp.StatusCode >= 500,
		}
		// 4xx other than 404/403 will not improve on retry or fallback.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}

// shouldFallThrough reports whether the next endpoint in the chain should be
// tried: connection-level errors and 404/403 responses fall through, other
// failures stop the chain.
func shouldFallThrough(err *model.SourceError) bool {
	switch err.Code {
	case model.ErrCodeNetwork, model.ErrCodeTimeout:
		return true
	case model.ErrCodeHTTPStatus:
		return err.HTTPStatus == http.StatusNotFound || err.HTTPStatus == http.StatusForbidden || err.HTTPStatus >= 500
	default:
		return false
	}
}

func hostOf(url string) string {
	rest := url
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
