// Package suggest reaches the external book-suggestion service.
//
// The service is a black box: given the title just issued and the
// student's name it answers with a few titles the student may enjoy.
// Calls are bounded by a timeout, an outbound rate limit and a
// concurrency cap, and never affect the loan that triggered them.
package suggest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// MaxSuggestions is how many titles are kept from a response.
	MaxSuggestions = 3

	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
	limiterKey     = "suggest"
)

// Sentinel errors for suggestion calls.
var (
	ErrRateLimited = errors.New("suggest: rate limited by server")
	ErrServer      = errors.New("suggest: server error")
	ErrBadResponse = errors.New("suggest: malformed response")
)

// Request is the body posted to the suggestion service.
type Request struct {
	IssuedBookTitle string `json:"issuedBookTitle"`
	StudentName     string `json:"studentName"`
}

type response struct {
	SuggestedBooks []string `json:"suggestedBooks"`
}

// Config configures the client.
type Config struct {
	URL               string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client is a rate-limited suggestion service client.
type Client struct {
	http    *http.Client
	url     string
	apiKey  string
	timeout time.Duration
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

// NewClient creates a client for cfg.URL.
func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		limiter: ratelimit.PerMinute(perMinute),
		logger:  logger.OrDiscard(log),
	}
}

// Close stops the client's rate limiter.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Suggest asks the service for titles related to req. Waiting for the rate
// limiter counts against the timeout.
func (c *Client) Suggest(ctx context.Context, req Request) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "LibraryLedger/1.0")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("suggest request", "title", req.IssuedBookTitle)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, ErrServer
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return cleanTitles(out.SuggestedBooks), nil
}

// cleanTitles trims, drops blanks and duplicates, and keeps MaxSuggestions.
func cleanTitles(titles []string) []string {
	out := make([]string, 0, MaxSuggestions)
	seen := make(map[string]bool, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
