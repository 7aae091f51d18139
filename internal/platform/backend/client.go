package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Config configures a Client.
type Config struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client fetches query data from the backend.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient validates cfg and builds a client. A nil httpClient uses a
// client with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		base:    base,
		token:   cfg.Token,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "backend_client", "base_url", base.Redacted()),
	}, nil
}

// URLFor maps key to the backend URL: the family and every scalar element
// become path segments, object elements become query parameters.
func (c *Client) URLFor(key domain.QueryKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}

	plain := []string{strings.TrimSuffix(c.base.Path, "/")}
	escaped := []string{strings.TrimSuffix(c.base.EscapedPath(), "/")}
	params := url.Values{}
	for i, elem := range key {
		switch v := elem.(type) {
		case nil:
			continue
		case map[string]any:
			for name, value := range v {
				if value == nil {
					continue
				}
				s, err := scalar(value)
				if err != nil {
					return "", fmt.Errorf("%w: parameter %q: %v", ErrUnsupportedKey, name, err)
				}
				params.Set(name, s)
			}
		default:
			s, err := scalar(v)
			if err != nil {
				return "", fmt.Errorf("%w: element %d: %v", ErrUnsupportedKey, i, err)
			}
			plain = append(plain, s)
			escaped = append(escaped, url.PathEscape(s))
		}
	}

	u := *c.base
	u.Path = strings.Join(plain, "/")
	u.RawPath = strings.Join(escaped, "/")
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func scalar(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("type %T", v)
	}
}

// Fetch performs the GET request for key and returns the raw JSON body.
func (c *Client) Fetch(ctx context.Context, key domain.QueryKey) (json.RawMessage, error) {
	target, err := c.URLFor(key)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "backend request failed", "family", key.Family(), "error", err)
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}

	c.logger.DebugContext(ctx, "backend request completed",
		"family", key.Family(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: target, Body: snippet}
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrInvalidResponse)
	}
	return json.RawMessage(body), nil
}
