package catalog

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

	"golang.org/x/time/rate"

	"product-picker/internal/model"
	"product-picker/internal/transport"
)

// APIKeyHeader carries the static catalog credential.
const APIKeyHeader = "x-api-key"

// serviceName labels upstream errors.
const serviceName = "catalog"

// maxResponseSize caps a search response body.
const maxResponseSize = 8 << 20

const userAgent = "product-picker/1.0"

// Config holds catalog client configuration.
type Config struct {
	SearchURL string // full URL of the search endpoint
	APIKey    string
	PageSize  int

	// RateLimit caps outgoing requests per second; zero disables limiting.
	RateLimit float64

	// Fingerprint enables the uTLS Chrome transport.
	Fingerprint bool

	// HTTPClient overrides the client built from Fingerprint. Used by tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client implements Searcher over HTTP.
type Client struct {
	httpClient *http.Client
	searchURL  *url.URL
	apiKey     string
	pageSize   int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a catalog client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("search URL is required")
	}
	u, err := url.Parse(cfg.SearchURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid search URL %q", cfg.SearchURL)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport.New(transport.Options{Timeout: 30 * time.Second, Fingerprint: cfg.Fingerprint}),
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		searchURL:  u,
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Search fetches one page of products.
//
// Failures map onto model.APIError: 401/403 unauthorized, 429 rate limited,
// any other status >= 400, transport errors, and undecodable bodies are all
// upstream errors. The caller may retry any of them.
func (c *Client) Search(ctx context.Context, q Query) ([]model.Product, error) {
	if q.Page < 0 {
		return nil, model.NewValidationError("page", "must not be negative")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = c.pageSize
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.NewUpstreamError(serviceName, fmt.Errorf("waiting for rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(q.Page, limit, q.Text), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	c.logger.Debug("catalog search",
		slog.Int("page", q.Page),
		slog.Int("limit", limit),
		slog.String("search", q.Text),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var products []model.Product
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, model.NewUpstreamError(serviceName, fmt.Errorf("decoding products: %w", err))
	}
	if products == nil {
		// "null" reads as end of results, same as "[]".
		products = []model.Product{}
	}
	for i := range products {
		if products[i].ID == "" {
			return nil, model.NewUpstreamError(serviceName, fmt.Errorf("product at index %d has no id", i))
		}
		if products[i].Variants == nil {
			products[i].Variants = []model.Variant{}
		}
	}
	return products, nil
}

// buildURL adds page, limit, and search to the endpoint's existing query.
func (c *Client) buildURL(page, limit int, text string) string {
	u := *c.searchURL
	values := u.Query()
	values.Set("page", strconv.Itoa(page))
	values.Set("limit", strconv.Itoa(limit))
	if text = strings.TrimSpace(text); text != "" {
		values.Set("search", text)
	} else {
		values.Del("search")
	}
	u.RawQuery = values.Encode()
	return u.String()
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(APIKeyHeader, c.apiKey)
}

// errorResponse is the best-effort shape of an upstream error body.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// parseErrorResponse converts an error status to APIError.
func parseErrorResponse(statusCode int, body []byte) error {
	var upstream errorResponse
	json.Unmarshal(body, &upstream) // Best effort parse

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("catalog authentication failed")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	default:
		msg := upstream.Message
		if msg == "" {
			msg = upstream.Error
		}
		return model.NewUpstreamError(serviceName, fmt.Errorf("status %d: %s", statusCode, msg))
	}
}

// Verify Client implements Searcher interface at compile time.
var _ Searcher = (*Client)(nil)
