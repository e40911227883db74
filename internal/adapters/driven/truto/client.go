package truto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.UpstreamClient = (*Client)(nil)

// Client lists records through the Truto unified API.
// It makes one attempt per call; throttling is left to the caller.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Truto client. Unset fields take DefaultConfig values.
func NewClient(cfg *Config) *Client {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.UnifiedModel == "" {
		c.UnifiedModel = def.UnifiedModel
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Burst <= 0 {
		c.Burst = def.Burst
	}
	if c.MaxErrorBody <= 0 {
		c.MaxErrorBody = def.MaxErrorBody
	}

	limit := rate.Inf
	if c.RequestsPerSecond > 0 {
		limit = rate.Limit(c.RequestsPerSecond)
	}

	return &Client{
		cfg:        c,
		httpClient: &http.Client{Timeout: c.Timeout},
		limiter:    rate.NewLimiter(limit, c.Burst),
	}
}

// listResponse is the unified list envelope.
type listResponse struct {
	Result     []json.RawMessage `json:"result"`
	NextCursor string            `json:"next_cursor"`
}

// List fetches one page of a unified resource.
// Non-2xx responses surface as *domain.StatusError.
func (c *Client) List(ctx context.Context, req driven.ListRequest) (*driven.ListPage, error) {
	endpoint, err := c.listURL(req)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxErrorBody))
		return nil, &domain.StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", req.Resource, err)
	}
	return &driven.ListPage{Items: out.Result, NextCursor: out.NextCursor}, nil
}

func (c *Client) listURL(req driven.ListRequest) (string, error) {
	if req.Resource == "" {
		return "", fmt.Errorf("%w: resource is required", domain.ErrInvalidInput)
	}
	model := req.UnifiedModel
	if model == "" {
		model = c.cfg.UnifiedModel
	}
	account := req.IntegratedAccountID
	if account == "" {
		account = c.cfg.IntegratedAccountID
	}

	q := url.Values{}
	if account != "" {
		q.Set("integrated_account_id", account)
	}
	if req.IgnoreRemoteData {
		q.Set("truto_ignore_remote_data", "true")
	}
	if req.NextCursor != "" {
		q.Set("next_cursor", req.NextCursor)
	}
	keys := make([]string, 0, len(req.Filters))
	for k := range req.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, req.Filters[k])
	}

	u := fmt.Sprintf("%s/unified/%s/%s", c.cfg.BaseURL, url.PathEscape(model), url.PathEscape(req.Resource))
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u, nil
}
