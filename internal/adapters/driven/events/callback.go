package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EventEmitter = (*CallbackEmitter)(nil)

// CallbackConfig holds configuration for CallbackEmitter
type CallbackConfig struct {
	// URL receives every event as a JSON POST
	URL string

	// Token, when set, is sent as a bearer credential
	Token string

	Timeout time.Duration
}

// CallbackEmitter posts events to the platform callback URL.
type CallbackEmitter struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewCallbackEmitter creates a callback emitter
func NewCallbackEmitter(cfg CallbackConfig) (*CallbackEmitter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: callback url is required", domain.ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CallbackEmitter{
		url:        cfg.URL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Emit posts one event. Any non-2xx answer is an error.
func (e *CallbackEmitter) Emit(ctx context.Context, event domain.ExtractorEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("emit %s: %w", event.Type, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("emit %s: %w", event.Type, &domain.StatusError{StatusCode: resp.StatusCode})
	}
	return nil
}
