package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"grocery-cli/internal/types"
)

// HTTPClient is a per-provider JSON client bound to a base URL and identity headers.
// Each provider owns its own instance; nothing is shared between providers.
type HTTPClient struct {
	client   *http.Client
	provider string
	baseURL  string
	config   *types.Config
	logger   types.Logger
	limiter  *rate.Limiter

	mu      sync.RWMutex
	headers http.Header
}

// NewHTTPClient creates a client for provider rooted at baseURL
func NewHTTPClient(provider, baseURL string, config *types.Config, logger types.Logger) *HTTPClient {
	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	limit := rate.Inf
	if config.RequestDelay > 0 {
		limit = rate.Every(config.RequestDelay)
	}

	headers := http.Header{}
	headers.Set("User-Agent", config.UserAgent)
	headers.Set("Accept", "application/json")

	return &HTTPClient{
		client:   client,
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		config:   config,
		logger:   logger,
		limiter:  rate.NewLimiter(limit, 1),
		headers:  headers,
	}
}

// SetHeader sets a header sent with every request
func (h *HTTPClient) SetHeader(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers.Set(key, value)
}

// DelHeader stops sending a header
func (h *HTTPClient) DelHeader(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers.Del(key)
}

// Header returns the current value of a default header
func (h *HTTPClient) Header(key string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.headers.Get(key)
}

// Do sends one request and returns the response body. A non-2xx status yields a
// *types.TransportError carrying the status and raw body. Requests are never retried.
func (h *HTTPClient) Do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := h.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	h.mu.RLock()
	for key, values := range h.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	h.mu.RUnlock()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	h.logger.Debugf("[%s] %s %s", h.provider, method, target)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", h.provider, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.Debugf("[%s] %s %s returned %d", h.provider, method, path, resp.StatusCode)
		return nil, &types.TransportError{
			Provider:   h.provider,
			Method:     method,
			URL:        path,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	h.logger.Debugf("[%s] retrieved %d bytes from %s", h.provider, len(respBody), path)
	return respBody, nil
}

// Get performs a GET request
func (h *HTTPClient) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return h.Do(ctx, http.MethodGet, path, query, nil)
}

// Send performs a request with a JSON body
func (h *HTTPClient) Send(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	return h.Do(ctx, method, path, query, body)
}

// Close releases idle connections
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}
