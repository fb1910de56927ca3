package utils

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grocery-cli/internal/types"
)

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.RequestDelay = 0
	config.Timeout = 5 * time.Second
	return config
}

func TestNewHTTPClient(t *testing.T) {
	config := testConfig()
	logger := logrus.New()

	client := NewHTTPClient("sainsburys", "https://example.com/api/", config, logger)

	assert.NotNil(t, client)
	assert.Equal(t, "https://example.com/api", client.baseURL)
	assert.Equal(t, config.UserAgent, client.Header("User-Agent"))
	assert.Equal(t, "application/json", client.Header("Accept"))
	assert.NotNil(t, client.limiter)

	client.Close()
}

func TestHTTPClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/product/v1/product", r.URL.Path)
		assert.Equal(t, "milk", r.URL.Query().Get("filter[keyword]"))
		assert.Equal(t, "a=1; b=2", r.Header.Get("Cookie"))
		assert.Equal(t, "tok", r.Header.Get("wcauthtoken"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"products":[]}`))
	}))
	defer server.Close()

	client := NewHTTPClient("sainsburys", server.URL+"/api", testConfig(), logrus.New())
	defer client.Close()
	client.SetHeader("Cookie", "a=1; b=2")
	client.SetHeader("wcauthtoken", "tok")

	body, err := client.Get(context.Background(), "/product/v1/product", url.Values{"filter[keyword]": {"milk"}})

	require.NoError(t, err)
	assert.JSONEq(t, `{"products":[]}`, string(body))
}

func TestHTTPClient_Send_EncodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"productId":"P1","quantity":2}`, string(raw))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewHTTPClient("ocado", server.URL, testConfig(), logrus.New())
	defer client.Close()

	_, err := client.Send(context.Background(), http.MethodPost, "/trolley/v1/items", nil,
		map[string]any{"productId": "P1", "quantity": 2})
	require.NoError(t, err)
}

func TestHTTPClient_TransportErrorCarriesStatusAndBody(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"code":"OUT_OF_STOCK"}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient("sainsburys", server.URL, testConfig(), logrus.New())
	defer client.Close()

	_, err := client.Get(context.Background(), "/basket/v2/basket", nil)

	var transportErr *types.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusBadRequest, transportErr.StatusCode)
	assert.Contains(t, transportErr.Body, "OUT_OF_STOCK")
	assert.Contains(t, err.Error(), "status 400")
	assert.False(t, types.IsAuthError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "requests are never retried")
}

func TestHTTPClient_AuthErrorsAreDistinguishable(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewHTTPClient("sainsburys", server.URL, testConfig(), logrus.New())
		_, err := client.Get(context.Background(), "/basket/v2/basket", nil)

		assert.ErrorIs(t, err, types.ErrNotAuthenticated, "status %d", status)
		assert.True(t, types.IsAuthError(err))

		client.Close()
		server.Close()
	}
}

func TestHTTPClient_Get_ContextCancelled(t *testing.T) {
	client := NewHTTPClient("ocado", "http://example.com", testConfig(), logrus.New())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "/search/v1/products", nil)

	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPClient_DelHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Cookie"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPClient("ocado", server.URL, testConfig(), logrus.New())
	defer client.Close()
	client.SetHeader("Cookie", "a=1")
	client.DelHeader("Cookie")

	_, err := client.Get(context.Background(), "/trolley/v1/basket", nil)
	require.NoError(t, err)
}

func TestHTTPClient_Close(t *testing.T) {
	client := NewHTTPClient("ocado", "http://example.com", testConfig(), logrus.New())

	// Should not panic
	client.Close()
	client.Close()
}
