package registry

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grocery-cli/adapters"
	"grocery-cli/internal/types"
)

func testDeps(t *testing.T) adapters.Deps {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	config := types.DefaultConfig()
	config.SessionDir = t.TempDir()
	config.DiagnosticsDir = t.TempDir()
	return adapters.Deps{Config: config, Logger: logger}
}

// stubProvider only answers Search; other methods are never called in these tests
type stubProvider struct {
	types.Provider
	name     string
	products []types.Product
	err      error
	closed   bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(ctx context.Context, query string, opts types.SearchOptions) ([]types.Product, error) {
	return s.products, s.err
}

func (s *stubProvider) Close() { s.closed = true }

func TestCreate_EveryRegisteredProvider(t *testing.T) {
	r := New(testDeps(t))

	names := r.AvailableProviders()
	assert.Equal(t, []string{"ocado", "sainsburys"}, names)

	for _, name := range names {
		provider, err := r.Create(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, provider.Name())
		provider.Close()
	}
}

func TestCreate_UnknownListsNames(t *testing.T) {
	r := New(testDeps(t))

	_, err := r.Create("tesco")

	var unknown *types.UnknownProviderError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unknown provider: tesco. Available: ocado, sainsburys", err.Error())
}

func TestCreate_ConstructorError(t *testing.T) {
	r := New(testDeps(t))
	r.Register("broken", func(adapters.Deps) (types.Provider, error) {
		return nil, errors.New("no config")
	})

	_, err := r.Create("broken")

	assert.EqualError(t, err, "failed to create provider broken: no config")
}

func TestCompareProduct_OneFailsOneSucceeds(t *testing.T) {
	r := New(testDeps(t))
	good := &stubProvider{name: "sainsburys", products: []types.Product{{ProductUID: "1", Name: "Milk", Provider: "sainsburys"}}}
	bad := &stubProvider{name: "ocado", err: &types.TransportError{Provider: "ocado", Method: "GET", URL: "/search", StatusCode: 503, Body: "down"}}
	r.Register("sainsburys", func(adapters.Deps) (types.Provider, error) { return good, nil })
	r.Register("ocado", func(adapters.Deps) (types.Provider, error) { return bad, nil })

	results := r.CompareProduct(context.Background(), "milk", nil, 5)

	require.Len(t, results, 2)
	assert.Equal(t, "ocado", results[0].Provider)
	require.NotNil(t, results[0].Error)
	assert.Contains(t, *results[0].Error, "status 503")
	assert.NotNil(t, results[0].Products)
	assert.Empty(t, results[0].Products)

	assert.Equal(t, "sainsburys", results[1].Provider)
	assert.Nil(t, results[1].Error)
	assert.Len(t, results[1].Products, 1)

	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestCompareProduct_UnknownNameIsAnEntry(t *testing.T) {
	r := New(testDeps(t))
	r.Register("sainsburys", func(adapters.Deps) (types.Provider, error) {
		return &stubProvider{name: "sainsburys"}, nil
	})

	results := r.CompareProduct(context.Background(), "milk", []string{"sainsburys", "tesco"}, 5)

	require.Len(t, results, 2)
	assert.Nil(t, results[0].Error)
	assert.NotNil(t, results[0].Products)
	require.NotNil(t, results[1].Error)
	assert.Contains(t, *results[1].Error, "unknown provider: tesco")
}
