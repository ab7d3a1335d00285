package payhip

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("account-key", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = srv.URL
	return c
}

func TestVerify(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/license/verify", r.URL.Path)
		assert.Equal(t, "ABCDE-12345-FGHIJ-67890", r.URL.Query().Get("license_key"))
		assert.Equal(t, "product-secret", r.Header.Get("product-secret-key"))
		_, _ = w.Write([]byte(`{"data":{"enabled":true,"uses":0}}`))
	})

	lic, err := c.Verify(context.Background(), "product-secret", "ABCDE-12345-FGHIJ-67890")
	require.NoError(t, err)
	assert.True(t, lic.Enabled)
	assert.Equal(t, 0, lic.Uses)
}

func TestVerifyUsedLicense(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"enabled":true,"uses":1}}`))
	})

	lic, err := c.Verify(context.Background(), "s", "k")
	require.NoError(t, err)
	assert.Equal(t, 1, lic.Uses)
}

func TestVerifyNon200(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such license", http.StatusNotFound)
	})

	_, err := c.Verify(context.Background(), "s", "k")
	assert.Error(t, err)
}

func TestIncrementUsage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/license/usage", r.URL.Path)
		assert.Equal(t, "product-secret", r.Header.Get("product-secret-key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "KEY", r.PostForm.Get("license_key"))
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	err := c.IncrementUsage(context.Background(), "product-secret", "KEY")
	assert.NoError(t, err)
}

func TestIncrementUsageFailureIsHard(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})

	err := c.IncrementUsage(context.Background(), "s", "KEY")
	assert.Error(t, err)
}

func TestDecreaseUsage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/license/usage/decrease", r.URL.Path)
		assert.Equal(t, "account-key", r.Header.Get("payhip-api-key"))
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	assert.NoError(t, c.DecreaseUsage(context.Background(), "KEY"))
}

func TestDisable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/license/disable", r.URL.Path)
		assert.Equal(t, "account-key", r.Header.Get("payhip-api-key"))
		assert.Equal(t, "product-secret", r.Header.Get("product-secret-key"))
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	assert.NoError(t, c.Disable(context.Background(), "product-secret", "KEY"))
}
