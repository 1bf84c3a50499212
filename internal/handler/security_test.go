package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/montebay/storefront/internal/domain/auth"
	"github.com/montebay/storefront/internal/identity"
)

type mockAPIKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrAPIKeyNotFound
	}
	return info, nil
}

func hashKey(pepper, key string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newSecuredEndpoint(t *testing.T, pepper string, keys ...string) http.Handler {
	t.Helper()

	byHash := make(map[string]*auth.APIKeyInfo, len(keys))
	for _, k := range keys {
		h := hashKey(pepper, k)
		byHash[h] = &auth.APIKeyInfo{ID: k, KeyHash: h, Name: k, Scopes: []string{"manage_orders"}}
	}
	sec := NewSecurityHandler(&mockAPIKeyRepo{byHash: byHash}, []byte(pepper))
	return sec.RequireAPIKey(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireAPIKey(t *testing.T) {
	endpoint := newSecuredEndpoint(t, "test-pepper", "valid-key")

	t.Run("ValidKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders/o1/confirm", nil)
		req.Header.Set("api_key", "valid-key")
		rec := httptest.NewRecorder()

		endpoint.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("MissingKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders/o1/confirm", nil)
		rec := httptest.NewRecorder()

		endpoint.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders/o1/confirm", nil)
		req.Header.Set("api_key", "wrong-key")
		rec := httptest.NewRecorder()

		endpoint.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAPIKeyPepperMatters(t *testing.T) {
	// A key hashed under a different pepper must not authenticate even when
	// the repository holds an entry for the raw key.
	byHash := map[string]*auth.APIKeyInfo{
		hashKey("other-pepper", "valid-key"): {ID: "k1", KeyHash: hashKey("other-pepper", "valid-key")},
	}
	sec := NewSecurityHandler(&mockAPIKeyRepo{byHash: byHash}, []byte("test-pepper"))
	endpoint := sec.RequireAPIKey(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders/o1/confirm", nil)
	req.Header.Set("api_key", "valid-key")
	rec := httptest.NewRecorder()

	endpoint.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireUser(t *testing.T) {
	h := &Handler{idp: identity.TokenProvider{}}

	var gotUser identity.User
	endpoint := h.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok)
		gotUser = u
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("BearerToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Authorization", "Bearer cust-42")
		rec := httptest.NewRecorder()

		endpoint.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cust-42", gotUser.ID)
	})

	t.Run("MissingToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		rec := httptest.NewRecorder()

		endpoint.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
