package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/montebay/storefront/internal/domain/auth"
	"github.com/montebay/storefront/internal/identity"
)

// SecurityHandler authenticates admin/webhook requests via HMAC-SHA256
// hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given repository and
// HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{apikeys: apikeys, pepper: pepper}
}

// RequireAPIKey authenticates the api_key header by computing its
// HMAC-SHA256, looking up the hash, and comparing in constant time.
func (s *SecurityHandler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("api_key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "api key required")
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

// UserFromContext extracts the authenticated user placed by RequireUser.
func UserFromContext(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userKey{}).(identity.User)
	return u, ok
}

// RequireUser resolves the bearer token through the identity provider and
// stores the user on the request context.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		user, err := h.idp.CurrentUser(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			writeError(w, http.StatusBadGateway, "auth_unavailable", "identity provider unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
