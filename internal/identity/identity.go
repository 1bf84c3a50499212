// Package identity abstracts the external auth provider: the core only asks
// "who is the current user".
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
)

// ErrUnauthenticated is returned when the token resolves to no user.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is the authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider resolves a bearer token to a user.
type Provider interface {
	CurrentUser(ctx context.Context, token string) (User, error)
}

// HTTPProvider validates tokens against the auth provider's userinfo
// endpoint.
type HTTPProvider struct {
	baseURL string
	http    *http.Client
}

// NewHTTPProvider constructs an HTTPProvider for the given endpoint.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *HTTPProvider) CurrentUser(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/userinfo", nil)
	if err != nil {
		return User{}, errors.Wrap(err, "build userinfo request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.http.Do(req)
	if err != nil {
		return User{}, errors.Wrap(err, "fetch userinfo")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return User{}, ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		return User{}, errors.Errorf("fetch userinfo: unexpected status %d", resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, errors.Wrap(err, "decode userinfo")
	}
	if u.ID == "" {
		return User{}, ErrUnauthenticated
	}
	return u, nil
}

var _ Provider = (*HTTPProvider)(nil)

// TokenProvider treats the bearer token itself as the customer ID. Used in
// local development and black-box tests when no identity provider is
// configured.
type TokenProvider struct{}

func (TokenProvider) CurrentUser(_ context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	return User{ID: token}, nil
}

var _ Provider = TokenProvider{}
