// Package identity exchanges OAuth access tokens for verified user identities.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"golang.org/x/oauth2"
)

// MockTokenPrefix marks access tokens accepted by MockClient.
const MockTokenPrefix = "expected-valid-access-token_"

// ErrInvalidDomain is returned when the user does not belong to the
// configured hosted domain.
var ErrInvalidDomain = common.AuthFailed("invalid user domain")

// Identity is what the provider vouches for.
type Identity struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Domain string `json:"hd"`
}

type Client interface {
	GetUser(ctx context.Context, accessToken string) (*Identity, error)
}

// GoogleClient calls an OAuth userinfo endpoint with the access token.
type GoogleClient struct {
	url          string
	hostedDomain string
	base         *http.Client
}

func NewGoogleClient(url, hostedDomain string) *GoogleClient {
	return &GoogleClient{url: url, hostedDomain: hostedDomain, base: &http.Client{Timeout: 10 * time.Second}}
}

func (c *GoogleClient) GetUser(ctx context.Context, accessToken string) (*Identity, error) {
	// the oauth2 transport signs every request with the caller's token
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %v: %w", err, common.ErrorUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("userinfo: status %d: %w", resp.StatusCode, common.ErrorUpstream)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("decode userinfo: %v: %w", err, common.ErrorUpstream)
	}
	if id.Email == "" {
		return nil, fmt.Errorf("userinfo without email: %w", common.ErrorUpstream)
	}

	if c.hostedDomain != "" && id.Domain != c.hostedDomain {
		return nil, ErrInvalidDomain
	}
	if id.Domain == "" {
		if _, domain, ok := strings.Cut(id.Email, "@"); ok {
			id.Domain = domain
		}
	}
	return &id, nil
}

// MockClient accepts tokens of the form MockTokenPrefix+"<name>" and
// vouches for <name>@example.com. It stands in for the provider in local
// setups and tests.
type MockClient struct{}

func (MockClient) GetUser(_ context.Context, accessToken string) (*Identity, error) {
	name, ok := strings.CutPrefix(accessToken, MockTokenPrefix)
	if !ok {
		return nil, fmt.Errorf("mock userinfo rejected token: %w", common.ErrorUpstream)
	}
	return &Identity{Email: name + "@example.com", Name: "Test User", Domain: "example.com"}, nil
}
