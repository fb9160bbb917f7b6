package export

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/ternarybob/harvester/internal/interfaces"
)

// ErrNoCredential means no token source is configured
var ErrNoCredential = errors.New("no export credential configured")

// TokenSourceProvider adapts an oauth2.TokenSource to interfaces.CredentialProvider
type TokenSourceProvider struct {
	source oauth2.TokenSource
}

var _ interfaces.CredentialProvider = (*TokenSourceProvider)(nil)

// NewTokenSourceProvider wraps source; tokens are cached until they expire
func NewTokenSourceProvider(source oauth2.TokenSource) *TokenSourceProvider {
	if source == nil {
		return &TokenSourceProvider{}
	}
	return &TokenSourceProvider{source: oauth2.ReuseTokenSource(nil, source)}
}

// NewStaticProvider serves a fixed bearer token. An empty token yields a
// provider that always fails with ErrNoCredential.
func NewStaticProvider(token string) *TokenSourceProvider {
	if token == "" {
		return &TokenSourceProvider{}
	}
	return NewTokenSourceProvider(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

func (p *TokenSourceProvider) Token(ctx context.Context) (string, error) {
	if p.source == nil {
		return "", ErrNoCredential
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain export token: %w", err)
	}
	if !token.Valid() {
		return "", fmt.Errorf("export token is expired or empty")
	}
	return token.AccessToken, nil
}
