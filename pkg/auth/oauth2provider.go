package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Provider is the client-credentials variant of spec.md §4.D: it
// exchanges a client id/secret for a bearer token against an Azure AD
// tenant's v2.0 token endpoint. The actual POST (grant_type=client_credentials,
// application/x-www-form-urlencoded body) is performed by
// golang.org/x/oauth2/clientcredentials, which is also the library's
// standard shape for this exact grant.
type OAuth2Provider struct {
	*baseProvider
}

// NewOAuth2Provider returns an OAuth2Provider for the given Azure AD
// application and tenant.
func NewOAuth2Provider(clientID, clientSecret, tenantID, scope string) *OAuth2Provider {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		Scopes:       []string{scope},
	}

	fetch := func(ctx context.Context) (Token, error) {
		tok, err := cfg.Token(ctx)
		if err != nil {
			return Token{}, err
		}
		return Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
	}

	return &OAuth2Provider{baseProvider: newBaseProvider(fetch)}
}
