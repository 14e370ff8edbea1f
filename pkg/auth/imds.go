package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const imdsEndpoint = "http://169.254.169.254/metadata/identity/oauth2/token"

// IMDSProvider is the instance-metadata variant of spec.md §4.D: it GETs
// a token from the Azure Instance Metadata Service using the managed
// identity assigned to the host.
type IMDSProvider struct {
	*baseProvider
}

// NewIMDSProvider returns an IMDSProvider for the given resource and,
// optionally, a user-assigned identity's client id. httpClient may be nil,
// in which case http.DefaultClient is used.
func NewIMDSProvider(resource, clientID string, httpClient *http.Client) *IMDSProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	fetch := func(ctx context.Context) (Token, error) {
		q := url.Values{}
		q.Set("api-version", "2018-02-01")
		q.Set("resource", resource)
		if clientID != "" {
			q.Set("client_id", clientID)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imdsEndpoint+"?"+q.Encode(), nil)
		if err != nil {
			return Token{}, err
		}
		req.Header.Set("Metadata", "true")

		resp, err := httpClient.Do(req)
		if err != nil {
			return Token{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Token{}, fmt.Errorf("imds token endpoint returned status %d", resp.StatusCode)
		}

		var body struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   string `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return Token{}, err
		}

		secs, err := strconv.Atoi(body.ExpiresIn)
		if err != nil {
			return Token{}, fmt.Errorf("imds response had non-numeric expires_in %q: %w", body.ExpiresIn, err)
		}

		return Token{AccessToken: body.AccessToken, ExpiresAt: time.Now().Add(time.Duration(secs) * time.Second)}, nil
	}

	return &IMDSProvider{baseProvider: newBaseProvider(fetch)}
}
