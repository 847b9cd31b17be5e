package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"listeningtrends-go/internal/metrics"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// ProfileClient fetches the protected profile resource with a bearer token.
type ProfileClient struct {
	httpClient *http.Client
	profileURL string
	timeout    time.Duration
}

// NewProfileClient creates a ProfileClient. A nil httpClient uses http.DefaultClient.
func NewProfileClient(httpClient *http.Client, profileURL string, timeout time.Duration) *ProfileClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ProfileClient{
		httpClient: httpClient,
		profileURL: profileURL,
		timeout:    timeout,
	}
}

// Fetch retrieves the profile. A 401 is reported as *AuthExpiredError.
func (c *ProfileClient) Fetch(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, &PreconditionError{Reason: "access token is missing"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RequestDuration.WithLabelValues("profile").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, transportError(c.profileURL, c.timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(c.profileURL, c.timeout, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthExpiredError{
			Endpoint:   c.profileURL,
			StatusCode: resp.StatusCode,
			Reason:     gjson.GetBytes(body, "error.message").String(),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, protocolError(c.profileURL, resp.StatusCode, body)
	}

	profile, ok := NewProfile(body)
	if !ok {
		return nil, &ProtocolError{
			Endpoint:   c.profileURL,
			StatusCode: resp.StatusCode,
			Reason:     ReasonMalformedResponse,
		}
	}
	return profile, nil
}
