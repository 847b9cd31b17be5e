package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"listeningtrends-go/internal/metrics"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds every outbound call when no timeout is configured.
	DefaultTimeout = 15 * time.Second

	maxBodySize = 1 << 20
)

// ExchangeRequest holds the inputs of an authorization code redemption.
type ExchangeRequest struct {
	ClientID    string
	Code        string
	RedirectURI string
	Verifier    string
}

// tokenResponse is the JSON body of a successful token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenClient redeems authorization codes at the token endpoint.
type TokenClient struct {
	httpClient *http.Client
	tokenURL   string
	timeout    time.Duration
	now        func() time.Time
}

// NewTokenClient creates a TokenClient. A nil httpClient uses http.DefaultClient.
func NewTokenClient(httpClient *http.Client, tokenURL string, timeout time.Duration) *TokenClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TokenClient{
		httpClient: httpClient,
		tokenURL:   tokenURL,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Exchange posts the code and verifier to the token endpoint and returns the
// access token. The server's rejection of a code is returned as a
// *ProtocolError; the code must not be submitted again either way.
func (c *TokenClient) Exchange(ctx context.Context, req ExchangeRequest) (*oauth2.Token, error) {
	if req.Verifier == "" {
		return nil, &PreconditionError{Reason: "code verifier is missing"}
	}
	if req.Code == "" {
		return nil, &PreconditionError{Reason: "authorization code is missing"}
	}

	form := url.Values{}
	form.Set("client_id", req.ClientID)
	form.Set("grant_type", "authorization_code")
	form.Set("code", req.Code)
	form.Set("redirect_uri", req.RedirectURI)
	form.Set("code_verifier", req.Verifier)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.RequestDuration.WithLabelValues("token").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, transportError(c.tokenURL, c.timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(c.tokenURL, c.timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, protocolError(c.tokenURL, resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &ProtocolError{
			Endpoint:    c.tokenURL,
			StatusCode:  resp.StatusCode,
			Reason:      ReasonMalformedResponse,
			Description: err.Error(),
		}
	}
	if tr.AccessToken == "" {
		return nil, &ProtocolError{
			Endpoint:   c.tokenURL,
			StatusCode: resp.StatusCode,
			Reason:     ReasonMissingAccessToken,
		}
	}

	token := &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token.WithExtra(map[string]interface{}{"scope": tr.Scope}), nil
}

// protocolError builds a *ProtocolError from a non-success response. Both the
// OAuth shape {"error":"invalid_grant","error_description":...} and the Web API
// shape {"error":{"status":400,"message":...}} are understood.
func protocolError(endpoint string, status int, body []byte) *ProtocolError {
	pe := &ProtocolError{Endpoint: endpoint, StatusCode: status, Reason: ReasonUnexpectedStatus}
	if !gjson.ValidBytes(body) {
		return pe
	}

	errField := gjson.GetBytes(body, "error")
	switch {
	case errField.IsObject():
		pe.Description = errField.Get("message").String()
	case errField.String() != "":
		pe.Reason = errField.String()
		pe.Description = gjson.GetBytes(body, "error_description").String()
	}
	return pe
}
