package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultSlackOAuthURL exchanges an install code for a token.
const DefaultSlackOAuthURL = "https://slack.com/api/oauth.v2.access"

// OAuthResult is the part of Slack's oauth.v2.access reply the install page needs.
type OAuthResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Team  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
}

// OAuthExchanger completes the "Add to Slack" install flow.
type OAuthExchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (OAuthResult, error)
}

// SlackOAuthClient calls Slack's OAuth access endpoint.
type SlackOAuthClient struct {
	clientID     string
	clientSecret string
	apiURL       string
	http         *resty.Client
}

// NewSlackOAuthClient returns a client for apiURL (DefaultSlackOAuthURL if empty).
func NewSlackOAuthClient(clientID, clientSecret, apiURL string, timeout time.Duration) (*SlackOAuthClient, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: slack client id and secret are required", ErrMissingCredentials)
	}
	if apiURL == "" {
		apiURL = DefaultSlackOAuthURL
	}
	return &SlackOAuthClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		apiURL:       apiURL,
		http:         newHTTPClient(timeout),
	}, nil
}

// Exchange trades an install code for a token. Slack reports failures with
// ok=false and HTTP 200; those are returned as a result, not an error.
func (c *SlackOAuthClient) Exchange(ctx context.Context, code, redirectURI string) (OAuthResult, error) {
	req := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"code":          code,
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
			"redirect_uri":  redirectURI,
		})
	resp, err := do(ProviderSlack, req, resty.MethodPost, c.apiURL)
	if err != nil {
		return OAuthResult{}, err
	}

	var out OAuthResult
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return OAuthResult{}, fmt.Errorf("%w: parse oauth response: %v", ErrMalformedResponse, err)
	}
	return out, nil
}
