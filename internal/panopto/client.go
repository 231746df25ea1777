// Package panopto is a minimal client for the Panopto search index sync API.
package panopto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bschlintz/panopto-index-connector/internal/config"
)

const (
	tokenPath   = "/Panopto/oauth2/connect/token"
	updatesPath = "/Panopto/api/v1/searchIndexSync/updates"
	contentPath = "/Panopto/api/v1/searchIndexSync/content"

	// Refresh the cached token slightly before it expires.
	tokenExpirySlack = time.Minute
)

// APIError is returned for non-2xx responses from the Panopto API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("panopto API error: %d - %s", e.StatusCode, e.Body)
}

// Client talks to one Panopto site. It caches the OAuth token and refreshes
// it when it nears expiry. Safe for use from a single sync loop; token state
// is guarded for the occasional concurrent health probe.
type Client struct {
	site   string
	creds  config.OAuthCredentials
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a client for the given site address.
func NewClient(site string, creds config.OAuthCredentials, logger *slog.Logger) *Client {
	return &Client{
		site:   strings.TrimSuffix(site, "/"),
		creds:  creds,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Updates fetches one page of index updates since the given time. Pass the
// NextToken of the previous page to continue paging; an empty token starts
// from the beginning.
func (c *Client) Updates(ctx context.Context, from time.Time, nextToken string) (*UpdatesResponse, error) {
	params := url.Values{}
	params.Set("fromDate", from.UTC().Format(time.RFC3339))
	if nextToken != "" {
		params.Set("nextToken", nextToken)
	}

	var response UpdatesResponse
	if err := c.getJSON(ctx, updatesPath, params, &response); err != nil {
		return nil, fmt.Errorf("fetch updates: %w", err)
	}

	c.logger.Debug("received updates page", "count", len(response.Updates), "has_next", response.NextToken != nil)
	return &response, nil
}

// Content fetches the index document for a single video.
func (c *Client) Content(ctx context.Context, videoID string) (*VideoContent, error) {
	params := url.Values{}
	params.Set("id", videoID)

	var content VideoContent
	if err := c.getJSON(ctx, contentPath, params, &content); err != nil {
		return nil, fmt.Errorf("fetch content for %s: %w", videoID, err)
	}

	return &content, nil
}

// HealthCheck verifies the client can authenticate against the site.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.bearerToken(ctx)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.site+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// bearerToken returns the cached OAuth token, fetching a fresh one when the
// cache is empty or near expiry.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.token, nil
	}

	token, expiry, err := c.authenticate(ctx)
	if err != nil {
		return "", fmt.Errorf("authenticate against %s: %w", c.site, err)
	}

	c.token = token
	c.tokenExpiry = expiry
	c.logger.Debug("obtained oauth token", "expires", expiry)
	return c.token, nil
}

func (c *Client) authenticate(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("grant_type", c.creds.GrantType)
	form.Set("scope", "api")
	// The password grant carries user credentials, other grants don't.
	if c.creds.Username != "" {
		form.Set("username", c.creds.Username)
	}
	if c.creds.Password != "" {
		form.Set("password", c.creds.Password)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", time.Time{}, err
	}
	if tokenResp.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response contained no access_token")
	}

	return tokenResp.AccessToken, tokenExpiry(tokenResp.AccessToken, tokenResp.ExpiresIn), nil
}

// tokenExpiry determines when a token expires. Panopto issues JWT access
// tokens, so the exp claim is authoritative; expires_in is the fallback for
// opaque tokens, then a conservative default.
func tokenExpiry(accessToken string, expiresIn int) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}

	return time.Now().Add(time.Hour)
}
