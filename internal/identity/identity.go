// Package identity verifies caller credentials and registers accounts
// against the remote identity provider.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://identitytoolkit.googleapis.com"

// Provider is the identity-provider surface consumed by the API layer.
// Every request re-verifies its token remotely; there is no local cache.
type Provider interface {
	// VerifyToken resolves a bearer token to the subject id it was issued
	// for, or fails if the provider rejects it.
	VerifyToken(ctx context.Context, token string) (string, error)

	// CreateAccount registers a new email/password account and returns the
	// new subject id.
	CreateAccount(ctx context.Context, email, password string) (string, error)
}

// ProviderError captures a rejection from the identity provider with the
// upstream status and reason. The reason is for logs only and is never
// forwarded to callers.
type ProviderError struct {
	StatusCode int
	Reason     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity: provider rejected request (%d): %s", e.StatusCode, e.Reason)
}

// Client is a thin HTTP client for the identity provider's token-lookup and
// sign-up endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the provider endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a provider client authenticated by the service API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("identity: API key must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type lookupRequest struct {
	IDToken string `json:"idToken"`
}

type lookupResponse struct {
	Users []struct {
		LocalID string `json:"localId"`
	} `json:"users"`
}

type signUpRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signUpResponse struct {
	LocalID string `json:"localId"`
}

// VerifyToken implements Provider.
func (c *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", &ProviderError{StatusCode: http.StatusBadRequest, Reason: "empty token"}
	}

	var out lookupResponse
	if err := c.post(ctx, "/v1/accounts:lookup", lookupRequest{IDToken: token}, &out); err != nil {
		return "", err
	}
	if len(out.Users) == 0 || out.Users[0].LocalID == "" {
		return "", &ProviderError{StatusCode: http.StatusUnauthorized, Reason: "no account for token"}
	}
	return out.Users[0].LocalID, nil
}

// CreateAccount implements Provider.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (string, error) {
	var out signUpResponse
	if err := c.post(ctx, "/v1/accounts:signUp", signUpRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &out); err != nil {
		return "", err
	}
	if out.LocalID == "" {
		return "", &ProviderError{StatusCode: http.StatusBadGateway, Reason: "sign-up response missing subject id"}
	}
	return out.LocalID, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("identity: marshal request: %w", err)
	}

	url := c.baseURL + path + "?key=" + c.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("identity: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &ProviderError{
			StatusCode: res.StatusCode,
			Reason:     providerReason(res.Body),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("identity: read response body: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}
	return nil
}

// providerReason extracts the provider's error message for logging.
func providerReason(body io.Reader) string {
	buf, _ := io.ReadAll(io.LimitReader(body, 4096))
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(buf, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(buf))
}
