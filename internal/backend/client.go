// Package backend is the REST client for the Wozif API, the external owner
// of users, stores and credentials.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nocodeci/wozif-gateway/internal/errors"
	"github.com/nocodeci/wozif-gateway/internal/store"
	"github.com/nocodeci/wozif-gateway/internal/tenant"
)

// User is the authenticated profile returned by the backend.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Credentials carries a login request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is a successful login response.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Config configures the client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the backend API. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
}

// New builds a client with sane defaults.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: maxRetries,
	}
}

// Me verifies a bearer token. Any transport failure or non-2xx response
// collapses to AuthTokenInvalid: the caller must treat the token as dead.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/me", token, nil)
	if err != nil {
		return User{}, errors.AuthTokenInvalid(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drain(resp.Body)
		return User{}, errors.AuthTokenInvalid(fmt.Errorf("auth check returned %d", resp.StatusCode))
	}

	var user User
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return User{}, errors.AuthTokenInvalid(fmt.Errorf("decode profile: %w", err))
	}
	return user, nil
}

// Login exchanges credentials for a token and profile. Backend error
// payloads ({message, errors?}) are surfaced verbatim to the caller.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/login", "", creds)
	if err != nil {
		return LoginResult{}, errors.Internal("login request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return LoginResult{}, errors.Internal("read login response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return LoginResult{}, errors.Unauthorized(errorMessage(body, "invalid credentials"))
	}

	var result LoginResult
	if err := json.Unmarshal(body, &result); err != nil {
		return LoginResult{}, errors.Internal("decode login response", err)
	}
	if result.Token == "" {
		return LoginResult{}, errors.Internal("login response missing token", nil)
	}
	return result, nil
}

// ListStores fetches the ordered store list for the authenticated user.
func (c *Client) ListStores(ctx context.Context, token string) ([]store.Store, error) {
	resp, err := c.do(ctx, http.MethodGet, "/stores", token, nil)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drain(resp.Body)
		return nil, errors.AuthTokenInvalid(fmt.Errorf("store listing returned %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("list stores returned %d: %s", resp.StatusCode, errorMessage(body, "unexpected response"))
	}

	var stores []store.Store
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&stores); err != nil {
		return nil, fmt.Errorf("decode store list: %w", err)
	}
	return stores, nil
}

// CheckSlug asks whether a slug is taken. Implements tenant.AvailabilityLookup.
func (c *Client) CheckSlug(ctx context.Context, slug string) (tenant.Availability, error) {
	resp, err := c.do(ctx, http.MethodGet, "/stores/check/"+url.PathEscape(slug), "", nil)
	if err != nil {
		return tenant.Availability{}, fmt.Errorf("check slug: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return tenant.Availability{}, fmt.Errorf("read slug check response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return tenant.Availability{}, errors.BadRequest(errorMessage(body, "malformed slug"))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return tenant.Availability{}, fmt.Errorf("slug check returned %d: %s", resp.StatusCode, errorMessage(body, "unexpected response"))
	}

	var avail tenant.Availability
	if err := json.Unmarshal(body, &avail); err != nil {
		return tenant.Availability{}, fmt.Errorf("decode slug check: %w", err)
	}
	return avail, nil
}

// do executes one request, retrying transport errors and 5xx responses for
// idempotent methods.
func (c *Client) do(ctx context.Context, method, path, token string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < retries {
			drain(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("backend returned %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// errorMessage pulls a human message out of a backend error payload without
// requiring a fixed shape.
func errorMessage(body []byte, fallback string) string {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	return fallback
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}
