package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	UserAgent   string
	Coordinator Coordinator
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithUserAgent sets the device fingerprint the API binds sessions to.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.UserAgent = ua }
}

func WithCoordinator(coord Coordinator) Option {
	return func(c *Client) { c.Coordinator = coord }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		UserAgent:   "todolist-go-client",
		Coordinator: NewLocalCoordinator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) (User, error) {
	var resp struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/signup", "", req, &resp); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

// Login signs in and returns a Session bound to this client's user agent.
func (c *Client) Login(ctx context.Context, email, password, deviceName string) (*Session, LoginResult, error) {
	body := map[string]string{
		"email":      email,
		"password":   password,
		"deviceName": deviceName,
	}
	var resp LoginResult
	if err := c.do(ctx, http.MethodPost, "/login", "", body, &resp); err != nil {
		return nil, LoginResult{}, err
	}
	return c.NewSession(resp.Tokens), resp, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var tokens Tokens
	if err := c.do(ctx, http.MethodPost, "/refresh", "", map[string]string{"refreshToken": refreshToken}, &tokens); err != nil {
		return Tokens{}, err
	}
	return tokens, nil
}

// NewSession resumes a session from tokens obtained earlier.
func (c *Client) NewSession(tokens Tokens) *Session {
	return &Session{
		client:       c,
		accessToken:  tokens.AccessToken,
		refreshToken: tokens.RefreshToken,
	}
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
