// Package client talks to a running auth service over HTTP and gRPC.
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

	"campuslink.app/internal/auth"
)

// APIError is a non-2xx response from the HTTP API.
type APIError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("http %d: validation failed: %v", e.Status, e.Fields)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Session is the token body returned by register, login and refresh.
type Session struct {
	User    *auth.User `json:"user"`
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
}

// Client calls the /api/auth endpoints.
type Client struct {
	base string
	http *http.Client
}

// New returns a client rooted at baseURL. hc may be nil.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) Register(ctx context.Context, in auth.RegisterInput) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/api/auth/register", "", in, &s)
	return s, err
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &s)
	return s, err
}

// Refresh exchanges a refresh token. Refresh in the result is empty unless
// the server rotated it.
func (c *Client) Refresh(ctx context.Context, refresh string) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh": refresh}, &s)
	return s, err
}

func (c *Client) Logout(ctx context.Context, access, refresh string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", access, map[string]string{"refresh": refresh}, nil)
}

// CurrentUser returns the caller and its effective permissions.
func (c *Client) CurrentUser(ctx context.Context, access string) (*auth.User, []string, error) {
	var out struct {
		User        *auth.User `json:"user"`
		Permissions []string   `json:"permissions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/current-user", access, nil, &out); err != nil {
		return nil, nil, err
	}
	return out.User, out.Permissions, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error  string              `json:"error"`
			Errors map[string][]string `json:"errors"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error, Fields: e.Errors}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
