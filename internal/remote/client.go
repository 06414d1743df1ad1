// Package remote implements storage.Backend and storage.Directory against the
// tsg HTTP API.
package remote

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

	"golang.org/x/oauth2"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

// Client is an HTTP client for the entries API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a client for baseURL. A non-empty token is sent as a
// bearer token on every request.
func NewClient(ctx context.Context, baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	if token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
		c.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}))
	}
	return c
}

// apiError mirrors the error half of the response envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

// do sends a request and decodes the data half of the envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if env.Error != nil {
			msg = env.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %s: %w", method, path, msg, storage.ErrNotFound)
		case http.StatusBadRequest:
			if env.Error != nil && env.Error.Code == "VALIDATION_FAILED" {
				return fmt.Errorf("%s: %w", msg, storage.ErrInvalidEntry)
			}
		}
		return fmt.Errorf("API error %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

func (c *Client) List(ctx context.Context, companyID string, from, to time.Time) ([]model.TimeEntry, error) {
	q := url.Values{}
	q.Set("from", timecalc.DateKey(from))
	q.Set("to", timecalc.DateKey(to))
	path := "/api/v1/companies/" + url.PathEscape(companyID) + "/entries?" + q.Encode()

	var out []model.TimeEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, entry model.TimeEntry) (model.TimeEntry, error) {
	var out model.TimeEntry
	if err := c.do(ctx, http.MethodPost, "/api/v1/entries", entry, &out); err != nil {
		return model.TimeEntry{}, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, id string, patch model.EntryPatch) (model.TimeEntry, error) {
	var out model.TimeEntry
	if err := c.do(ctx, http.MethodPatch, "/api/v1/entries/"+url.PathEscape(id), patch, &out); err != nil {
		return model.TimeEntry{}, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/entries/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListProjects(ctx context.Context, companyID string) ([]model.Project, error) {
	var out []model.Project
	if err := c.do(ctx, http.MethodGet, "/api/v1/companies/"+url.PathEscape(companyID)+"/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCompany(ctx context.Context, id string) (model.Company, error) {
	var out model.Company
	if err := c.do(ctx, http.MethodGet, "/api/v1/companies/"+url.PathEscape(id), nil, &out); err != nil {
		return model.Company{}, err
	}
	return out, nil
}

// Health checks that the API answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
