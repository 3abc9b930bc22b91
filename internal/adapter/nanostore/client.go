// Package nanostore is a client for the robot manager inventory API.
package nanostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
)

const (
	DefaultBaseURL          = "https://robotmanagerv1test.qikpod.com/nanostore"
	DefaultUserID           = "1"
	DefaultAutoCompleteTime = 10
	pageSize                = 10
	reportPageSize          = 100
)

// Client talks to the nanostore REST API. It implements port.InventoryBackend.
type Client struct {
	BaseURL          string
	BearerToken      string
	UserID           string
	AutoCompleteTime int // minutes before the robot completes an idle order
	HTTPClient       *http.Client
	Timeout          time.Duration

	httpOnce sync.Once
	client   *http.Client
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:          baseURL,
		BearerToken:      token,
		UserID:           DefaultUserID,
		AutoCompleteTime: DefaultAutoCompleteTime,
		Timeout:          10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nanostore %s %s: status=%d body=%s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Kind maps the status code onto the domain error taxonomy.
func (e *APIError) Kind() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return domain.ErrConflict
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return domain.ErrTransient
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return domain.ErrValidation
	default:
		return nil
	}
}

type envelope[T any] struct {
	Records []T `json:"records"`
}

// list fetches a records envelope. A 404 means no records.
func list[T any](ctx context.Context, c *Client, endpoint string, query url.Values) ([]T, error) {
	var resp envelope[T]
	err := c.do(ctx, http.MethodGet, endpoint, query, &resp)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return resp.Records, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, out any) error {
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("nanostore %s %s: %w: %w", method, endpoint, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(b)}
		if kind := apiErr.Kind(); kind != nil {
			return fmt.Errorf("%w: %w", kind, apiErr)
		}
		return apiErr
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("nanostore %s %s: decode: %w", method, endpoint, err)
		}
	}
	return nil
}

// httpClient resolves the HTTP client on first use.
func (c *Client) httpClient() *http.Client {
	c.httpOnce.Do(func() {
		c.client = c.HTTPClient
		if c.client == nil {
			c.client = &http.Client{Timeout: c.Timeout}
		}
	})
	return c.client
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
