// Package apiclient calls the resource server on behalf of the web client. A Client is
// immutable: the session guard builds a new one whenever the session changes, so a token
// is attached to outgoing requests exactly when the session is Granted.
package apiclient

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

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"coffee-shop-demo/internal/trialdetails/domain"
)

const defaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a non-2xx body is kept on StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned when the resource server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("apiclient: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("apiclient: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client is a thin JSON client for the resource server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New returns a Client for baseURL. An empty token yields an anonymous client that sends
// no Authorization header.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticated reports whether requests carry a bearer token.
func (c *Client) Authenticated() bool {
	return c != nil && c.token != ""
}

// TrialDetails fetches GET /trialDetails.
func (c *Client) TrialDetails(ctx context.Context) (*domain.TrialDetails, error) {
	var td domain.TrialDetails
	if err := c.do(ctx, http.MethodGet, "/trialDetails", nil, &td); err != nil {
		return nil, err
	}
	return &td, nil
}

// ListCoffeeShops fetches GET /coffee-shops.
func (c *Client) ListCoffeeShops(ctx context.Context) ([]CoffeeShop, error) {
	var shops []CoffeeShop
	if err := c.do(ctx, http.MethodGet, "/coffee-shops", nil, &shops); err != nil {
		return nil, err
	}
	return shops, nil
}

// GetCoffeeShop fetches GET /coffee-shops/{id}.
func (c *Client) GetCoffeeShop(ctx context.Context, id string) (*CoffeeShop, error) {
	var shop CoffeeShop
	if err := c.do(ctx, http.MethodGet, shopPath(id), nil, &shop); err != nil {
		return nil, err
	}
	return &shop, nil
}

// SaveCoffeeShop creates the shop (POST) when it has no ID, otherwise updates it (PUT).
// The server's representation is returned.
func (c *Client) SaveCoffeeShop(ctx context.Context, shop *CoffeeShop) (*CoffeeShop, error) {
	if shop == nil {
		return nil, fmt.Errorf("apiclient: nil coffee shop")
	}
	method, path := http.MethodPost, "/coffee-shops"
	if shop.ID != "" {
		method, path = http.MethodPut, shopPath(shop.ID)
	}
	var saved CoffeeShop
	if err := c.do(ctx, method, path, shop, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// DeleteCoffeeShop calls DELETE /coffee-shops/{id}.
func (c *Client) DeleteCoffeeShop(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, shopPath(id), nil, nil)
}

func shopPath(id string) string {
	return "/coffee-shops/" + url.PathEscape(id)
}

// do sends one request. in is JSON-encoded when non-nil; out is decoded when non-nil and
// the response has a body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}
	return nil
}
