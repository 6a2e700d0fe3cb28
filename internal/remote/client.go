// Package remote implements the HTTP client for the backend cart API.
//
// Every operation authenticates with a bearer token, accepts a context for
// cancellation (the operation tracker aborts superseded requests through
// it), and returns the normalized cart the server responded with. The server
// is the authority on resulting quantities; callers reconcile its answer
// against optimistic local state.
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

	"github.com/google/uuid"

	"sheetcart/internal/model"
	"sheetcart/internal/transport"
)

// cartPath is the base path for the backend cart API.
const cartPath = "/cart"

// userAgent identifies this client to the backend.
// Some storefront hosts rate-limit requests without a User-Agent.
const userAgent = "sheetcart/1.0"

// Config holds remote client configuration.
type Config struct {
	// BaseURL is the backend API origin, e.g. "https://api.example.com".
	BaseURL string

	// BrowserTLS enables the Chrome-fingerprint transport for backends
	// behind JA3-based bot detection. See internal/transport.
	BrowserTLS bool

	// Timeout bounds each request. Zero means the 30s default.
	Timeout time.Duration

	// HTTPClient overrides the client entirely (tests). When set, BrowserTLS
	// and Timeout are ignored.
	HTTPClient *http.Client
}

// Client talks to the backend cart API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a cart API client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
		if cfg.BrowserTLS {
			httpClient.Transport = transport.NewBrowserTransport(timeout)
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// FetchCart retrieves the authoritative cart for the token's session.
func (c *Client) FetchCart(ctx context.Context, token string) (model.Cart, error) {
	return c.doCart(ctx, http.MethodGet, "", token, nil)
}

// AddItem adds quantity units of a product to the remote cart.
// The server decides the resulting quantity (it may clamp against stock).
func (c *Client) AddItem(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error) {
	if quantity < 1 {
		quantity = 1
	}
	body := addRequest{ProductID: wireID(id), Quantity: quantity}
	return c.doCart(ctx, http.MethodPost, "/add", token, body)
}

// RemoveItem removes a product from the remote cart entirely.
func (c *Client) RemoveItem(ctx context.Context, token string, id model.ProductID) (model.Cart, error) {
	return c.doCart(ctx, http.MethodDelete, "/remove/"+url.PathEscape(string(id)), token, nil)
}

// UpdateItem sets the quantity for a product. The server clamps and
// validates; the returned cart reflects what it actually stored.
func (c *Client) UpdateItem(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error) {
	body := updateRequest{Quantity: quantity}
	return c.doCart(ctx, http.MethodPut, "/update/"+url.PathEscape(string(id)), token, body)
}

// MergeCart folds a guest cart into the authenticated backend cart.
// Called exactly once per login session; the backend defines the merge
// semantics (additive by product id per the collaborator contract).
func (c *Client) MergeCart(ctx context.Context, token string, items model.Cart) (model.Cart, error) {
	body := mergeRequest{Items: items}
	return c.doCart(ctx, http.MethodPost, "/merge", token, body)
}

// ClearCart empties the remote cart. Idempotent; the response carries no
// cart payload.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/clear", token, nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return model.NewPayloadError("clear", fmt.Errorf("success=false"))
	}
	return nil
}

// doCart executes a request and unwraps the cart from the envelope.
func (c *Client) doCart(ctx context.Context, method, path, token string, body any) (model.Cart, error) {
	resp, err := c.do(ctx, method, path, token, body)
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.Cart == nil {
		return nil, model.NewPayloadError(opName(method, path), fmt.Errorf("missing success/cart fields"))
	}
	return resp.Cart, nil
}

// do executes one cart API request and decodes the response envelope.
// Context cancellation surfaces as a wrapped context.Canceled, which
// callers distinguish from genuine failures via model.IsCanceled.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (*envelope, error) {
	op := opName(method, path)

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s request: %w", op, err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+cartPath+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	c.setHeaders(req, token, method != http.MethodGet)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if model.IsCanceled(err) || ctx.Err() != nil {
			// Aborted by a superseding operation, not a backend failure.
			return nil, fmt.Errorf("%s aborted: %w", op, context.Canceled)
		}
		return nil, model.NewRemoteError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if model.IsCanceled(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("%s aborted: %w", op, context.Canceled)
		}
		return nil, model.NewRemoteError(op, err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.parseErrorResponse(op, resp.StatusCode, respBody)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, model.NewPayloadError(op, err)
	}
	return &env, nil
}

// setHeaders sets the headers every cart API request carries.
// Mutations additionally send Content-Type and an idempotency key so the
// backend can deduplicate retried writes.
func (c *Client) setHeaders(req *http.Request, token string, mutation bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if mutation {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
}

// parseErrorResponse converts a non-2xx backend response to the error
// taxonomy. Callers treat everything except 401 as an unavailability and
// fall back to local state.
func (c *Client) parseErrorResponse(op string, statusCode int, body []byte) error {
	var apiErr errorResponse
	json.Unmarshal(body, &apiErr) // best effort

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError(op)
	default:
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return model.NewRemoteError(op, fmt.Errorf("status %d: %s", statusCode, msg))
	}
}

// opName labels an operation for error messages, e.g. "GET /cart/add".
func opName(method, path string) string {
	return method + " " + cartPath + path
}
