// Package staffapi is the typed client of the staff orders REST API.
package staffapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kds/internal/models"
)

var (
	ErrDecode      = errors.New("staff api: malformed response")
	ErrMissingData = errors.New("staff api: response carries no data")
	ErrInvalidID   = errors.New("staff api: empty identifier")
)

// APIError is returned for non-2xx responses and for envelopes with status "error".
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("staff api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("staff api: http %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the staff API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a client rooted at baseURL, e.g. "http://backend:3000/api".
// The default transport is traced with otelhttp and has no timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) FetchActiveOrders(ctx context.Context) ([]models.Order, error) {
	var env models.Envelope[*models.OrdersData]
	if err := c.do(ctx, http.MethodGet, "/staff/orders/active", nil, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, ErrMissingData
	}
	if env.Data.Orders == nil {
		return []models.Order{}, nil
	}
	return env.Data.Orders, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return models.Order{}, ErrInvalidID
	}
	var env models.Envelope[*models.OrderData]
	if err := c.do(ctx, http.MethodGet, "/staff/orders/"+url.PathEscape(orderID), nil, &env); err != nil {
		return models.Order{}, err
	}
	return orderFrom(env)
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return models.Order{}, ErrInvalidID
	}
	var env models.Envelope[*models.OrderData]
	path := "/staff/orders/" + url.PathEscape(orderID) + "/status"
	if err := c.do(ctx, http.MethodPut, path, models.StatusUpdate{Status: string(status)}, &env); err != nil {
		return models.Order{}, err
	}
	return orderFrom(env)
}

// UpdateItemStatus returns the backend's data payload undecoded; its shape is not fixed.
func (c *Client) UpdateItemStatus(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error) {
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(itemID) == "" {
		return nil, ErrInvalidID
	}
	var env models.RawEnvelope
	path := "/staff/orders/" + url.PathEscape(orderID) + "/items/" + url.PathEscape(itemID) + "/status"
	if err := c.do(ctx, http.MethodPut, path, models.StatusUpdate{Status: string(status)}, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func orderFrom(env models.Envelope[*models.OrderData]) (models.Order, error) {
	if env.Data == nil || env.Data.Order == nil {
		return models.Order{}, ErrMissingData
	}
	return *env.Data.Order, nil
}

type envelopeHeader struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var header envelopeHeader
		_ = json.Unmarshal(raw, &header)
		return &APIError{StatusCode: resp.StatusCode, Message: header.Message}
	}

	var header envelopeHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if header.Status == models.EnvelopeError {
		return &APIError{StatusCode: resp.StatusCode, Message: header.Message}
	}
	if header.Status != models.EnvelopeSuccess {
		return fmt.Errorf("%w: unexpected envelope status %q", ErrDecode, header.Status)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
