// Package upstream talks to the ERP back office.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"tillsync/internal/domain"
	applog "tillsync/internal/log"
)

const maxResponseBody = 1 << 20

// Envelope is the ERP's standard JSON response shape.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type CheckoutResult struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Options struct {
	BaseURL         string
	HealthPath      string
	SearchTimeout   time.Duration
	CheckoutTimeout time.Duration
	SyncTimeout     time.Duration
	HTTPClient      *http.Client
}

type Client struct {
	base       string
	healthPath string
	http       *http.Client
	cb         *gobreaker.CircuitBreaker[*response]

	searchTimeout   time.Duration
	checkoutTimeout time.Duration
	syncTimeout     time.Duration
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	c := &Client{
		base:            opts.BaseURL,
		healthPath:      opts.HealthPath,
		http:            hc,
		searchTimeout:   orDefault(opts.SearchTimeout, 10*time.Second),
		checkoutTimeout: orDefault(opts.CheckoutTimeout, 30*time.Second),
		syncTimeout:     orDefault(opts.SyncTimeout, 30*time.Second),
	}
	c.cb = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "erp",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only outages trip the breaker; a 422 means the ERP is healthy.
		IsSuccessful: func(err error) bool {
			var ue *Error
			if errors.As(err, &ue) {
				return !ue.Retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			applog.Info(nil, "upstream.breaker", map[string]any{
				"component": "upstream", "breaker": name, "from": from.String(), "to": to.String(),
			})
		},
	})
	return c
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Checkout posts a sale to the branch checkout endpoint. idemKey lets the
// ERP recognise a replay of a sale it already recorded.
func (c *Client) Checkout(ctx context.Context, branchID int64, req domain.CheckoutRequest, idemKey string) (CheckoutResult, error) {
	body, err := json.Marshal(struct {
		Items []domain.CheckoutItem `json:"items"`
	}{Items: req.Items})
	if err != nil {
		return CheckoutResult{}, err
	}
	hdr := map[string]string{}
	if idemKey != "" {
		hdr["Idempotency-Key"] = idemKey
	}
	path := fmt.Sprintf("/api/v1/branches/%d/pos/checkout", branchID)
	resp, err := c.do(ctx, c.checkoutTimeout, http.MethodPost, path, body, hdr)
	if err != nil {
		return CheckoutResult{}, err
	}

	var env Envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return CheckoutResult{}, &Error{Kind: KindServer, Status: resp.status, Message: "malformed checkout response", Err: err}
	}
	if !env.Success {
		return CheckoutResult{}, &Error{Kind: KindRejected, Status: resp.status, Message: env.Message, Fields: env.Errors}
	}
	out := CheckoutResult{Message: env.Message, Data: env.Data}
	var data struct {
		Code string `json:"code"`
	}
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &data)
	}
	out.Code = data.Code
	return out, nil
}

// Sync posts one generic queue payload. Any 2xx means the ERP applied it.
func (c *Client) Sync(ctx context.Context, syncType string, payload json.RawMessage) error {
	_, err := c.do(ctx, c.syncTimeout, http.MethodPost, "/api/sync", payload, map[string]string{"X-Sync-Type": syncType})
	return err
}

// SearchProducts runs the branch product search.
func (c *Client) SearchProducts(ctx context.Context, branchID int64, q string) ([]domain.Product, error) {
	path := fmt.Sprintf("/api/v1/branches/%d/products/search?q=%s", branchID, url.QueryEscape(q))
	resp, err := c.do(ctx, c.searchTimeout, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var env struct {
		Success bool             `json:"success"`
		Data    []domain.Product `json:"data"`
		Message string           `json:"message"`
	}
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, &Error{Kind: KindServer, Status: resp.status, Message: "malformed search response", Err: err}
	}
	if !env.Success {
		return nil, &Error{Kind: KindRejected, Status: resp.status, Message: env.Message}
	}
	return env.Data, nil
}

// Ping reports whether the ERP answers at all. It bypasses the breaker so a
// recovering server is noticed while the breaker is still open.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, orDefault(timeout, 5*time.Second))
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+c.healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	return resp.Body.Close()
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body []byte, hdr map[string]string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.cb.Execute(func() (*response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range hdr {
			req.Header.Set(k, v)
		}

		hr, err := c.http.Do(req)
		if err != nil {
			return nil, classifyTransport(err)
		}
		defer hr.Body.Close()
		b, err := io.ReadAll(io.LimitReader(hr.Body, maxResponseBody))
		if err != nil {
			return nil, classifyTransport(err)
		}
		r := &response{status: hr.StatusCode, header: hr.Header, body: b}
		if hr.StatusCode < 200 || hr.StatusCode > 299 {
			return r, statusError(r)
		}
		return r, nil
	})
	if err != nil {
		var ue *Error
		if !errors.As(err, &ue) {
			return resp, classifyTransport(err)
		}
		return resp, err
	}
	return resp, nil
}

func statusError(r *response) *Error {
	e := &Error{Kind: kindForStatus(r.status), Status: r.status}
	var env Envelope
	if json.Unmarshal(r.body, &env) == nil {
		e.Message = env.Message
		e.Fields = env.Errors
	}
	return e
}
