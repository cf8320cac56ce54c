// Package api is the request/response transport to the durable store.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/golang/glog"
)

const (
	defaultHTTPTimeout        = 60 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
	defaultHTTPTLSTimeout     = 5 * time.Second

	// AuthHeader carries the session token on every durable call.
	AuthHeader = "x-auth-token"
	// ConnectionHeader names the caller's live socket so the server keeps
	// the resulting broadcast off it.
	ConnectionHeader = "x-connection-id"

	maxErrorBody = 64 << 10
)

// TokenSource supplies the current auth token, empty when signed out.
type TokenSource interface {
	Token() string
}

type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type Client struct {
	baseURL    string
	http       *http.Client
	tokens     TokenSource
	connection func() string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithConnectionID sends the id returned by f with every call. An empty id
// is left off.
func WithConnectionID(f func() string) Option {
	return func(c *Client) { c.connection = f }
}

func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = TokenFunc(func() string { return "" })
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    defaultClient(),
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHTTPConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHTTPTimeout,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one durable call.
type request struct {
	op     string
	method string
	path   string
	body   any
	// raw overrides body with a pre-encoded payload.
	raw         io.Reader
	contentType string
	authed      bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	token := c.tokens.Token()
	if r.authed && token == "" {
		return apierr.New(apierr.KindAuth, r.op, "no auth token")
	}

	body := r.raw
	contentType := r.contentType
	if body == nil && r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return apierr.Validation(r.op, "encode request: %v", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return apierr.Validation(r.op, "build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set(AuthHeader, token)
	}
	if c.connection != nil {
		if id := c.connection(); id != "" {
			req.Header.Set(ConnectionHeader, id)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		glog.V(1).Infof("[api]%s %s error = %s", r.method, r.path, err)
		return apierr.Network(r.op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		glog.V(1).Infof("[api]%s %s status = %d", r.method, r.path, resp.StatusCode)
		return apierr.FromStatus(r.op, resp.StatusCode, errorMessage(data))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return apierr.New(apierr.KindServer, r.op, "empty response body")
		}
		return &apierr.Error{Kind: apierr.KindServer, Op: r.op, Message: "decode response", Err: err}
	}
	return nil
}

// errorMessage extracts a human readable message from an error body. The
// backend answers with {"message"}, some middleware with {"error"}.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
