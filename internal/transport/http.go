// Package transport performs the network exchange with the activation
// service and turns the wire reply into a classified, parsed response.
package transport

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"context"

	"go.uber.org/zap"

	"devactivate/internal/activation"
)

const defaultTimeout = 60 * time.Second

// maximum reply size; activation payloads are tiny, anything near this is
// garbage
const maxResponseBytes = 4 << 20

// Client sends encoded activation requests over HTTPS.
type Client struct {
	http  *http.Client
	log   *zap.Logger
	debug bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a logger; defaults to zap.NewNop.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTimeout overrides the per-exchange timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification. The stock activation
// endpoints historically required this for resigned services.
func WithInsecureTLS() Option {
	return func(c *Client) {
		transport := c.http.Transport.(*http.Transport)
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
}

// WithDebug dumps request and response traffic through the logger at debug
// level.
func WithDebug(on bool) Option {
	return func(c *Client) {
		c.debug = on
	}
}

// New returns a transport client.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send encodes the request, POSTs it, and classifies and parses the reply.
// The raw reply is retained on the response even when parsing fails, for
// diagnosis only; it is never needed to reconstruct a retry.
func (c *Client) Send(ctx context.Context, req *activation.Request) (*activation.Response, error) {
	body, headers, err := req.Encode()
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", activation.ErrInternal, err)
	}
	for name, values := range headers {
		for _, v := range values {
			httpReq.Header.Set(name, v)
		}
	}

	if c.debug {
		c.log.Debug("request",
			zap.String("url", req.URL),
			zap.Any("headers", headers),
			zap.ByteString("body", body))
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("activation service unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	resp := activation.NewResponse()
	resp.RawContent = raw
	for name, values := range httpResp.Header {
		for _, v := range values {
			resp.AddHeader(name, v)
		}
	}

	if c.debug {
		c.log.Debug("response",
			zap.Int("status", httpResp.StatusCode),
			zap.Stringer("dialect", resp.Dialect),
			zap.ByteString("body", raw))
	}
	if httpResp.StatusCode >= 400 {
		c.log.Warn("activation service returned an error status",
			zap.Int("status", httpResp.StatusCode),
			zap.String("url", req.URL))
	}

	if err := resp.Parse(); err != nil {
		c.log.Debug("unparseable response retained for diagnosis",
			zap.Error(err),
			zap.ByteString("raw", raw))
		return nil, err
	}
	return resp, nil
}
