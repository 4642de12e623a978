package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// Common errors.
var (
	ErrNotFound         = errors.New("http: resource not found")
	ErrForbidden        = errors.New("http: access forbidden")
	ErrUnauthorized     = errors.New("http: unauthorized")
	ErrServerError      = errors.New("http: server error")
	ErrUnexpectedStatus = errors.New("http: unexpected status code")
	ErrHeaderTimeout    = errors.New("http: timeout awaiting response headers")
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// ProbeTimeout bounds a whole existence probe.
	// Default: 5s
	ProbeTimeout time.Duration

	// GetTimeout bounds a download request from dialing until its response
	// headers arrive. The body itself is streamed without a deadline. It
	// does not apply to probes.
	// Default: 60s
	GetTimeout time.Duration

	// ProbeBodyLimit is the number of body bytes a probe reads before
	// closing the response.
	// Default: 1024
	ProbeBodyLimit int64

	// InsecureSkipVerify disables TLS certificate validation.
	InsecureSkipVerify bool
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		ProbeTimeout:        5 * time.Second,
		GetTimeout:          60 * time.Second,
		ProbeBodyLimit:      1024,
		InsecureSkipVerify:  true,
	}
}

// ProbeStatus classifies the result of an existence probe.
type ProbeStatus int

const (
	// Present means the origin answered 200 or 201.
	Present ProbeStatus = iota
	// Absent means the origin answered with any other status below 500.
	Absent
	// Unreachable means the probe timed out, failed at the transport level
	// or the origin answered 5xx.
	Unreachable
)

func (s ProbeStatus) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	case Unreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("ProbeStatus(%d)", int(s))
	}
}

// ProbeResult is the outcome of a single existence probe.
type ProbeResult struct {
	Status     ProbeStatus
	StatusCode int   // zero when no response was received
	Err        error // transport error or ErrServerError, for logging only
}

// Response is a streamed download response.
type Response struct {
	Body          io.ReadCloser
	StatusCode    int
	ContentLength int64
	ETag          string
}

// Client is an HTTP client for probing and streaming files from the origin.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = def.ProbeTimeout
	}
	if opts.GetTimeout <= 0 {
		opts.GetTimeout = def.GetTimeout
	}
	if opts.ProbeBodyLimit < 0 {
		opts.ProbeBodyLimit = 0
	}

	transport := cleanhttp.DefaultPooledTransport()
	transport.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
	transport.MaxIdleConns = opts.MaxIdleConnsPerHost * 2
	transport.DisableCompression = true // bytes on disk must match the origin
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	return &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
}

// Probe checks whether url exists with a single capped-body GET. It never
// returns an error: transport failures and 5xx answers are reported as
// Unreachable.
func (c *Client) Probe(ctx context.Context, url string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{Status: Unreachable, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return ProbeResult{Status: Unreachable, Err: err}
	}
	defer resp.Body.Close()

	if c.opts.ProbeBodyLimit > 0 {
		io.CopyN(io.Discard, resp.Body, c.opts.ProbeBodyLimit)
	}

	res := ProbeResult{
		Status:     ClassifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
	}
	if res.Status == Unreachable {
		res.Err = fmt.Errorf("%w: %s", ErrServerError, resp.Status)
	}
	return res
}

// ClassifyStatus maps an HTTP status code to a probe status.
func ClassifyStatus(code int) ProbeStatus {
	switch {
	case code == http.StatusOK || code == http.StatusCreated:
		return Present
	case code < 500:
		return Absent
	default:
		return Unreachable
	}
}

// Get performs a single streamed GET request. Connecting, the TLS handshake
// and waiting for headers share one GetTimeout deadline; the body is not
// bounded. Non-2xx responses are returned as errors with the body closed.
// The caller must close Response.Body.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}

	timer := time.AfterFunc(c.opts.GetTimeout, cancel)
	resp, err := c.client.Do(req)
	if !timer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("%w after %s", ErrHeaderTimeout, c.opts.GetTimeout)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	return &Response{
		Body:          &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		ETag:          cleanETag(resp.Header.Get("ETag")),
	}, nil
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}
