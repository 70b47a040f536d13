// Package client talks to the format service over loopback HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrServiceUnavailable is the only error editors see from a format call. Its
// text is shown to users verbatim.
var ErrServiceUnavailable = errors.New("spring-javaformat service is not ready, please hold for a few seconds")

const (
	codePath   = "/format/code"
	filePath   = "/format"
	healthPath = "/health"
)

// EndpointSource yields the port the format service is believed to listen on.
type EndpointSource interface {
	Endpoint() int
}

// Options tune transport behaviour. The zero value matches the service
// contract: no timeout beyond the transport default and no retries.
type Options struct {
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	MaxRetries     uint64
	RetryInterval  time.Duration
	HTTPClient     *http.Client
	Host           string
}

// Client issues format requests to the current endpoint.
type Client struct {
	endpoints EndpointSource
	http      *http.Client
	opts      Options
}

func New(endpoints EndpointSource, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.RequestTimeout}
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	return &Client{endpoints: endpoints, http: hc, opts: opts}
}

type codeRequest struct {
	Source string `json:"source"`
}

type fileRequest struct {
	FilePath string `json:"filePath"`
}

// FormatCode returns the formatted form of source.
func (c *Client) FormatCode(ctx context.Context, source string) (string, error) {
	return c.post(ctx, codePath, codeRequest{Source: source})
}

// FormatFile asks the service to format the file at path and returns its
// formatted contents. The file is read by the service, not by this process.
func (c *Client) FormatFile(ctx context.Context, path string) (string, error) {
	return c.post(ctx, filePath, fileRequest{FilePath: path})
}

// CheckHealth performs the liveness request against an explicit port.
func (c *Client) CheckHealth(ctx context.Context, port int) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.HealthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(port, healthPath), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health request: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) url(port int, path string) string {
	return fmt.Sprintf("http://%s:%d%s", c.opts.Host, port, path)
}

func (c *Client) post(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	// a request already sent runs to completion server-side; the caller's
	// cancellation only stops it being waited on between retries
	sendCtx := context.WithoutCancel(ctx)

	var out string
	op := func() error {
		text, err := c.send(sendCtx, path, body)
		if err != nil {
			return err
		}
		out = text
		return nil
	}

	if c.opts.MaxRetries == 0 {
		err = op()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = c.opts.RetryInterval
		b := backoff.WithContext(backoff.WithMaxRetries(eb, c.opts.MaxRetries), ctx)
		err = backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
			log.Printf("WARN: format request %s failed, retrying in %s: %v", path, wait, err)
		})
	}
	if err != nil {
		log.Printf("ERROR: format request %s to port %d failed: %v", path, c.endpoints.Endpoint(), err)
		return "", ErrServiceUnavailable
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, path string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.endpoints.Endpoint(), path), bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return string(data), nil
}
