package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type ClientConfig struct {
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

type Client struct {
	http *http.Client
	conf ClientConfig
}

func NewClient(conf ClientConfig) *Client {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    conf.MaxIdleConns,
		IdleConnTimeout: conf.IdleConnTimeout,
	}
	return &Client{
		http: &http.Client{Transport: tr, Timeout: conf.Timeout},
		conf: conf,
	}
}

// UpstreamError reports a 5xx answer that survived every retry.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("upstream status %d", e.StatusCode) }

// Do sends req. Safe methods are retried with exponential backoff on transport errors
// and 5xx answers; anything else is sent exactly once, since a repeated POST could
// publish the same event twice.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !idempotent(req.Method) {
		return c.http.Do(req.WithContext(ctx))
	}

	var resp *http.Response
	operation := func() error {
		r, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		if r.StatusCode >= 500 {
			// drain body and close to reuse connection
			_, _ = io.Copy(io.Discard, r.Body)
			r.Body.Close()
			return &UpstreamError{StatusCode: r.StatusCode}
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = c.conf.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
