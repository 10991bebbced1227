package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/api-gateway/internal/config"
	"github.com/fathima-sithara/social-platform/backend/api-gateway/internal/discovery"
	"github.com/fathima-sithara/social-platform/backend/shared/httpclient"
	"github.com/fathima-sithara/social-platform/backend/shared/middleware"
	"github.com/fathima-sithara/social-platform/backend/shared/utils"
)

// Doer sends a request upstream.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Proxy forwards gateway requests to the services, one circuit breaker per upstream service.
type Proxy struct {
	disc   discovery.Discovery
	client Doer
	cbCfg  config.CircuitBreakerConfig
	log    *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(d discovery.Discovery, client Doer, cbCfg config.CircuitBreakerConfig, log *zap.Logger) *Proxy {
	if log == nil {
		log = zap.NewNop()
	}
	if cbCfg.MaxFailures == 0 {
		cbCfg.MaxFailures = 5
	}
	return &Proxy{
		disc:     d,
		client:   client,
		cbCfg:    cbCfg,
		log:      log,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

func (p *Proxy) breaker(service string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cb, ok := p.breakers[service]; ok {
		return cb
	}
	st := gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    time.Duration(p.cbCfg.IntervalSec) * time.Second,
		Timeout:     time.Duration(p.cbCfg.TimeoutSec) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.cbCfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			p.log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	cb := gobreaker.NewCircuitBreaker(st)
	p.breakers[service] = cb
	return cb
}

// Forward returns a handler that sends the request to service, replacing the
// fromPrefix of the path with toPrefix. /v1/posts/x -> /api/posts/x.
func (p *Proxy) Forward(service, fromPrefix, toPrefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		upstream, err := p.disc.Lookup(ctx, service)
		if err != nil {
			p.log.Warn("service lookup failed", zap.String("service", service), zap.Error(err))
			return utils.JSONError(c, fiber.StatusServiceUnavailable, "service unavailable")
		}
		target, err := url.Parse(upstream)
		if err != nil {
			p.log.Error("bad upstream", zap.String("service", service), zap.String("upstream", upstream), zap.Error(err))
			return utils.JSONError(c, fiber.StatusBadGateway, "bad upstream")
		}

		req, err := p.outbound(ctx, c, target, rewrite(c.Path(), fromPrefix, toPrefix))
		if err != nil {
			return utils.JSONError(c, fiber.StatusBadGateway, "bad gateway")
		}

		// 5xx answers count against the breaker but are still relayed to the caller
		res, err := p.breaker(service).Execute(func() (interface{}, error) {
			resp, err := p.client.Do(ctx, req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return resp, &httpclient.UpstreamError{StatusCode: resp.StatusCode}
			}
			return resp, nil
		})
		if resp, ok := res.(*http.Response); ok && resp != nil {
			defer resp.Body.Close()
			return copyResponse(c, resp)
		}

		var upErr *httpclient.UpstreamError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			p.log.Warn("request blocked by circuit breaker", zap.String("service", service))
			return utils.JSONError(c, fiber.StatusServiceUnavailable, "service temporarily unavailable")
		case errors.As(err, &upErr):
			p.log.Error("upstream failure", zap.String("service", service), zap.Int("status", upErr.StatusCode))
		default:
			p.log.Error("proxy error", zap.String("service", service), zap.Error(err))
		}
		return utils.JSONError(c, fiber.StatusBadGateway, "upstream error")
	}
}

func (p *Proxy) outbound(ctx context.Context, c *fiber.Ctx, target *url.URL, path string) (*http.Request, error) {
	u := *target
	u.Path = strings.TrimSuffix(target.Path, "/") + path
	u.RawQuery = string(c.Request().URI().QueryString())

	var body io.Reader
	if b := c.Body(); len(b) > 0 {
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, c.Method(), u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	c.Request().Header.VisitAll(func(k, v []byte) {
		key := string(k)
		if hopHeader(key) {
			return
		}
		req.Header.Add(key, string(v))
	})
	req.Header.Set("X-Forwarded-For", c.IP())
	// services trust this header only from the gateway
	if uid := middleware.UserID(c); uid != "" {
		req.Header.Set(middleware.UserIDHeader, uid)
	}
	return req, nil
}

func copyResponse(c *fiber.Ctx, resp *http.Response) error {
	for k, vv := range resp.Header {
		if hopHeader(k) {
			continue
		}
		for _, v := range vv {
			c.Response().Header.Add(k, v)
		}
	}
	c.Set("X-Gateway", "api-gateway")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadGateway, "upstream error")
	}
	return c.Status(resp.StatusCode).Send(body)
}

func rewrite(path, fromPrefix, toPrefix string) string {
	rest := strings.TrimPrefix(path, fromPrefix)
	if rest != "" && !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return toPrefix + rest
}

func hopHeader(k string) bool {
	switch http.CanonicalHeaderKey(k) {
	case "Connection", "Keep-Alive", "Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade", "Host", "Content-Length":
		return true
	}
	return false
}
