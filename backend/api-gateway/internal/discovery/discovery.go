package discovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/api-gateway/internal/config"
	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

// Discovery resolves a service name to a base URL such as http://10.0.0.4:3002.
type Discovery interface {
	Lookup(ctx context.Context, service string) (string, error)
}

type staticDiscovery struct {
	m map[string]string
}

func (s *staticDiscovery) Lookup(_ context.Context, service string) (string, error) {
	if v, ok := s.m[service]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("service %s: %w", service, apperr.ErrServiceUnavailable)
}

type cached struct {
	urls    []string
	fetched time.Time
	next    atomic.Uint64
}

type consulDiscovery struct {
	client *consulapi.Client
	ttl    time.Duration
	mu     sync.RWMutex
	cache  map[string]*cached
	log    *zap.Logger
}

// Lookup returns healthy instances in round robin. Results are cached for ttl.
func (c *consulDiscovery) Lookup(ctx context.Context, service string) (string, error) {
	c.mu.RLock()
	e, ok := c.cache[service]
	c.mu.RUnlock()
	if ok && time.Since(e.fetched) < c.ttl {
		return e.pick(), nil
	}

	entries, _, err := c.client.Health().Service(service, "", true, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		if ok {
			c.log.Warn("consul lookup failed, using stale instances", zap.String("service", service), zap.Error(err))
			return e.pick(), nil
		}
		return "", fmt.Errorf("consul lookup %s: %w: %w", service, apperr.ErrServiceUnavailable, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no healthy instances for %s: %w", service, apperr.ErrServiceUnavailable)
	}
	urls := make([]string, 0, len(entries))
	for _, en := range entries {
		addr := en.Service.Address
		if addr == "" && en.Node != nil {
			addr = en.Node.Address
		}
		urls = append(urls, fmt.Sprintf("http://%s:%d", addr, en.Service.Port))
	}

	fresh := &cached{urls: urls, fetched: time.Now()}
	c.mu.Lock()
	c.cache[service] = fresh
	c.mu.Unlock()
	return fresh.pick(), nil
}

func (e *cached) pick() string {
	i := e.next.Add(1) - 1
	return e.urls[i%uint64(len(e.urls))]
}

// New prefers Consul when an address is configured, otherwise the static service map.
func New(cfg config.DiscoveryConfig, log *zap.Logger) (Discovery, error) {
	if cfg.ConsulAddr != "" {
		consulCfg := consulapi.DefaultConfig()
		consulCfg.Address = cfg.ConsulAddr
		client, err := consulapi.NewClient(consulCfg)
		if err != nil {
			return nil, err
		}
		ttl := cfg.CacheTTL()
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		return &consulDiscovery{client: client, ttl: ttl, cache: map[string]*cached{}, log: log}, nil
	}
	return &staticDiscovery{m: cfg.Services}, nil
}
