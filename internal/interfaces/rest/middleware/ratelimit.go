package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client IP. Buckets untouched for
// IdleTTL are dropped.
type RateLimiter struct {
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
	trusted []netip.Prefix
	logger  *slog.Logger
}

// NewRateLimiter builds a limiter. Forwarding headers are only honoured when
// the connecting peer matches one of trustedProxies.
func NewRateLimiter(cfg config.RateLimitConfig, trustedProxies []string, logger *slog.Logger) (*RateLimiter, error) {
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}

	trusted := make([]netip.Prefix, 0, len(trustedProxies))
	for _, raw := range trustedProxies {
		prefix, err := parsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		trusted = append(trusted, prefix)
	}

	return &RateLimiter{
		buckets: cache.New(idle, 2*idle),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		trusted: trusted,
		logger:  logger,
	}, nil
}

// Allow reports whether client may mint another challenge now.
func (l *RateLimiter) Allow(client string) bool {
	return l.bucket(client).Allow()
}

// AllowChallenge charges r's client for one challenge. When the bucket is
// empty it writes the 429 response and returns false. A nil limiter allows everything.
func (l *RateLimiter) AllowChallenge(w http.ResponseWriter, r *http.Request) bool {
	if l == nil {
		return true
	}

	client := l.ClientIP(r)
	if l.Allow(client) {
		return true
	}

	metrics.RateLimited.Inc()
	l.logger.Warn("challenge rate limit exceeded",
		"client", client,
		"request_id", GetRequestID(r.Context()),
	)
	w.Header().Set("Retry-After", "1")
	rest.WriteError(w, application.NewRateLimitedError(), l.logger)
	return false
}

// ClientIP is the socket peer, unless the peer is a trusted proxy, in which
// case it is the nearest untrusted hop of X-Forwarded-For (or X-Real-IP).
func (l *RateLimiter) ClientIP(r *http.Request) string {
	peer := remoteIP(r.RemoteAddr)
	if !l.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !l.isTrusted(hop) {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if _, err := netip.ParseAddr(realIP); err == nil {
			return realIP
		}
	}
	return peer
}

func (l *RateLimiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (l *RateLimiter) bucket(client string) *rate.Limiter {
	if v, found := l.buckets.Get(client); found {
		limiter := v.(*rate.Limiter)
		l.buckets.SetDefault(client, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(client, limiter, cache.DefaultExpiration); err != nil {
		if v, found := l.buckets.Get(client); found {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

func parsePrefix(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
