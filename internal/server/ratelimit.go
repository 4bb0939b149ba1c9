package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyedLimiter rate-limits per key (IP, email, token) with idle eviction.
type keyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	buckets map[string]*limiterBucket
}

type limiterBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(limit rate.Limit, burst int, ttl time.Duration) *keyedLimiter {
	return &keyedLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		buckets: make(map[string]*limiterBucket),
	}
}

func (k *keyedLimiter) allow(key string) bool {
	now := time.Now()
	k.mu.Lock()
	defer k.mu.Unlock()
	b := k.buckets[key]
	if b == nil {
		b = &limiterBucket{lim: rate.NewLimiter(k.limit, k.burst), lastSeen: now}
		k.buckets[key] = b
	}
	b.lastSeen = now

	for key, bucket := range k.buckets {
		if now.Sub(bucket.lastSeen) > k.ttl {
			delete(k.buckets, key)
		}
	}
	return b.lim.Allow()
}

func getClientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
