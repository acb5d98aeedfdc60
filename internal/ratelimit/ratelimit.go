// Package ratelimit provides sliding-window request admission per client
// address.
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter admits requests using a sliding-window log per client key. A
// request is rejected when the key already has `limit` admitted requests in
// the trailing window; rejected requests are never recorded.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.RWMutex
	clients map[string]*clientWindow
}

// clientWindow holds the admitted-request instants for one client key.
// Pruning and admission happen under its own mutex so the check stays atomic
// per key without serializing unrelated clients.
type clientWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// New creates a Limiter admitting at most limit requests per window per key.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether a request from key at instant now is admitted, and
// records the instant if so.
func (l *Limiter) Allow(key string, now time.Time) bool {
	cw := l.clientFor(key)

	cw.mu.Lock()
	defer cw.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := cw.timestamps[:0]
	for _, ts := range cw.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	cw.timestamps = kept

	if len(cw.timestamps) >= l.limit {
		return false
	}
	cw.timestamps = append(cw.timestamps, now)
	return true
}

func (l *Limiter) clientFor(key string) *clientWindow {
	l.mu.RLock()
	cw, ok := l.clients[key]
	l.mu.RUnlock()
	if ok {
		return cw
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cw, ok = l.clients[key]; ok {
		return cw
	}
	cw = &clientWindow{}
	l.clients[key] = cw
	return cw
}

// Sweep removes client windows with no admitted request in the trailing
// window, bounding memory for abandoned clients.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, cw := range l.clients {
		cw.mu.Lock()
		idle := len(cw.timestamps) == 0 || !cw.timestamps[len(cw.timestamps)-1].After(cutoff)
		cw.mu.Unlock()
		if idle {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle client windows on the given interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := l.Sweep(now); removed > 0 {
					slog.Debug("Rate limiter swept idle clients", "removed", removed)
				}
			}
		}
	}()
}

// Middleware rejects requests exceeding the per-client rate with
// 429 Too Many Requests. Applied before routing, so every endpoint shares
// the same admission budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientKey(r), time.Now()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"Too Many Requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey returns the normalized remote IP used as the rate-limit key.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
