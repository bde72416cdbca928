package server

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/complaintqa/internal/logging"
)

// Every question costs an embedding call and usually a model generation, so
// the query endpoint admits one question per second per client with room
// for a short burst of follow-ups.
const (
	defaultQueryRate  = 1
	defaultQueryBurst = 5
)

// idleClientTTL is how long a client's bucket survives without questions.
const idleClientTTL = 5 * time.Minute

// clientBucket is one client's token bucket.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// queryLimiter throttles POST /api/query per client IP.
type queryLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int

	// onThrottle runs for every refused question.
	onThrottle func()
}

// newQueryLimiter starts a queryLimiter allowing rps questions per second
// per client with the given burst. The returned function stops its
// idle-client sweeper.
func newQueryLimiter(rps float64, burst int, onThrottle func()) (*queryLimiter, func()) {
	if onThrottle == nil {
		onThrottle = func() {}
	}
	ql := &queryLimiter{
		clients:    make(map[string]*clientBucket),
		rps:        rate.Limit(rps),
		burst:      burst,
		onThrottle: onThrottle,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				ql.sweep(now)
			}
		}
	}()
	return ql, func() { close(done) }
}

// bucket returns the client's limiter, creating it on first use.
func (ql *queryLimiter) bucket(client string, now time.Time) *rate.Limiter {
	ql.mu.Lock()
	defer ql.mu.Unlock()

	b, ok := ql.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(ql.rps, ql.burst)}
		ql.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweep drops clients idle for longer than idleClientTTL.
func (ql *queryLimiter) sweep(now time.Time) {
	ql.mu.Lock()
	defer ql.mu.Unlock()

	for client, b := range ql.clients {
		if now.Sub(b.lastSeen) > idleClientTTL {
			delete(ql.clients, client)
		}
	}
}

// size reports the number of tracked clients.
func (ql *queryLimiter) size() int {
	ql.mu.Lock()
	defer ql.mu.Unlock()
	return len(ql.clients)
}

// middleware refuses questions over the client's budget with 429, a JSON
// error body and a Retry-After header in whole seconds.
func (ql *queryLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		client := clientIP(r)
		res := ql.bucket(client, now).ReserveN(now, 1)

		delay := res.DelayFrom(now)
		if res.OK() && delay == 0 {
			next.ServeHTTP(w, r)
			return
		}
		res.CancelAt(now)

		retry := 1
		if res.OK() {
			retry = max(1, int(math.Ceil(delay.Seconds())))
		}
		ql.onThrottle()

		log := logging.FromContext(r.Context())
		log.Warn("query throttled",
			slog.String("client", client),
			slog.Int("retry_after_s", retry),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, log, http.StatusTooManyRequests,
			fmt.Sprintf("too many questions from this client, retry in %ds", retry))
	})
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored
// because the server binds to loopback by default.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
