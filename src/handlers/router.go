package handlers

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"places_bot/src/ratelimit"
	"places_bot/src/types"
)

type RouterOptions struct {
	Limiter    *ratelimit.KeyLimiter
	OnThrottle func()
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter registers the place routes on a fresh mux and wraps it with
// request ids, access logging and per-client rate limiting.
func NewRouter(client types.DataStore, log *slog.Logger, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h func(http.ResponseWriter, *http.Request, types.DataStore, *slog.Logger)) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			h(w, r, client, log)
		})
	}

	handle("POST /add_place", HandleAddPlace)
	handle("GET /place_by_name/{name...}", HandlePlaceByName)
	handle("GET /place_by_address/{address...}", HandlePlaceByAddress)
	handle("GET /list_places/{category}", HandleListPlaces)
	handle("GET /list_all_places", HandleListAllPlaces)
	handle("PUT /update_place/{name...}", HandleUpdatePlace)
	handle("DELETE /delete_place/{name...}", HandleDeletePlace)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	var h http.Handler = mux
	h = rateLimit(h, opts.Limiter, opts.OnThrottle, log)
	h = accessLog(h, log)
	h = requestID(h)
	return h
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", RequestID(r.Context()),
		)
	})
}

func rateLimit(next http.Handler, limiter *ratelimit.KeyLimiter, onThrottle func(), log *slog.Logger) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientIP(r), time.Now()) {
			if onThrottle != nil {
				onThrottle()
			}
			writeError(w, log, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
