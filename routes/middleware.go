package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"imagegen/auth"
	"imagegen/logger"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	requestIDKey
)

func tenantFrom(ctx context.Context) string {
	t, _ := ctx.Value(tenantKey).(string)
	return t
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder remembers the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// requestLog tags each request with an id and logs its outcome.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		logger.Infof("request id=%s method=%s path=%s status=%d bytes=%d duration=%s",
			id, r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start))
	})
}

// withTimeout bounds the request context.
func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireTenant verifies the bearer token and stores its subject as the
// tenant on the request context.
func requireTenant(cfg auth.VerifyConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		claims, err := auth.VerifyToken(token, cfg)
		if err != nil {
			logger.Debugf("rejected token for %s: %v", r.URL.Path, err)
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
