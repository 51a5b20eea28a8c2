// Package routes exposes the image service over HTTP.
package routes

import (
	"net/http"
	"time"

	"imagegen/auth"
	"imagegen/failures"
	"imagegen/imagegen"
)

// Deps configure a Server. Failures, Metrics and Limiter are optional.
type Deps struct {
	Service        *imagegen.Service
	Failures       *failures.Store
	Verify         auth.VerifyConfig
	Limiter        *RateLimiter
	Metrics        http.Handler
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

type Server struct {
	svc       *imagegen.Service
	failures  *failures.Store
	verify    auth.VerifyConfig
	limiter   *RateLimiter
	metrics   http.Handler
	timeout   time.Duration
	maxUpload int64
}

func NewServer(d Deps) *Server {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 32 << 20 // 32 MB max
	}
	return &Server{
		svc:       d.Service,
		failures:  d.Failures,
		verify:    d.Verify,
		limiter:   d.Limiter,
		metrics:   d.Metrics,
		timeout:   d.RequestTimeout,
		maxUpload: d.MaxUploadBytes,
	}
}

// Handler registers every route and wraps them in the shared middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	tenantRoute := func(h http.HandlerFunc) http.Handler {
		var next http.Handler = h
		if s.limiter != nil {
			next = s.limiter.middleware(next)
		}
		return requireTenant(s.verify, withTimeout(s.timeout, next))
	}

	mux.Handle("GET /image-generator/images/{objectKey...}", tenantRoute(s.ImageHandler))
	mux.Handle("POST /image-generator/images/{objectKey...}", tenantRoute(s.UploadHandler))
	mux.Handle("GET /image-generator/images", tenantRoute(s.ListHandler))
	if s.failures != nil {
		mux.Handle("GET /failures", tenantRoute(s.FailureQueryHandler))
		mux.Handle("GET /failures/list", tenantRoute(s.FailureListHandler))
	}

	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /version", VersionHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return requestLog(mux)
}
