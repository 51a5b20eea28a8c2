// Package imagegen serves transformed images: it validates the request,
// consults the result cache, fetches the tenant's source object on a miss,
// runs the transform and stores the result.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"imagegen/cache"
	"imagegen/cachekey"
	"imagegen/config"
	"imagegen/failures"
	"imagegen/logger"
	"imagegen/metrics"
	"imagegen/models"
	"imagegen/objectsource"
	"imagegen/transform"
)

// Engine turns source bytes into encoded output.
type Engine interface {
	Run(ctx context.Context, data []byte, spec models.TransformSpec) ([]byte, error)
}

// FailureRecorder journals failed requests.
type FailureRecorder interface {
	StoreFailure(rec failures.FailureRecord) error
}

// Options are the service settings derived from configuration.
type Options struct {
	DefaultQuality int
	DefaultFormat  models.Format
	AllowedFormats []models.Format
	Workers        int
	SingleFlight   bool
	// FlightTimeout bounds shared single-flight work, which runs detached
	// from any one caller's context.
	FlightTimeout time.Duration
}

// OptionsFromConfig parses the format names in cfg.
func OptionsFromConfig(img config.ImageConfig, c config.CacheConfig) (Options, error) {
	def, err := models.ParseFormat(img.DefaultFormat)
	if err != nil {
		return Options{}, fmt.Errorf("image.default_format: %w", err)
	}
	allowed := make([]models.Format, 0, len(img.AllowedFormats))
	for _, name := range img.AllowedFormats {
		f, err := models.ParseFormat(name)
		if err != nil {
			return Options{}, fmt.Errorf("image.allowed_formats: %w", err)
		}
		allowed = append(allowed, f)
	}
	return Options{
		DefaultQuality: img.DefaultQuality,
		DefaultFormat:  def,
		AllowedFormats: allowed,
		Workers:        img.Workers,
		SingleFlight:   c.SingleFlight,
	}, nil
}

// Deps are the collaborators of a Service. Failures and Metrics are optional.
type Deps struct {
	Source   objectsource.Source
	Cache    *cache.ResultCache
	Engine   Engine
	Failures FailureRecorder
	Metrics  *metrics.Metrics
}

// Request identifies one image request.
type Request struct {
	Tenant    string
	ObjectKey string
	Params    models.RawParams
}

// Result is a successful response.
type Result struct {
	Payload     []byte
	ContentType string
	CacheKey    string
	CacheHit    bool
}

// Service is safe for concurrent use.
type Service struct {
	opts     Options
	source   objectsource.Source
	cache    *cache.ResultCache
	engine   Engine
	failures FailureRecorder
	metrics  *metrics.Metrics
	workers  *semaphore.Weighted
	flights  singleflight.Group
}

func NewService(opts Options, deps Deps) (*Service, error) {
	if deps.Source == nil || deps.Cache == nil || deps.Engine == nil {
		return nil, errors.New("imagegen: source, cache and engine are required")
	}
	if !opts.DefaultFormat.Valid() {
		return nil, fmt.Errorf("imagegen: %w: default format", models.ErrUnsupportedFormat)
	}
	if len(opts.AllowedFormats) == 0 {
		opts.AllowedFormats = models.AllFormats
	}
	if opts.DefaultQuality <= 0 || opts.DefaultQuality > 100 {
		opts.DefaultQuality = 85
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.FlightTimeout <= 0 {
		opts.FlightTimeout = 30 * time.Second
	}
	return &Service{
		opts:     opts,
		source:   deps.Source,
		cache:    deps.Cache,
		engine:   deps.Engine,
		failures: deps.Failures,
		metrics:  deps.Metrics,
		workers:  semaphore.NewWeighted(int64(opts.Workers)),
	}, nil
}

// CacheTTL is the lifetime of stored results.
func (s *Service) CacheTTL() time.Duration {
	return s.cache.TTL()
}

// Serve returns the transformed image for req, from cache when possible.
func (s *Service) Serve(ctx context.Context, req Request) (*Result, error) {
	spec, err := models.ParseTransformSpec(req.Params, models.SpecDefaults{
		Quality: s.opts.DefaultQuality,
		Format:  s.opts.DefaultFormat,
	})
	if err != nil {
		return nil, s.fail(newError(KindValidation, "parse", err))
	}
	if !s.allowed(spec.Format) {
		return nil, s.fail(newError(KindValidation, "parse",
			fmt.Errorf("%w: %s is not enabled", models.ErrUnsupportedFormat, spec.Format)))
	}
	storageKey, err := objectsource.ScopedKey(req.Tenant, req.ObjectKey)
	if err != nil {
		return nil, s.fail(newError(KindValidation, "key", err))
	}

	key := cachekey.Derive(req.Tenant, req.ObjectKey, spec)
	if payload, ok := s.cache.Get(ctx, key); ok {
		s.metrics.Request("hit")
		return &Result{Payload: payload, ContentType: spec.Format.ContentType(), CacheKey: key, CacheHit: true}, nil
	}

	var payload []byte
	if s.opts.SingleFlight {
		// the shared work outlives whichever caller started it; each caller
		// only stops waiting when its own context ends
		ch := s.flights.DoChan(key, func() (any, error) {
			flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FlightTimeout)
			defer cancel()
			return s.produce(flightCtx, req, storageKey, key, spec)
		})
		select {
		case <-ctx.Done():
			return nil, s.fail(newError(KindProcessing, "transform", ctx.Err()))
		case res := <-ch:
			if res.Shared {
				logger.Debugf("shared in-flight result for %s", key)
			}
			if res.Err != nil {
				return nil, s.fail(res.Err)
			}
			payload = res.Val.([]byte)
		}
	} else {
		payload, err = s.produce(ctx, req, storageKey, key, spec)
		if err != nil {
			return nil, s.fail(err)
		}
	}

	s.metrics.Request("miss")
	return &Result{Payload: payload, ContentType: spec.Format.ContentType(), CacheKey: key}, nil
}

// produce runs fetch, transform and populate for one cache miss.
func (s *Service) produce(ctx context.Context, req Request, storageKey, key string, spec models.TransformSpec) ([]byte, error) {
	data, err := s.source.Get(ctx, storageKey)
	s.metrics.SourceFetch()
	if err != nil {
		kind := KindProcessing
		if errors.Is(err, objectsource.ErrNotFound) {
			kind = KindNotFound
		}
		s.record(req, spec, "fetch", err)
		return nil, newError(kind, "fetch", err)
	}

	payload, err := s.transform(ctx, data, spec)
	if err != nil {
		s.record(req, spec, "transform", err)
		return nil, err
	}

	s.cache.Set(ctx, key, payload)
	return payload, nil
}

func (s *Service) transform(ctx context.Context, data []byte, spec models.TransformSpec) ([]byte, error) {
	if err := s.workers.Acquire(ctx, 1); err != nil {
		return nil, newError(KindProcessing, "transform", err)
	}
	defer s.workers.Release(1)

	start := time.Now()
	payload, err := s.engine.Run(ctx, data, spec)
	s.metrics.ObserveTransform(time.Since(start))

	switch {
	case err == nil && len(payload) == 0:
		return nil, newError(KindNotFound, "transform", errors.New("transform produced no output"))
	case err == nil:
		return payload, nil
	case errors.Is(err, transform.ErrDecodeFailure), errors.Is(err, models.ErrUnsupportedFormat):
		return nil, newError(KindNotFound, "transform", err)
	default:
		return nil, newError(KindProcessing, "transform", err)
	}
}

func (s *Service) allowed(f models.Format) bool {
	for _, a := range s.opts.AllowedFormats {
		if a == f {
			return true
		}
	}
	return false
}

func (s *Service) record(req Request, spec models.TransformSpec, stage string, err error) {
	if errors.Is(err, objectsource.ErrNotFound) {
		logger.Warnf("%s failed for %s/%s [%s]: %v", stage, req.Tenant, req.ObjectKey, spec, err)
	} else {
		logger.Errorf("%s failed for %s/%s [%s]: %v", stage, req.Tenant, req.ObjectKey, spec, err)
	}
	if s.failures == nil {
		return
	}
	rec := failures.FailureRecord{
		Hash:      cachekey.DeriveHashed(req.Tenant, req.ObjectKey, spec),
		Tenant:    req.Tenant,
		ObjectKey: req.ObjectKey,
		Spec:      spec.String(),
		Stage:     stage,
		Error:     err.Error(),
	}
	if ferr := s.failures.StoreFailure(rec); ferr != nil {
		logger.Warnf("failed to record failure for %s: %v", rec.Hash, ferr)
	}
}

func (s *Service) fail(err error) error {
	s.metrics.Request(KindOf(err).String())
	return err
}

// List returns the objects stored for tenant.
func (s *Service) List(ctx context.Context, tenant string) ([]models.ObjectInfo, error) {
	if err := objectsource.CheckTenant(tenant); err != nil {
		return nil, newError(KindValidation, "list", err)
	}
	objects, err := s.source.List(ctx, objectsource.TenantPrefix(tenant))
	if err != nil {
		logger.Errorf("list failed for tenant %s: %v", tenant, err)
		return nil, newError(KindProcessing, "list", err)
	}
	if objects == nil {
		objects = []models.ObjectInfo{}
	}
	return objects, nil
}

// Upload stores data as tenant/objectKey. Only image payloads are accepted.
func (s *Service) Upload(ctx context.Context, tenant, objectKey string, data []byte) (models.ObjectInfo, error) {
	storageKey, err := objectsource.ScopedKey(tenant, objectKey)
	if err != nil {
		return models.ObjectInfo{}, newError(KindValidation, "upload", err)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return models.ObjectInfo{}, newError(KindValidation, "upload",
			fmt.Errorf("unsupported content type %s", contentType))
	}
	if err := s.source.Put(ctx, storageKey, data, contentType); err != nil {
		logger.Errorf("upload failed for %s: %v", storageKey, err)
		return models.ObjectInfo{}, newError(KindProcessing, "upload", err)
	}
	return models.ObjectInfo{
		Key:          storageKey,
		Size:         int64(len(data)),
		LastModified: time.Now(),
		ContentType:  contentType,
	}, nil
}

// Ping reports whether the cache backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}
