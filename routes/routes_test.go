package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagegen/auth"
	"imagegen/cache"
	"imagegen/cachekey"
	"imagegen/failures"
	"imagegen/imagegen"
	"imagegen/logger"
	"imagegen/metrics"
	"imagegen/models"
	"imagegen/objectsource"
	"imagegen/transform"
)

var testSecret = []byte("routes-test-secret-routes-test-secret")

func TestMain(m *testing.M) {
	logger.InitWriter(io.Discard)
	os.Exit(m.Run())
}

// brokenSource fails every call with a transport error.
type brokenSource struct{ objectsource.Source }

func (brokenSource) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection reset by peer")
}

type testEnv struct {
	handler  http.Handler
	source   *objectsource.LocalSource
	failures *failures.Store
}

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestEnv(t *testing.T, limiter *RateLimiter, wrap func(objectsource.Source) objectsource.Source) *testEnv {
	t.Helper()
	dir := t.TempDir()

	local, err := objectsource.NewLocalSource(filepath.Join(dir, "assets"))
	require.NoError(t, err)
	require.NoError(t, local.Put(context.Background(), "acme/cat.png", pngFixture(t, 80, 40), "image/png"))
	require.NoError(t, local.Put(context.Background(), "acme/broken.png", []byte("not an image"), "image/png"))

	fs, err := failures.Open(filepath.Join(dir, "failures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	var src objectsource.Source = local
	if wrap != nil {
		src = wrap(local)
	}
	svc, err := imagegen.NewService(imagegen.Options{
		DefaultQuality: 85,
		DefaultFormat:  models.FormatJPEG,
		AllowedFormats: models.AllFormats,
		Workers:        2,
	}, imagegen.Deps{
		Source:   src,
		Cache:    cache.NewResultCache(cache.NewMemoryStore(32, time.Minute), cache.Options{TTL: time.Minute, Metrics: m}),
		Engine:   transform.NewEngine(transform.Options{MaxDimension: 2000, DefaultQuality: 85}, nil),
		Failures: fs,
		Metrics:  m,
	})
	require.NoError(t, err)

	server := NewServer(Deps{
		Service:        svc,
		Failures:       fs,
		Verify:         auth.VerifyConfig{SecretKey: testSecret},
		Limiter:        limiter,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RequestTimeout: 5 * time.Second,
	})
	return &testEnv{handler: server.Handler(), source: local, failures: fs}
}

func bearer(t *testing.T, tenant string) string {
	t.Helper()
	tok, err := auth.SignToken(&models.TenantClaims{Subject: tenant, ExpiresAt: time.Now().Add(time.Hour).Unix()}, testSecret)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e *testEnv) do(t *testing.T, method, target, authz string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestImageRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/image-generator/images/cat.png", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/image-generator/images/cat.png", "Bearer junk", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := auth.SignToken(&models.TenantClaims{Subject: "acme"}, []byte("a-different-secret-a-different-secret"))
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, "/image-generator/images/cat.png", "Bearer "+other, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestImageServesTransformedBytes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	authz := bearer(t, "acme")

	w := env.do(t, http.MethodGet, "/image-generator/images/cat.png?w=40&fm=png", authz, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "private, max-age=60", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())

	w = env.do(t, http.MethodGet, "/image-generator/images/cat.png?w=40&fm=png", authz, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

func TestImageDefaultsToJPEG(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/image-generator/images/cat.png?fm=jpg&q=50", bearer(t, "acme"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte{0xff, 0xd8}))
}

func TestImageStatusMapping(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	authz := bearer(t, "acme")

	tests := []struct {
		name   string
		target string
		authz  string
		want   int
	}{
		{"unsupported format", "/image-generator/images/cat.png?fm=gif", authz, http.StatusNotFound},
		{"missing object", "/image-generator/images/dog.png", authz, http.StatusNotFound},
		{"undecodable source", "/image-generator/images/broken.png", authz, http.StatusNotFound},
		{"other tenant", "/image-generator/images/cat.png", bearer(t, "globex"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, tt.authz, nil, "")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestImageProcessingErrorIs500(t *testing.T) {
	env := newTestEnv(t, nil, func(s objectsource.Source) objectsource.Source { return brokenSource{s} })

	w := env.do(t, http.MethodGet, "/image-generator/images/cat.png", bearer(t, "acme"), nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestFailureRecordsHideBackendErrors(t *testing.T) {
	env := newTestEnv(t, nil, func(s objectsource.Source) objectsource.Source { return brokenSource{s} })
	authz := bearer(t, "acme")

	w := env.do(t, http.MethodGet, "/image-generator/images/cat.png", authz, nil, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	spec, err := models.ParseTransformSpec(models.RawParams{}, models.SpecDefaults{Quality: 85, Format: models.FormatJPEG})
	require.NoError(t, err)
	hash := cachekey.DeriveHashed("acme", "cat.png", spec)

	w = env.do(t, http.MethodGet, "/failures?key="+hash, authz, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "fetch", body["stage"])
	assert.Equal(t, "source object could not be fetched", body["message"])
	assert.NotContains(t, w.Body.String(), "connection reset")

	w = env.do(t, http.MethodGet, "/failures/list", authz, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), hash)
	assert.NotContains(t, w.Body.String(), "connection reset")

	rec, err := env.failures.GetFailure("acme", hash)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Error, "connection reset")
}

func TestFailuresAreQueryable(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	authz := bearer(t, "acme")

	w := env.do(t, http.MethodGet, "/image-generator/images/broken.png", authz, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	spec, err := models.ParseTransformSpec(models.RawParams{}, models.SpecDefaults{Quality: 85, Format: models.FormatJPEG})
	require.NoError(t, err)
	hash := cachekey.DeriveHashed("acme", "broken.png", spec)

	w = env.do(t, http.MethodGet, "/failures?key="+hash, authz, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "transform", body["stage"])

	w = env.do(t, http.MethodGet, "/failures/list", bearer(t, "globex"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["count"])

	w = env.do(t, http.MethodGet, "/failures", authz, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimitPerTenant(t *testing.T) {
	env := newTestEnv(t, NewRateLimiter(2, time.Minute), nil)
	acme := bearer(t, "acme")

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/image-generator/images/cat.png", acme, nil, "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := env.do(t, http.MethodGet, "/image-generator/images/cat.png", acme, nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// other tenants have their own budget
	w = env.do(t, http.MethodGet, "/image-generator/images/cat.png", bearer(t, "globex"), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadAndList(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	authz := bearer(t, "acme")

	multipartBody := func(data []byte) (*bytes.Buffer, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "upload.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		return &buf, mw.FormDataContentType()
	}

	body, ct := multipartBody(pngFixture(t, 4, 4))
	w := env.do(t, http.MethodPost, "/image-generator/images/new/dog.png", authz, body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var info models.ObjectInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "acme/new/dog.png", info.Key)
	assert.Equal(t, "image/png", info.ContentType)

	body, ct = multipartBody([]byte("just some text"))
	w = env.do(t, http.MethodPost, "/image-generator/images/notes.txt", authz, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/image-generator/images/x.png", authz, strings.NewReader("nope"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/image-generator/images", authz, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Objects []models.ObjectInfo `json:"objects"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Count)
	for _, o := range list.Objects {
		assert.True(t, strings.HasPrefix(o.Key, "acme/"), o.Key)
	}
}

func TestHealthVersionMetrics(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Checks["cache"])

	w = env.do(t, http.MethodGet, "/version", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var version VersionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &version))
	assert.NotEmpty(t, version.GoVersion)

	env.do(t, http.MethodGet, "/image-generator/images/cat.png", bearer(t, "acme"), nil, "")
	w = env.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "imagegen_cache_misses_total 1")

	w = env.do(t, http.MethodDelete, "/health", "", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, wait := rl.Allow("a")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 1, rl.Sweep(5*time.Minute))

	assert.Nil(t, NewRateLimiter(0, time.Minute))
	var disabled *RateLimiter
	ok, _ = disabled.Allow("a")
	assert.True(t, ok)
}
