package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/greeks/contextx"
	"github.com/wyfcoding/greeks/idgen"
	"github.com/wyfcoding/greeks/metrics"
	"github.com/wyfcoding/greeks/xerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Recovery(logger))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestRequestID(t *testing.T) {
	gen, err := idgen.NewGenerator(idgen.Config{MachineID: 1})
	require.NoError(t, err)

	var seen string
	r := gin.New()
	r.Use(RequestID(gen))
	r.GET("/", func(c *gin.Context) { seen = contextx.GetRequestID(c.Request.Context()) })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "upstream-1")
	rec = serve(r, req)
	assert.Equal(t, "upstream-1", seen)
	assert.Equal(t, "upstream-1", rec.Header().Get(HeaderXRequestID))
}

func TestHTTPErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(HTTPErrorHandler())
	r.GET("/bad", func(c *gin.Context) {
		_ = c.Error(xerrors.ErrInvalidVolatility.Clone().WithContext("field", "volatility"))
	})
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(400104), body["code"])
	assert.Equal(t, "volatility", body["field"])

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, "fine", rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(NewLocalRateLimitMiddleware(0.001, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

type keyRecorder struct{ keys []string }

func (k *keyRecorder) Allow(_ context.Context, key string) (bool, error) {
	k.keys = append(k.keys, key)
	return true, nil
}

func TestRateLimitKeyPrefersContextIP(t *testing.T) {
	rec := &keyRecorder{}
	r := gin.New()
	r.GET("/ctx", func(c *gin.Context) {
		c.Request = c.Request.WithContext(contextx.WithIP(c.Request.Context(), "203.0.113.9"))
		c.Next()
	}, RateLimitMiddleware(rec), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/plain", RateLimitMiddleware(rec), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(r, httptest.NewRequest(http.MethodGet, "/ctx", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, []string{"203.0.113.9", "192.0.2.1"}, rec.keys)
}

func TestGlobalRateLimitSharesBucket(t *testing.T) {
	r := gin.New()
	r.Use(NewGlobalRateLimitMiddleware(0.001, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:1000"
	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.2:1000"

	assert.Equal(t, http.StatusNoContent, serve(r, first).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, second).Code)
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"volatility":0.4825}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := metrics.NewMetrics()
	r := gin.New()
	r.Use(HTTPMetricsMiddlewareWithOptions(m, MetricsOptions{SkipPaths: []string{"/healthz"}}))
	r.GET("/v1/greeks", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/v1/greeks", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/greeks", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPInFlight.WithLabelValues("GET", "/v1/greeks")))
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Logger(logger, "/healthz"))
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/bad?volatility=-1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"query":"volatility=-1"`)
	assert.NotContains(t, out, "/healthz")
}
