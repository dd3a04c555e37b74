package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/greeks/algorithm/finance"
	"github.com/wyfcoding/greeks/config"
	"github.com/wyfcoding/greeks/metrics"
)

type envelope struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	Detail string          `json:"detail"`
	Field  string          `json:"field"`
	Data   json.RawMessage `json:"data"`
}

type computeData struct {
	Parameters map[string]any    `json:"parameters"`
	Greeks     finance.Greeks    `json:"greeks"`
	Rounded    map[string]string `json:"rounded"`
}

func baselineQuery() url.Values {
	return url.Values{
		"option_type":        {"put"},
		"underlying_price":   {"35"},
		"strike_price":       {"35"},
		"time_to_expiration": {"0.0712"},
		"risk_free_rate":     {"0.01"},
		"volatility":         {"0.4825"},
	}
}

type fixture struct {
	engine  *gin.Engine
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, mutate func(*config.Config), health func() error) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Environment = "test"
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	m := metrics.NewMetrics()
	calc := finance.NewBlackScholesCalculator(finance.WithLogger(logger), finance.WithRecorder(m))

	engine, err := NewRouter(cfg, calc, Deps{Logger: logger, Metrics: m, Health: health})
	require.NoError(t, err)
	return &fixture{engine: engine, metrics: m}
}

func (f *fixture) get(t *testing.T, path string, q url.Values) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	target := path
	if q != nil {
		target += "?" + q.Encode()
	}
	return f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (f *fixture) post(t *testing.T, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

func (f *fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestComputeBaselinePut(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec, env := f.get(t, "/v1/greeks", baselineQuery())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "success", env.Msg)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var data computeData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, map[string]string{
		"delta": "-0.4721",
		"gamma": "0.0883",
		"vega":  "0.0372",
		"theta": "-0.034",
	}, data.Rounded)
	assert.InDelta(t, -0.472135133165, data.Greeks.Delta, 1e-9)
	assert.InDelta(t, -0.034000980040, data.Greeks.Theta, 1e-9)
	assert.Equal(t, "put", data.Parameters["option_type"])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GreeksEvaluationsTotal.WithLabelValues(finance.GreekAll, "PUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/v1/greeks", "200")))
}

func TestComputePostWithDividend(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec, env := f.post(t, "/v1/greeks", `{
		"option_type": "CALL",
		"underlying_price": 100,
		"strike_price": 100,
		"time_to_expiration": 1,
		"risk_free_rate": 0.05,
		"dividend_yield": 0.02,
		"volatility": 0.2,
		"precision": 6
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data computeData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.InDelta(t, 0.586851146135, data.Greeks.Delta, 1e-9)
	assert.InDelta(t, 0.018950578755, data.Greeks.Gamma, 1e-9)
	assert.InDelta(t, 0.379011575100, data.Greeks.Vega, 1e-9)
	assert.InDelta(t, -0.017158962209, data.Greeks.Theta, 1e-9)
	assert.Equal(t, "0.586851", data.Rounded["delta"])
	assert.Equal(t, "call", data.Parameters["option_type"])
}

func TestComputeRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(url.Values)
		code   int
		field  string
	}{
		{"zero volatility", func(q url.Values) { q.Set("volatility", "0") }, 400104, "volatility"},
		{"negative spot", func(q url.Values) { q.Set("underlying_price", "-1") }, 400101, "underlying_price"},
		{"zero strike", func(q url.Values) { q.Set("strike_price", "0") }, 400102, "strike_price"},
		{"zero expiry", func(q url.Values) { q.Set("time_to_expiration", "0") }, 400103, "time_to_expiration"},
		{"nan volatility", func(q url.Values) { q.Set("volatility", "NaN") }, 400104, "volatility"},
		{"bad type", func(q url.Values) { q.Set("option_type", "straddle") }, 400106, "option_type"},
		{"numeric checks before type", func(q url.Values) {
			q.Set("option_type", "straddle")
			q.Set("underlying_price", "0")
		}, 400101, "underlying_price"},
		{"missing volatility", func(q url.Values) { q.Del("volatility") }, 400100, "volatility"},
		{"missing type", func(q url.Values) { q.Del("option_type") }, 400100, "option_type"},
		{"malformed number", func(q url.Values) { q.Set("strike_price", "abc") }, 400100, ""},
		{"precision too large", func(q url.Values) { q.Set("precision", "13") }, 400100, "precision"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			q := baselineQuery()
			tt.mutate(q)

			rec, env := f.get(t, "/v1/greeks", q)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, env.Code)
			assert.Equal(t, tt.field, env.Field)
			assert.NotEmpty(t, env.Msg)
		})
	}
}

func TestRejectionIsCounted(t *testing.T) {
	f := newFixture(t, nil, nil)
	q := baselineQuery()
	q.Set("volatility", "-0.2")
	f.get(t, "/v1/greeks", q)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GreeksRejectionsTotal.WithLabelValues("volatility")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/v1/greeks", "400")))
}

func TestMalformedJSON(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec, env := f.post(t, "/v1/greeks", `{"option_type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 400100, env.Code)
}

func TestSingleGreek(t *testing.T) {
	f := newFixture(t, nil, nil)

	want := map[string]float64{"delta": -0.4721, "gamma": 0.0883, "vega": 0.0372, "theta": -0.034}
	for greek, v := range want {
		rec, env := f.get(t, "/v1/greeks/"+greek, baselineQuery())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var data singleResponse
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, greek, data.Greek)
		assert.Equal(t, v, data.Value, greek)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GreeksEvaluationsTotal.WithLabelValues(finance.GreekVega, "PUT")))

	rec, env := f.get(t, "/v1/greeks/rho", baselineQuery())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 400107, env.Code)
	assert.Equal(t, "greek", env.Field)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec, _ := f.get(t, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	f.get(t, "/v1/greeks", baselineQuery())
	rec, _ = f.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `greeks_evaluations_total{greek="all",option_type="PUT"} 1`)

	down := newFixture(t, nil, func() error { return errors.New("draining") })
	rec, env := down.get(t, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "draining", env.Detail)
}

func TestMetricsEndpointDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Metrics.Enabled = false }, nil)
	rec, _ := f.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.Rate = 0.001
		c.RateLimit.Burst = 1
	}, nil)

	rec, _ := f.get(t, "/v1/greeks", baselineQuery())
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.get(t, "/v1/greeks", baselineQuery())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = f.get(t, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}

func TestRateLimitBackends(t *testing.T) {
	getFrom := func(f *fixture, ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/greeks?"+baselineQuery().Encode(), nil)
		req.RemoteAddr = ip + ":40000"
		rec, _ := f.do(t, req)
		return rec.Code
	}

	tests := map[string]struct {
		backend     string
		secondIPHit int
	}{
		"local buckets per client": {"local", http.StatusOK},
		"global bucket is shared":  {"global", http.StatusTooManyRequests},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, func(c *config.Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.Backend = tt.backend
				c.RateLimit.Rate = 0.001
				c.RateLimit.Burst = 1
			}, nil)

			assert.Equal(t, http.StatusOK, getFrom(f, "10.0.0.1"))
			assert.Equal(t, http.StatusTooManyRequests, getFrom(f, "10.0.0.1"))
			assert.Equal(t, tt.secondIPHit, getFrom(f, "10.0.0.2"))
		})
	}
}
