package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/greeks/algorithm/finance"
)

func TestMetricsRecordsCalculator(t *testing.T) {
	m := NewMetrics()
	calc := finance.NewBlackScholesCalculator(finance.WithRecorder(m))

	p := finance.OptionParameters{
		UnderlyingPrice:  35,
		StrikePrice:      35,
		TimeToExpiration: 0.0712,
		RiskFreeRate:     0.01,
		Volatility:       0.4825,
		OptionType:       finance.OptionTypePut,
	}
	_, err := calc.Compute(context.Background(), p)
	require.NoError(t, err)
	_, err = calc.Gamma(context.Background(), p)
	require.NoError(t, err)

	p.StrikePrice = 0
	_, err = calc.Delta(context.Background(), p)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GreeksEvaluationsTotal.WithLabelValues(finance.GreekAll, "PUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GreeksEvaluationsTotal.WithLabelValues(finance.GreekGamma, "PUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GreeksRejectionsTotal.WithLabelValues("strike_price")))
}

func TestBuildInfoAndHandler(t *testing.T) {
	m := NewMetrics()
	m.RegisterBuildInfo("greeks", "1.0.0")
	m.RegisterBuildInfo("greeks", "ignored")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildInfo.WithLabelValues("greeks", "1.0.0")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `build_info{service="greeks",version="1.0.0"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
