// Package metrics 封装独立的 Prometheus 注册表及希腊字母计算、HTTP 服务的标准指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义指标。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	HTTPRequestsTotal   *prometheus.CounterVec   // HTTP 请求总量 (维度: method, path, status)
	HTTPRequestDuration *prometheus.HistogramVec // HTTP 请求耗时分布
	HTTPInFlight        *prometheus.GaugeVec     // 处理中的 HTTP 请求数

	GreeksEvaluationsTotal *prometheus.CounterVec // 成功计算次数 (维度: greek, option_type)
	GreeksRejectionsTotal  *prometheus.CounterVec // 参数校验失败次数 (维度: field)

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics 初始化指标采集器，并注册 Go 运行时与进程指标。
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.HTTPInFlight = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_server_requests_in_flight",
		Help: "Number of HTTP requests currently being served",
	}, []string{"method", "path"})

	m.GreeksEvaluationsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "greeks_evaluations_total",
		Help: "Total number of successful Greek evaluations",
	}, []string{"greek", "option_type"})

	m.GreeksRejectionsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "greeks_rejections_total",
		Help: "Total number of option parameter sets rejected by validation",
	}, []string{"field"})

	return m
}

// ObserveEvaluation 实现 finance.Recorder。
func (m *Metrics) ObserveEvaluation(greek, optionType string) {
	m.GreeksEvaluationsTotal.WithLabelValues(greek, optionType).Inc()
}

// ObserveRejection 实现 finance.Recorder。
func (m *Metrics) ObserveRejection(field string) {
	m.GreeksRejectionsTotal.WithLabelValues(field).Inc()
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Registry 返回底层注册表，供测试与自定义采集使用。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
