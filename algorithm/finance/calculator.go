package finance

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/greeks/tracing"
	"github.com/wyfcoding/greeks/xerrors"
)

// 希腊字母名称，用作日志与指标标签。
const (
	GreekDelta = "delta"
	GreekGamma = "gamma"
	GreekVega  = "vega"
	GreekTheta = "theta"
	GreekAll   = "all"
)

// Recorder 接收计算结果统计，由 metrics.Metrics 实现。
type Recorder interface {
	ObserveEvaluation(greek, optionType string)
	ObserveRejection(field string)
}

// CalculatorOption 计算器可选配置。
type CalculatorOption func(*BlackScholesCalculator)

// WithLogger 设置结构化日志记录器。
func WithLogger(logger *slog.Logger) CalculatorOption {
	return func(c *BlackScholesCalculator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder 设置指标记录器。
func WithRecorder(rec Recorder) CalculatorOption {
	return func(c *BlackScholesCalculator) {
		c.recorder = rec
	}
}

// BlackScholesCalculator 在纯函数之上附加日志与指标，本身无可变状态，可并发使用。
type BlackScholesCalculator struct {
	logger   *slog.Logger
	recorder Recorder
}

// NewBlackScholesCalculator 创建 Black-Scholes 希腊字母计算器。
func NewBlackScholesCalculator(opts ...CalculatorOption) *BlackScholesCalculator {
	c := &BlackScholesCalculator{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delta 计算 Delta。
func (c *BlackScholesCalculator) Delta(ctx context.Context, p OptionParameters) (float64, error) {
	return c.single(ctx, GreekDelta, p, Delta)
}

// Gamma 计算 Gamma。
func (c *BlackScholesCalculator) Gamma(ctx context.Context, p OptionParameters) (float64, error) {
	return c.single(ctx, GreekGamma, p, Gamma)
}

// Vega 计算 Vega。
func (c *BlackScholesCalculator) Vega(ctx context.Context, p OptionParameters) (float64, error) {
	return c.single(ctx, GreekVega, p, Vega)
}

// Theta 计算 Theta。
func (c *BlackScholesCalculator) Theta(ctx context.Context, p OptionParameters) (float64, error) {
	return c.single(ctx, GreekTheta, p, Theta)
}

// Compute 一次性计算全部希腊字母。
func (c *BlackScholesCalculator) Compute(ctx context.Context, p OptionParameters) (Greeks, error) {
	ctx, span := tracing.StartSpan(ctx, "greeks."+GreekAll)
	defer span.End()
	tracing.AddTag(ctx, "option_type", p.OptionType)

	g, err := Compute(p)
	if err != nil {
		c.reject(ctx, GreekAll, p, err)
		return Greeks{}, err
	}
	c.observe(GreekAll, p)
	c.logger.DebugContext(ctx, "greeks computed",
		"option_type", p.OptionType.String(),
		"delta", g.Delta,
		"gamma", g.Gamma,
		"vega", g.Vega,
		"theta", g.Theta,
	)
	return g, nil
}

func (c *BlackScholesCalculator) single(ctx context.Context, greek string, p OptionParameters, fn func(OptionParameters) (float64, error)) (float64, error) {
	ctx, span := tracing.StartSpan(ctx, "greeks."+greek)
	defer span.End()
	tracing.AddTag(ctx, "option_type", p.OptionType)

	v, err := fn(p)
	if err != nil {
		c.reject(ctx, greek, p, err)
		return 0, err
	}
	c.observe(greek, p)
	c.logger.DebugContext(ctx, "greek computed", "greek", greek, "option_type", p.OptionType.String(), "value", v)
	return v, nil
}

func (c *BlackScholesCalculator) observe(greek string, p OptionParameters) {
	if c.recorder != nil {
		c.recorder.ObserveEvaluation(greek, p.OptionType.String())
	}
}

func (c *BlackScholesCalculator) reject(ctx context.Context, greek string, p OptionParameters, err error) {
	field := "unknown"
	if xe, ok := xerrors.FromError(err); ok && xe.Field() != "" {
		field = xe.Field()
	}
	tracing.AddTag(ctx, "rejected_field", field)
	tracing.SetError(ctx, err)
	if c.recorder != nil {
		c.recorder.ObserveRejection(field)
	}
	c.logger.WarnContext(ctx, "option parameters rejected",
		"greek", greek,
		"field", field,
		"option_type", p.OptionType.String(),
		"error", err,
	)
}
