// Package finance - 欧式期权 Black-Scholes 闭式希腊字母（Delta、Gamma、Vega、Theta）。
package finance

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/greeks/xerrors"
)

const (
	// VegaScale Vega 按波动率变动 1 个百分点计量。
	VegaScale = 100.0
	// ThetaDaysPerYear Theta 按自然日计量。
	ThetaDaysPerYear = 365.0
)

// OptionType 期权类型，只有看涨与看跌两种取值，零值无效。
type OptionType int

const (
	OptionTypeCall OptionType = iota + 1
	OptionTypePut
)

// String 返回 "CALL" / "PUT"。
func (t OptionType) String() string {
	switch t {
	case OptionTypeCall:
		return "CALL"
	case OptionTypePut:
		return "PUT"
	default:
		return "UNKNOWN"
	}
}

// Valid 判断是否为两种合法取值之一。
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// ParseOptionType 解析期权类型，大小写不敏感，支持 call/put/c/p。
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return OptionTypeCall, nil
	case "put", "p":
		return OptionTypePut, nil
	default:
		return 0, xerrors.ErrInvalidOptionType.Clone().
			WithContext("field", "option_type").
			WithContext("value", s)
	}
}

// MarshalText 以 "call"/"put" 形式编码。
func (t OptionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, xerrors.ErrInvalidOptionType.Clone().WithContext("field", "option_type")
	}
	return []byte(strings.ToLower(t.String())), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler，供 JSON 与表单绑定使用。
func (t *OptionType) UnmarshalText(text []byte) error {
	v, err := ParseOptionType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// OptionParameters 单个欧式期权的定价输入，按值传递。
type OptionParameters struct {
	UnderlyingPrice  float64    `json:"underlying_price"`   // 标的价格 S
	StrikePrice      float64    `json:"strike_price"`       // 行权价 K
	TimeToExpiration float64    `json:"time_to_expiration"` // 到期时间 T（年）
	RiskFreeRate     float64    `json:"risk_free_rate"`     // 连续复利无风险利率 r，可为负
	DividendYield    float64    `json:"dividend_yield"`     // 连续股息率 q
	Volatility       float64    `json:"volatility"`         // 年化波动率 σ
	OptionType       OptionType `json:"option_type"`
}

// Greeks 希腊字母计算结果。
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

// Validate 计算前的前置校验，按字段顺序返回第一个违反的约束。
// 比较写成 !(x > 0)，NaN 同样视为非正实数。
func (p OptionParameters) Validate() error {
	switch {
	case !(p.UnderlyingPrice > 0):
		return invalid(xerrors.ErrInvalidUnderlyingPrice, "underlying_price", p.UnderlyingPrice)
	case !(p.StrikePrice > 0):
		return invalid(xerrors.ErrInvalidStrikePrice, "strike_price", p.StrikePrice)
	case !(p.TimeToExpiration > 0):
		return invalid(xerrors.ErrInvalidTimeToExpiration, "time_to_expiration", p.TimeToExpiration)
	case !(p.Volatility > 0):
		return invalid(xerrors.ErrInvalidVolatility, "volatility", p.Volatility)
	case !(math.Sqrt(p.TimeToExpiration) > 0):
		return invalid(xerrors.ErrInvalidSqrtTime, "time_to_expiration", p.TimeToExpiration)
	case !p.OptionType.Valid():
		return invalid(xerrors.ErrInvalidOptionType, "option_type", int(p.OptionType))
	}
	return nil
}

func invalid(tmpl *xerrors.Error, field string, value any) error {
	return tmpl.Clone().
		WithContext("field", field).
		WithContext("value", value).
		WithDetail("%s=%v", field, value)
}

// d1d2 计算 Black-Scholes 中间量，调用方负责先校验。
func d1d2(p OptionParameters) (d1, d2 float64) {
	sqrtT := math.Sqrt(p.TimeToExpiration)
	sigma := p.Volatility
	d1 = (math.Log(p.UnderlyingPrice/p.StrikePrice) +
		(p.RiskFreeRate-p.DividendYield+0.5*sigma*sigma)*p.TimeToExpiration) / (sigma * sqrtT)
	d2 = d1 - sigma*sqrtT
	return d1, d2
}

// dividendDiscount e^(−qT)
func dividendDiscount(p OptionParameters) float64 {
	return math.Exp(-p.DividendYield * p.TimeToExpiration)
}

// Delta 期权价格对标的价格的敏感度。
func Delta(p OptionParameters) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return delta(p), nil
}

// Gamma Delta 对标的价格的敏感度，与期权类型无关。
func Gamma(p OptionParameters) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return gamma(p), nil
}

// Vega 波动率每变动 1 个百分点时的价格变化。
func Vega(p OptionParameters) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return vega(p), nil
}

// Theta 每过一个自然日的价格变化。
func Theta(p OptionParameters) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return theta(p), nil
}

// Compute 一次校验后计算全部四个希腊字母。
func Compute(p OptionParameters) (Greeks, error) {
	if err := p.Validate(); err != nil {
		return Greeks{}, err
	}
	return Greeks{
		Delta: delta(p),
		Gamma: gamma(p),
		Vega:  vega(p),
		Theta: theta(p),
	}, nil
}

func delta(p OptionParameters) float64 {
	d1, _ := d1d2(p)
	nd1 := NormalCDF(d1)
	if p.OptionType == OptionTypeCall {
		return dividendDiscount(p) * nd1
	}
	return dividendDiscount(p) * (nd1 - 1)
}

func gamma(p OptionParameters) float64 {
	d1, _ := d1d2(p)
	return dividendDiscount(p) * NormalPDF(d1) /
		(p.UnderlyingPrice * p.Volatility * math.Sqrt(p.TimeToExpiration))
}

func vega(p OptionParameters) float64 {
	d1, _ := d1d2(p)
	return p.UnderlyingPrice * dividendDiscount(p) * NormalPDF(d1) * math.Sqrt(p.TimeToExpiration) / VegaScale
}

// theta 不含股息项 q·S·e^(−qT)·N(±d1)。
func theta(p OptionParameters) float64 {
	d1, d2 := d1d2(p)
	s, k, t, r := p.UnderlyingPrice, p.StrikePrice, p.TimeToExpiration, p.RiskFreeRate

	term1 := -s * NormalPDF(d1) * p.Volatility * dividendDiscount(p) / (2 * math.Sqrt(t))
	carry := r * k * math.Exp(-r*t)

	if p.OptionType == OptionTypeCall {
		return (term1 - carry*NormalCDF(d2)) / ThetaDaysPerYear
	}
	return (term1 + carry*NormalCDF(-d2)) / ThetaDaysPerYear
}

// Round 按银行家舍入保留 places 位小数。
func (g Greeks) Round(places int32) Greeks {
	r := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return v
		}
		return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
	}
	return Greeks{
		Delta: r(g.Delta),
		Gamma: r(g.Gamma),
		Vega:  r(g.Vega),
		Theta: r(g.Theta),
	}
}

// Decimal 返回以 decimal 表示的结果，便于对外输出。
// 极端输入下闭式公式可能溢出为 Inf/NaN，此时无法表示为十进制，返回内部错误。
func (g Greeks) Decimal() (GreeksDecimal, error) {
	for _, v := range [...]float64{g.Delta, g.Gamma, g.Vega, g.Theta} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return GreeksDecimal{}, xerrors.Internal("greeks are not finite", nil).WithDetail("%s", g)
		}
	}
	return GreeksDecimal{
		Delta: decimal.NewFromFloat(g.Delta),
		Gamma: decimal.NewFromFloat(g.Gamma),
		Vega:  decimal.NewFromFloat(g.Vega),
		Theta: decimal.NewFromFloat(g.Theta),
	}, nil
}

// GreeksDecimal Greeks 的高精度十进制视图，JSON 中以字符串输出。
type GreeksDecimal struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Vega  decimal.Decimal `json:"vega"`
	Theta decimal.Decimal `json:"theta"`
}

// String 便于日志输出。
func (g Greeks) String() string {
	return fmt.Sprintf("delta=%g gamma=%g vega=%g theta=%g", g.Delta, g.Gamma, g.Vega, g.Theta)
}
