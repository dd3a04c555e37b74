// Package api 提供希腊字母计算的 HTTP 接口。
package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/greeks/algorithm/finance"
	"github.com/wyfcoding/greeks/response"
	"github.com/wyfcoding/greeks/xerrors"
)

// DefaultPrecision 响应中 rounded 字段默认保留的小数位。
const DefaultPrecision int32 = 4

func init() {
	// 校验错误中的字段名使用 json 标签，与请求参数名一致。
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// greeksRequest 同时用于 query 与 JSON 绑定。数值区间由 finance 校验，此处只检查是否提供。
type greeksRequest struct {
	OptionType       string   `form:"option_type"        json:"option_type"        binding:"required"`
	UnderlyingPrice  *float64 `form:"underlying_price"   json:"underlying_price"   binding:"required"`
	StrikePrice      *float64 `form:"strike_price"       json:"strike_price"       binding:"required"`
	TimeToExpiration *float64 `form:"time_to_expiration" json:"time_to_expiration" binding:"required"`
	Volatility       *float64 `form:"volatility"         json:"volatility"         binding:"required"`
	RiskFreeRate     float64  `form:"risk_free_rate"     json:"risk_free_rate"`
	DividendYield    float64  `form:"dividend_yield"     json:"dividend_yield"`
	Precision        *int32   `form:"precision"          json:"precision"          binding:"omitempty,min=0,max=12"`
}

// parameters 转换为计算输入。期权类型解析失败时保留零值，交由 finance 按字段顺序校验。
func (r *greeksRequest) parameters() (finance.OptionParameters, error) {
	ot, err := finance.ParseOptionType(r.OptionType)
	return finance.OptionParameters{
		UnderlyingPrice:  *r.UnderlyingPrice,
		StrikePrice:      *r.StrikePrice,
		TimeToExpiration: *r.TimeToExpiration,
		RiskFreeRate:     r.RiskFreeRate,
		DividendYield:    r.DividendYield,
		Volatility:       *r.Volatility,
		OptionType:       ot,
	}, err
}

func (r *greeksRequest) precision() int32 {
	if r.Precision == nil {
		return DefaultPrecision
	}
	return *r.Precision
}

type computeResponse struct {
	Parameters finance.OptionParameters `json:"parameters"`
	Greeks     finance.Greeks           `json:"greeks"`
	Rounded    finance.GreeksDecimal    `json:"rounded"`
}

type singleResponse struct {
	Parameters finance.OptionParameters `json:"parameters"`
	Greek      string                   `json:"greek"`
	Value      float64                  `json:"value"`
}

// Handler 希腊字母计算接口，错误统一交给 middleware.HTTPErrorHandler 输出。
type Handler struct {
	calc *finance.BlackScholesCalculator
}

// NewHandler 创建接口处理器。
func NewHandler(calc *finance.BlackScholesCalculator) *Handler {
	return &Handler{calc: calc}
}

// Register 注册路由。GET 读取 query 参数，POST 读取 JSON body。
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/greeks", h.Compute)
	r.POST("/greeks", h.Compute)
	r.GET("/greeks/:greek", h.Single)
	r.POST("/greeks/:greek", h.Single)
}

// Compute 计算全部希腊字母。
func (h *Handler) Compute(c *gin.Context) {
	req, ok := bind(c)
	if !ok {
		return
	}
	p, parseErr := req.parameters()

	g, err := h.calc.Compute(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(preferParseError(err, parseErr))
		return
	}

	rounded, err := g.Round(req.precision()).Decimal()
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, computeResponse{Parameters: p, Greeks: g, Rounded: rounded})
}

type singleFunc func(*finance.BlackScholesCalculator, context.Context, finance.OptionParameters) (float64, error)

var singles = map[string]singleFunc{
	finance.GreekDelta: (*finance.BlackScholesCalculator).Delta,
	finance.GreekGamma: (*finance.BlackScholesCalculator).Gamma,
	finance.GreekVega:  (*finance.BlackScholesCalculator).Vega,
	finance.GreekTheta: (*finance.BlackScholesCalculator).Theta,
}

// Single 计算路径参数指定的单个希腊字母。
func (h *Handler) Single(c *gin.Context) {
	greek := strings.ToLower(c.Param("greek"))
	fn, found := singles[greek]
	if !found {
		_ = c.Error(xerrors.ErrUnknownGreek.Clone().
			WithContext("field", "greek").
			WithContext("value", greek))
		return
	}

	req, ok := bind(c)
	if !ok {
		return
	}
	p, parseErr := req.parameters()

	v, err := fn(h.calc, c.Request.Context(), p)
	if err != nil {
		_ = c.Error(preferParseError(err, parseErr))
		return
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		_ = c.Error(xerrors.Internal("greek is not finite", nil).WithDetail("%s=%v", greek, v))
		return
	}
	response.Success(c, singleResponse{
		Parameters: p,
		Greek:      greek,
		Value:      decimal.NewFromFloat(v).RoundBank(req.precision()).InexactFloat64(),
	})
}

// bind 绑定请求参数，失败时错误已写入 c.Errors。
func bind(c *gin.Context) (*greeksRequest, bool) {
	var req greeksRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		_ = c.Error(bindError(err))
		return nil, false
	}
	return &req, true
}

func bindError(err error) error {
	e := xerrors.ErrBadRequest.Clone().WithDetail("%s", err.Error())
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		e.WithContext("field", fe.Field())
		if fe.Tag() == "required" {
			e.WithDetail("%s is required", fe.Field())
		} else {
			e.WithDetail("%s failed on %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
	}
	return e
}

// preferParseError 期权类型校验失败时，返回包含原始输入的解析错误。
func preferParseError(err, parseErr error) error {
	if parseErr != nil && errors.Is(err, xerrors.ErrInvalidOptionType) {
		return parseErr
	}
	return err
}
