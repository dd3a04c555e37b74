package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/wyfcoding/greeks/algorithm/finance"
	"github.com/wyfcoding/greeks/logging"
	"github.com/wyfcoding/greeks/xerrors"
)

const (
	flagConfig     = "config"
	flagType       = "type"
	flagSpot       = "spot"
	flagStrike     = "strike"
	flagExpiry     = "expiry"
	flagRate       = "rate"
	flagDividend   = "dividend"
	flagVolatility = "volatility"
	flagPrecision  = "precision"
)

func optionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagType, Aliases: []string{"t"}, Usage: "option type: call or put"},
		&cli.Float64Flag{Name: flagSpot, Aliases: []string{"s"}, Usage: "underlying price"},
		&cli.Float64Flag{Name: flagStrike, Aliases: []string{"k"}, Usage: "strike price"},
		&cli.Float64Flag{Name: flagExpiry, Usage: "time to expiration in years"},
		&cli.Float64Flag{Name: flagRate, Aliases: []string{"r"}, Usage: "continuously compounded risk-free rate"},
		&cli.Float64Flag{Name: flagDividend, Aliases: []string{"q"}, Usage: "continuous dividend yield"},
		&cli.Float64Flag{Name: flagVolatility, Usage: "annualized volatility"},
		&cli.IntFlag{Name: flagPrecision, Value: 4, Usage: "decimal places, banker's rounding"},
	}
}

// computeAction 以配置中的默认参数为基础，命令行参数覆盖后计算并打印。
func computeAction(c *cli.Context) error {
	_, cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	lg := logging.NewFromConfig(cfg.LoggingConfig("cli"))
	defer lg.Close()

	p, parseErr := parametersFromFlags(c, cfg.Option.Type, finance.OptionParameters{
		UnderlyingPrice:  cfg.Option.UnderlyingPrice,
		StrikePrice:      cfg.Option.StrikePrice,
		TimeToExpiration: cfg.Option.TimeToExpiration,
		RiskFreeRate:     cfg.Option.RiskFreeRate,
		DividendYield:    cfg.Option.DividendYield,
		Volatility:       cfg.Option.Volatility,
	})

	calc := finance.NewBlackScholesCalculator(finance.WithLogger(lg.Logger))
	g, err := calc.Compute(c.Context, p)
	if err != nil {
		if parseErr != nil && errors.Is(err, xerrors.ErrInvalidOptionType) {
			err = parseErr
		}
		return invalidInput(err)
	}

	places := c.Int(flagPrecision)
	if places < 0 || places > 12 {
		return cli.Exit(fmt.Sprintf("precision must be between 0 and 12, got %d", places), exitInvalid)
	}
	return printGreeks(c.App.Writer, g, int32(places)) //nolint:gosec // 已校验范围
}

// parametersFromFlags 应用命令行覆盖。期权类型解析失败时保留零值，使数值参数的错误优先报告。
func parametersFromFlags(c *cli.Context, typ string, p finance.OptionParameters) (finance.OptionParameters, error) {
	if c.IsSet(flagType) {
		typ = c.String(flagType)
	}
	overrides := map[string]*float64{
		flagSpot:       &p.UnderlyingPrice,
		flagStrike:     &p.StrikePrice,
		flagExpiry:     &p.TimeToExpiration,
		flagRate:       &p.RiskFreeRate,
		flagDividend:   &p.DividendYield,
		flagVolatility: &p.Volatility,
	}
	for name, dst := range overrides {
		if c.IsSet(name) {
			*dst = c.Float64(name)
		}
	}

	ot, err := finance.ParseOptionType(typ)
	p.OptionType = ot
	return p, err
}

func printGreeks(w io.Writer, g finance.Greeks, places int32) error {
	d, err := g.Round(places).Decimal()
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	_, err = fmt.Fprintf(w, "Delta: %s\nGamma: %s\nVega: %s\nTheta: %s\n",
		d.Delta.String(), d.Gamma.String(), d.Vega.String(), d.Theta.String())
	return err
}

func invalidInput(err error) error {
	if !xerrors.IsInvalidArgument(err) {
		return cli.Exit(err.Error(), exitConfig)
	}
	msg := err.Error()
	if xe, ok := xerrors.FromError(err); ok {
		msg = "invalid input: " + xe.Message
		if xe.Detail != "" {
			msg += " (" + xe.Detail + ")"
		}
	}
	return cli.Exit(msg, exitInvalid)
}
