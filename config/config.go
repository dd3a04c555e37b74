// Package config 提供了统一的配置加载、校验与热更新能力.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wyfcoding/greeks/algorithm/finance"
	"github.com/wyfcoding/greeks/logging"
)

// Config 全局顶级配置结构.
type Config struct {
	Version   string          `mapstructure:"version"    toml:"version"`
	Server    ServerConfig    `mapstructure:"server"     toml:"server"`
	Log       LogConfig       `mapstructure:"log"        toml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"    toml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"    toml:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" toml:"rate_limit"`
	Option    OptionConfig    `mapstructure:"option"     toml:"option"`
}

// ServerConfig 定义 HTTP 服务的网络与超时参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	MachineID   int64  `mapstructure:"machine_id"  toml:"machine_id"  validate:"gte=0,lte=1023"` // 请求 ID 雪花节点号
	HTTP        struct {
		Addr              string        `mapstructure:"addr"                toml:"addr"`
		Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
	} `mapstructure:"http" toml:"http"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format"      toml:"format"      validate:"omitempty,oneof=json text"`
	Output     string `mapstructure:"output"      toml:"output"      validate:"omitempty,oneof=stdout stderr"`
	File       string `mapstructure:"file"        toml:"file"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"    validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"     validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig OpenTelemetry 追踪配置. Endpoint 为空时不导出.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
	Endpoint     string  `mapstructure:"endpoint"      toml:"endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"gte=0,lte=1"`
}

// RateLimitConfig 限流配置.
// local 后端按客户端 IP 使用令牌桶 (Rate/Burst)，global 后端所有客户端共享一个令牌桶，
// redis 后端按客户端 IP 使用滑动窗口 (Burst 个请求每 Window)，多实例共享.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"    toml:"enabled"`
	Backend   string        `mapstructure:"backend"    toml:"backend"    validate:"oneof=local global redis"`
	Rate      float64       `mapstructure:"rate"       toml:"rate"       validate:"required_if=Enabled true,gte=0"`
	Burst     int           `mapstructure:"burst"      toml:"burst"      validate:"required_if=Enabled true,gte=0"`
	Window    time.Duration `mapstructure:"window"     toml:"window"     validate:"required_if=Backend redis,gte=0"`
	RedisAddr string        `mapstructure:"redis_addr" toml:"redis_addr" validate:"required_if=Backend redis"`
}

// OptionConfig 命令行演示使用的默认期权参数.
type OptionConfig struct {
	Type             string  `mapstructure:"type"               toml:"type"               validate:"required,oneof=call put CALL PUT"`
	UnderlyingPrice  float64 `mapstructure:"underlying_price"   toml:"underlying_price"   validate:"gt=0"`
	StrikePrice      float64 `mapstructure:"strike_price"       toml:"strike_price"       validate:"gt=0"`
	TimeToExpiration float64 `mapstructure:"time_to_expiration" toml:"time_to_expiration" validate:"gt=0"`
	RiskFreeRate     float64 `mapstructure:"risk_free_rate"     toml:"risk_free_rate"`
	DividendYield    float64 `mapstructure:"dividend_yield"     toml:"dividend_yield"`
	Volatility       float64 `mapstructure:"volatility"         toml:"volatility"         validate:"gt=0"`
}

// Parameters 转换为计算输入.
func (o OptionConfig) Parameters() (finance.OptionParameters, error) {
	ot, err := finance.ParseOptionType(o.Type)
	if err != nil {
		return finance.OptionParameters{}, err
	}
	return finance.OptionParameters{
		UnderlyingPrice:  o.UnderlyingPrice,
		StrikePrice:      o.StrikePrice,
		TimeToExpiration: o.TimeToExpiration,
		RiskFreeRate:     o.RiskFreeRate,
		DividendYield:    o.DividendYield,
		Volatility:       o.Volatility,
		OptionType:       ot,
	}, nil
}

// LoggingConfig 转换为 logging 包的配置.
func (c *Config) LoggingConfig(module string) logging.Config {
	return logging.Config{
		Service:    c.Server.Name,
		Module:     module,
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Output:     c.Log.Output,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

// Default 返回内置默认配置，Option 为演示用基准参数.
func Default() *Config {
	c := &Config{
		Version: "dev",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Metrics:   MetricsConfig{Path: "/metrics", Enabled: true},
		Tracing:   TracingConfig{SamplerRatio: 1.0},
		RateLimit: RateLimitConfig{Backend: "local", Rate: 100, Burst: 200, Window: time.Second},
		Option: OptionConfig{
			Type:             "put",
			UnderlyingPrice:  35.00,
			StrikePrice:      35.00,
			TimeToExpiration: 0.0712,
			RiskFreeRate:     0.01,
			DividendYield:    0,
			Volatility:       0.4825,
		},
	}
	c.Server.Name = "greeks"
	c.Server.Environment = "dev"
	c.Server.MachineID = 1
	c.Server.HTTP.Port = 8080
	c.Server.HTTP.ReadTimeout = 5 * time.Second
	c.Server.HTTP.ReadHeaderTimeout = 2 * time.Second
	c.Server.HTTP.WriteTimeout = 10 * time.Second
	c.Server.HTTP.IdleTimeout = 60 * time.Second
	return c
}

// Validate 对配置执行结构体标签校验.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

var validate = validator.New()

// Loader 持有 viper 实例，负责加载与监听单个配置文件.
type Loader struct {
	v        *viper.Viper
	mu       sync.Mutex
	onReload []func(*Config)
}

// NewLoader 创建配置加载器，环境变量前缀为 APP_，层级以 _ 分隔.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// RegisterReloadHook 注册配置热更新回调.
func (l *Loader) RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = append(l.onReload, hook)
}

// Load 在默认配置之上叠加文件与环境变量，并执行校验. path 为空时仅使用默认值与环境变量.
func (l *Loader) Load(path string) (*Config, error) {
	conf := Default()
	setDefaults(l.v, conf)

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	if err := l.v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Watch 监听配置文件变更，校验通过后更新日志级别并把新配置交给回调；校验失败时忽略本次变更.
func (l *Loader) Watch() {
	l.v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)

		next := Default()
		if err := l.v.Unmarshal(next); err != nil {
			slog.Error("reload config unmarshal failed", "error", err)
			return
		}
		if err := next.Validate(); err != nil {
			slog.Error("reload config validation failed", "error", err)
			return
		}

		logging.SetLevel(next.Log.Level)
		slog.Info("config hot-reloaded and validated successfully")

		l.mu.Lock()
		hooks := append([]func(*Config){}, l.onReload...)
		l.mu.Unlock()
		for _, hook := range hooks {
			hook(next)
		}
	})
	l.v.WatchConfig()
}

// setDefaults 将默认值登记到 viper，使 AutomaticEnv 能覆盖未出现在文件中的键.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("version", c.Version)
	v.SetDefault("server.name", c.Server.Name)
	v.SetDefault("server.environment", c.Server.Environment)
	v.SetDefault("server.machine_id", c.Server.MachineID)
	v.SetDefault("server.http.addr", c.Server.HTTP.Addr)
	v.SetDefault("server.http.port", c.Server.HTTP.Port)
	v.SetDefault("server.http.read_timeout", c.Server.HTTP.ReadTimeout)
	v.SetDefault("server.http.read_header_timeout", c.Server.HTTP.ReadHeaderTimeout)
	v.SetDefault("server.http.write_timeout", c.Server.HTTP.WriteTimeout)
	v.SetDefault("server.http.idle_timeout", c.Server.HTTP.IdleTimeout)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.output", c.Log.Output)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("metrics.path", c.Metrics.Path)
	v.SetDefault("metrics.enabled", c.Metrics.Enabled)
	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", c.Tracing.Endpoint)
	v.SetDefault("tracing.sampler_ratio", c.Tracing.SamplerRatio)
	v.SetDefault("rate_limit.enabled", c.RateLimit.Enabled)
	v.SetDefault("rate_limit.rate", c.RateLimit.Rate)
	v.SetDefault("rate_limit.burst", c.RateLimit.Burst)
	v.SetDefault("rate_limit.backend", c.RateLimit.Backend)
	v.SetDefault("rate_limit.window", c.RateLimit.Window)
	v.SetDefault("rate_limit.redis_addr", c.RateLimit.RedisAddr)
	v.SetDefault("option.type", c.Option.Type)
	v.SetDefault("option.underlying_price", c.Option.UnderlyingPrice)
	v.SetDefault("option.strike_price", c.Option.StrikePrice)
	v.SetDefault("option.time_to_expiration", c.Option.TimeToExpiration)
	v.SetDefault("option.risk_free_rate", c.Option.RiskFreeRate)
	v.SetDefault("option.dividend_yield", c.Option.DividendYield)
	v.SetDefault("option.volatility", c.Option.Volatility)
}
