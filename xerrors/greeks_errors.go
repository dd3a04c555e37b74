package xerrors

// 期权希腊字母计算的参数校验错误，错误码段 4001xx。
// 哨兵仅用于 errors.Is 判等，返回给调用方前应先 Clone。
var (
	// ErrBadRequest 请求缺少参数或格式无法解析。
	ErrBadRequest = New(ErrInvalidArg, 400100, "missing or malformed parameter", "", nil)
	// ErrInvalidUnderlyingPrice 标的价格必须为正。
	ErrInvalidUnderlyingPrice = New(ErrInvalidArg, 400101, "underlying price must be greater than zero", "", nil)
	// ErrInvalidStrikePrice 行权价必须为正。
	ErrInvalidStrikePrice = New(ErrInvalidArg, 400102, "strike price must be greater than zero", "", nil)
	// ErrInvalidTimeToExpiration 到期时间（年）必须为正。
	ErrInvalidTimeToExpiration = New(ErrInvalidArg, 400103, "time to expiration must be greater than zero", "", nil)
	// ErrInvalidVolatility 波动率必须为正。
	ErrInvalidVolatility = New(ErrInvalidArg, 400104, "volatility must be greater than zero", "", nil)
	// ErrInvalidSqrtTime 到期时间的平方根必须为正实数。
	ErrInvalidSqrtTime = New(ErrInvalidArg, 400105, "square root of time to expiration must be greater than zero", "", nil)
	// ErrInvalidOptionType 无效的期权类型。
	ErrInvalidOptionType = New(ErrInvalidArg, 400106, "invalid option type", "supported types: call, put", nil)
	// ErrUnknownGreek 不支持的希腊字母名称。
	ErrUnknownGreek = New(ErrInvalidArg, 400107, "unknown greek", "supported greeks: delta, gamma, vega, theta", nil)
)
