package gateway

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrUnknownBackend 表示配置了未注册的交易所后端。
	ErrUnknownBackend = errors.New("gateway: unknown backend")
	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过本周期。
	ErrMaintenance = errors.New("gateway: exchange on maintenance")
)

// isRetryableCCXT 判断 ccxt 错误是否可重试。
func isRetryableCCXT(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
