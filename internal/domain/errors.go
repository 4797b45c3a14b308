package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrPortfolioUnavailable = errors.New("portfolio data unavailable")
	ErrCrossChain           = errors.New("cross-chain trade not supported")
	ErrBelowMinimum         = errors.New("trade amount below minimum")
	ErrSlippageExceeded     = errors.New("slippage exceeds limit")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrRateLimited          = errors.New("rate limited")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrDuplicateTrade       = errors.New("duplicate trade")
	ErrLockHeld             = errors.New("lock already held")
)
