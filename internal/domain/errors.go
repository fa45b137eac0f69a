package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNotEnoughData  = errors.New("not enough data")
	ErrUnavailable    = errors.New("market data unavailable")
	ErrStaleSnapshot  = errors.New("snapshot not newer than window head")
	ErrOracleTimeout  = errors.New("approval oracle timed out")
	ErrOrderRejected  = errors.New("order rejected")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidIntent  = errors.New("invalid order intent")
	ErrMarketNotFound = errors.New("market not found")
)
