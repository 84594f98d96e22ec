package shop

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrOutOfStock         = errors.New("out of stock")
	ErrNoPrice            = errors.New("variation has no price")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidCode        = errors.New("invalid discount code")
	ErrExpired            = errors.New("discount code has expired")
	ErrUsageLimitExceeded = errors.New("discount code usage limit exceeded")
)

// StockError names the line that could not be satisfied.
type StockError struct {
	SKU       string
	Required  int
	Available int
}

func (e *StockError) Error() string {
	return "out of stock: " + e.SKU
}

func (e *StockError) Unwrap() error { return ErrOutOfStock }
