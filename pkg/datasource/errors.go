package datasource

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotSupported signals a declared capability gap: the asset class has no
// such data upstream (e.g. intraday bars for FX reference rates).
var ErrNotSupported = errors.New("datasource: operation not supported")

// ErrSymbolNotFound indicates the upstream directory does not list the symbol.
var ErrSymbolNotFound = errors.New("datasource: symbol not found")

// SymbolValidationError reports a symbol that is unknown, inactive, or fails
// shape checks. Never retried.
type SymbolValidationError struct {
	Symbol string
	Reason string
}

func (e *SymbolValidationError) Error() string {
	return fmt.Sprintf("datasource: invalid symbol %q: %s", e.Symbol, e.Reason)
}

// RetrievalError reports an upstream that stayed unreachable after the
// transport's retry budget was spent.
type RetrievalError struct {
	Source string
	Op     string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("datasource: %s: %s failed: %v", e.Source, e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// StandardizationError reports an upstream payload that could not be mapped
// to the standard row shape.
type StandardizationError struct {
	Source string
	Detail string
	Err    error
}

func (e *StandardizationError) Error() string {
	return fmt.Sprintf("datasource: %s: malformed payload: %s", e.Source, e.Detail)
}

func (e *StandardizationError) Unwrap() error { return e.Err }

// RateLimitError reports upstream throttling beyond what backoff absorbs.
// A batch should stop hammering the provider when it sees one.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("datasource: %s: rate limit exceeded, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("datasource: %s: rate limit exceeded", e.Source)
}

// IsRateLimit reports whether err carries a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsValidation reports whether err carries a SymbolValidationError.
func IsValidation(err error) bool {
	var ve *SymbolValidationError
	return errors.As(err, &ve)
}

// IsNotSupported reports whether err marks a declared capability gap.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
