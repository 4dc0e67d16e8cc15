package notify

import (
	"math"
	"net/http"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
)

// RetryStrategy computes exponential delays between delivery attempts
type RetryStrategy struct {
	config model.RetryConfig
}

// NewRetryStrategy applies defaults to config
func NewRetryStrategy(config model.RetryConfig) *RetryStrategy {
	config.SetDefaults()
	return &RetryStrategy{config: config}
}

// Delay returns min(initial * multiplier^(attempt-1), max)
func (rs *RetryStrategy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delayMs := float64(rs.config.InitialDelayMs) * math.Pow(rs.config.Multiplier, float64(attempt-1))
	if delayMs > float64(rs.config.MaxDelayMs) {
		delayMs = float64(rs.config.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

// ShouldRetry retries network errors, 5xx and 429 until attempts run out
func (rs *RetryStrategy) ShouldRetry(attempt, statusCode int, err error) bool {
	if attempt >= rs.config.MaxAttempts {
		return false
	}
	if err != nil && statusCode == 0 {
		return true
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500:
		return true
	case statusCode >= 400:
		return false
	}
	return statusCode >= 300
}

// MaxAttempts returns the attempt budget
func (rs *RetryStrategy) MaxAttempts() int {
	return rs.config.MaxAttempts
}
