package practice

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// BreakerConfig tunes the circuit breaker guarding practice API calls.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	MinRequests      uint32
	FailureRatio     float64
}

// DefaultBreakerConfig returns the breaker defaults for the practice API.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "practice-api",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		MinRequests:      10,
		FailureRatio:     0.6,
	}
}

func newBreaker(cfg BreakerConfig, logger *logging.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("practice api breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// 4xx responses mean the service answered.
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.clientSide()
		},
	})
}

// IsBreakerOpen reports whether err came from an open or half-open breaker.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
