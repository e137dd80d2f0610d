package memcache

import (
	"errors"
	"time"

	"github.com/pior/memcache-text/ascii"
	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreakerConfig returns a function that creates circuit breakers for servers.
// This is a helper for common use cases.
//
// Only connection-level failures count against a server: replies such as
// SERVER_ERROR or a rejected key prove the server is alive. Once timeout
// has passed the breaker lets maxRequests probes through, and a probe
// dials a server whose earlier dial failed.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(string) *gobreaker.CircuitBreaker[bool] {
	return func(serverAddr string) *gobreaker.CircuitBreaker[bool] {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !isConnectionFailure(err)
			},
		}
		return gobreaker.NewCircuitBreaker[bool](settings)
	}
}

// isConnectionFailure reports whether err means the server could not be
// reached or the connection broke.
func isConnectionFailure(err error) bool {
	var (
		connErr      *ConnectionError
		asciiConnErr *ascii.ConnectionError
	)
	return errors.As(err, &connErr) || errors.As(err, &asciiConnErr)
}
