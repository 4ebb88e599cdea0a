/*
Package resilience provides a circuit breaker for calls to other nodes.

# Overview

Outbound clients and health probes share one breaker per downstream node so a
failing dependency is shed quickly and reported as degraded.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Configurable failure thresholds and timeouts
- Automatic state transitions
- Caller cancellation is not counted against the dependency
- State change callbacks for monitoring
- Injectable clock

# Usage

	// Create a circuit breaker
	breaker := resilience.New("ledger", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("breaker state change", zap.String("breaker", name), zap.Stringer("to", to))
		},
	})

	// Execute request through breaker
	err := breaker.Do(ctx, func(ctx context.Context) error {
		return client.Call(ctx)
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
