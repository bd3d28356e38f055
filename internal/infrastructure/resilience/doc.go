/*
Package resilience provides the circuit breaker that guards conductor calls.

# Overview

Every request the applet sends to the local runtime (admin or app endpoint)
goes through a Breaker. When the runtime stops answering, callers fail fast
with ErrCircuitOpen instead of each waiting for its own transport timeout.

# Usage

	breaker := resilience.New("conductor.admin", resilience.Settings{
		MaxProbes: 1,
		Cooldown:  10 * time.Second,
		Counts: func(err error) bool {
			var remote *conductor.RemoteError
			return !errors.As(err, &remote)
		},
	})

	info, err := resilience.Do(ctx, breaker, func(ctx context.Context) (*types.Manifest, error) {
		return client.AppInfo(ctx, "forum")
	})

# States

	Closed --[ShouldTrip]-> Open --[Cooldown]-> Half-Open --[MaxProbes successes]-> Closed
	                                               |
	                                           [failure]
	                                               v
	                                             Open

Context cancellation is never counted as a failure.
*/
package resilience
