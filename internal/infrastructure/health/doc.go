/*
Package health reduces a set of independent dependency probes to one status.

Every Check is a fresh concurrent fan-out over an immutable probe list. A
probe that returns an error or panics counts as Unhealthy for itself only;
the aggregate is the worst status seen, and an empty probe list is Healthy.
Cancellation by the caller of Check is the one failure that escapes as an
error.

Probes for HTTP and gRPC health endpoints, circuit breakers and plain
functions are provided.
*/
package health
