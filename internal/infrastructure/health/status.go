package health

import (
	"fmt"
	"strings"
)

// Status is a dependency health level, ordered from best to worst.
type Status int

const (
	Healthy Status = iota
	Degraded
	Unhealthy
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Severity is the numeric level used for gauges.
func (s Status) Severity() int { return int(s) }

// Worse returns the worse of s and other. Unknown values count as Unhealthy.
func (s Status) Worse(other Status) Status {
	a, b := s.normalize(), other.normalize()
	if b > a {
		return b
	}
	return a
}

func (s Status) normalize() Status {
	if s < Healthy || s > Unhealthy {
		return Unhealthy
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "healthy":
		*s = Healthy
	case "degraded":
		*s = Degraded
	case "unhealthy":
		*s = Unhealthy
	default:
		return fmt.Errorf("unknown health status %q", b)
	}
	return nil
}
