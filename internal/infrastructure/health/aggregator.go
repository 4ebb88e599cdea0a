package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/scopectx/internal/shared/clock"
)

// Probe checks one dependency.
type Probe interface {
	Name() string
	Check(ctx context.Context) (Status, error)
}

// Observer receives every probe result and aggregate status.
type Observer interface {
	ObserveProbe(name string, severity int, duration time.Duration)
	ObserveAggregate(status string, severity int)
}

// Result is the outcome of one probe in one fan-out.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of one fan-out.
type Report struct {
	Status    Status        `json:"status"`
	Results   []Result      `json:"results"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithProbeTimeout bounds each probe. A probe that times out is Unhealthy.
func WithProbeTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithObserver reports results to o.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

// WithClock sets the time source for durations and timestamps.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// Aggregator fans out to a fixed list of probes.
type Aggregator struct {
	probes   []Probe
	timeout  time.Duration
	observer Observer
	clock    clock.Clock
}

// NewAggregator creates an aggregator over a copy of probes. Nil entries are
// dropped.
func NewAggregator(probes []Probe, opts ...Option) *Aggregator {
	a := &Aggregator{clock: clock.System{}}
	for _, p := range probes {
		if p != nil {
			a.probes = append(a.probes, p)
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Len returns the number of probes.
func (a *Aggregator) Len() int { return len(a.probes) }

// Check runs every probe concurrently and returns the worst status. It
// returns an error only when ctx itself is cancelled or expires.
func (a *Aggregator) Check(ctx context.Context) (Status, error) {
	report, err := a.Report(ctx)
	if err != nil {
		return Unhealthy, err
	}
	return report.Status, nil
}

// Report runs every probe concurrently and returns each result in probe
// order along with the aggregate.
func (a *Aggregator) Report(ctx context.Context) (Report, error) {
	start := a.clock.Now()
	report := Report{Status: Healthy, CheckedAt: start, Results: make([]Result, len(a.probes))}

	// An empty aggregator is Healthy even when ctx is already done.
	if len(a.probes) > 0 {
		if err := ctx.Err(); err != nil {
			return Report{}, fmt.Errorf("health check cancelled: %w", err)
		}

		var wg sync.WaitGroup
		for i, p := range a.probes {
			wg.Add(1)
			go func(i int, p Probe) {
				defer wg.Done()
				report.Results[i] = a.run(ctx, p)
			}(i, p)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return Report{}, fmt.Errorf("health check cancelled: %w", err)
		}
	}

	for _, r := range report.Results {
		report.Status = report.Status.Worse(r.Status)
	}
	report.Duration = a.clock.Now().Sub(start)

	if a.observer != nil {
		for _, r := range report.Results {
			a.observer.ObserveProbe(r.Name, r.Status.Severity(), r.Duration)
		}
		a.observer.ObserveAggregate(report.Status.String(), report.Status.Severity())
	}
	return report, nil
}

// run never panics and never returns a status better than the probe reported.
func (a *Aggregator) run(ctx context.Context, p Probe) (res Result) {
	start := a.clock.Now()
	res.Name = p.Name()

	defer func() {
		if r := recover(); r != nil {
			res.Status = Unhealthy
			res.Error = fmt.Sprintf("probe panicked: %v", r)
		}
		res.Duration = a.clock.Now().Sub(start)
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	status, err := p.Check(ctx)
	if err != nil {
		res.Status = Unhealthy
		res.Error = err.Error()
		return res
	}
	res.Status = status.normalize()
	return res
}
