package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func failing(name string) Probe {
	return NewFuncProbe(name, func(context.Context) (Status, error) {
		return Healthy, errors.New("connection refused")
	})
}

func panicking(name string) Probe {
	return NewFuncProbe(name, func(context.Context) (Status, error) {
		panic("probe exploded")
	})
}

type recordingObserver struct {
	mu        sync.Mutex
	probes    map[string]int
	aggregate string
}

func (o *recordingObserver) ObserveProbe(name string, severity int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.probes == nil {
		o.probes = map[string]int{}
	}
	o.probes[name] = severity
}

func (o *recordingObserver) ObserveAggregate(status string, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aggregate = status
}

func TestCheckEmpty(t *testing.T) {
	status, err := NewAggregator(nil).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Healthy, status)
}

func TestCheckEmptyIgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := NewAggregator(nil).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, Healthy, status)

	report, err := NewAggregator(nil).Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, Healthy, report.Status)
	assert.Empty(t, report.Results)
}

// Scenario D.
func TestCheckWorstWins(t *testing.T) {
	tests := []struct {
		name   string
		probes []Probe
		want   Status
	}{
		{"all healthy", []Probe{Static("a", Healthy), Static("b", Healthy)}, Healthy},
		{"one degraded", []Probe{Static("a", Healthy), Static("b", Degraded), Static("c", Healthy)}, Degraded},
		{"error beats degraded", []Probe{Static("a", Healthy), Static("b", Degraded), failing("c")}, Unhealthy},
		{"panic is contained", []Probe{Static("a", Healthy), panicking("b")}, Unhealthy},
		{"unknown status counts as unhealthy", []Probe{Static("a", Status(9))}, Unhealthy},
		{"nil probes dropped", []Probe{nil, Static("a", Degraded)}, Degraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := NewAggregator(tt.probes).Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestCheckRunsConcurrently(t *testing.T) {
	const n = 5
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})

	probes := make([]Probe, n)
	for i := range probes {
		probes[i] = NewFuncProbe("p", func(context.Context) (Status, error) {
			started.Done()
			<-release
			return Healthy, nil
		})
	}

	go func() {
		// Only reachable if every probe is in flight at once.
		started.Wait()
		close(release)
	}()

	done := make(chan Status, 1)
	go func() {
		s, _ := NewAggregator(probes).Check(context.Background())
		done <- s
	}()

	select {
	case s := <-done:
		assert.Equal(t, Healthy, s)
	case <-time.After(5 * time.Second):
		t.Fatal("probes did not run concurrently")
	}
}

func TestCheckWaitsForAll(t *testing.T) {
	var finished atomic.Int32
	slow := NewFuncProbe("slow", func(context.Context) (Status, error) {
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
		return Healthy, nil
	})

	_, err := NewAggregator([]Probe{failing("fast"), slow}).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), finished.Load())
}

func TestCheckCallerCancellation(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		p := NewFuncProbe("p", func(context.Context) (Status, error) {
			called = true
			return Healthy, nil
		})

		_, err := NewAggregator([]Probe{p}).Check(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})

	t.Run("cancelled while probing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewFuncProbe("p", func(ctx context.Context) (Status, error) {
			cancel()
			<-ctx.Done()
			return Unhealthy, ctx.Err()
		})

		_, err := NewAggregator([]Probe{p, Static("q", Healthy)}).Check(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestProbeInternalCancellationIsContained(t *testing.T) {
	// A probe failing with its own cancellation error is just unhealthy.
	p := NewFuncProbe("p", func(context.Context) (Status, error) {
		return Healthy, context.Canceled
	})

	status, err := NewAggregator([]Probe{p}).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unhealthy, status)
}

func TestProbeTimeout(t *testing.T) {
	slow := NewFuncProbe("slow", func(ctx context.Context) (Status, error) {
		<-ctx.Done()
		return Healthy, ctx.Err()
	})

	report, err := NewAggregator([]Probe{slow, Static("ok", Healthy)}, WithProbeTimeout(10*time.Millisecond)).
		Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unhealthy, report.Status)
	assert.Contains(t, report.Results[0].Error, "deadline")
	assert.Equal(t, Healthy, report.Results[1].Status)
}

func TestReport(t *testing.T) {
	obs := &recordingObserver{}
	agg := NewAggregator([]Probe{Static("db", Healthy), failing("cache"), panicking("queue")}, WithObserver(obs))

	report, err := agg.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Unhealthy, report.Status)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "db", report.Results[0].Name)
	assert.Empty(t, report.Results[0].Error)
	assert.Equal(t, "cache", report.Results[1].Name)
	assert.Equal(t, "connection refused", report.Results[1].Error)
	assert.Contains(t, report.Results[2].Error, "probe exploded")
	assert.False(t, report.CheckedAt.IsZero())

	assert.Equal(t, "unhealthy", obs.aggregate)
	assert.Equal(t, map[string]int{"db": 0, "cache": 2, "queue": 2}, obs.probes)
}

func TestAggregatorCopiesProbes(t *testing.T) {
	probes := []Probe{Static("a", Healthy)}
	agg := NewAggregator(probes)
	probes[0] = Static("a", Unhealthy)

	status, err := agg.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Healthy, status)
	assert.Equal(t, 1, agg.Len())
}

func TestPropertyWorstWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n")
		probes := make([]Probe, 0, n)
		want := Healthy

		for i := 0; i < n; i++ {
			switch kind := rapid.IntRange(0, 4).Draw(t, "kind"); kind {
			case 0, 1, 2:
				s := Status(kind)
				probes = append(probes, Static("s", s))
				want = want.Worse(s)
			case 3:
				probes = append(probes, failing("e"))
				want = Unhealthy
			default:
				probes = append(probes, panicking("p"))
				want = Unhealthy
			}
		}

		got, err := NewAggregator(probes).Check(context.Background())
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func TestStatus(t *testing.T) {
	assert.Equal(t, Degraded, Healthy.Worse(Degraded))
	assert.Equal(t, Unhealthy, Unhealthy.Worse(Healthy))
	assert.Equal(t, Unhealthy, Healthy.Worse(Status(-1)))
	assert.Equal(t, "status(7)", Status(7).String())

	text, err := Degraded.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "degraded", string(text))

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("Unhealthy")))
	assert.Equal(t, Unhealthy, s)
	assert.Error(t, s.UnmarshalText([]byte("fine")))
}
