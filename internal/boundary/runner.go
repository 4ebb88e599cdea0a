// Package boundary owns the lifecycle of a scoped context around one unit of
// inbound work. Every transport (HTTP, gRPC, websocket messages, jobs) runs
// its handler through a Runner so that construction, initialization,
// tracking and disposal happen in exactly one place.
package boundary

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/domain/operation"
	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scopectx/internal/shared/clock"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
)

// Kinds label the transport that owns a scope.
const (
	KindHTTP    = "http"
	KindGRPC    = "grpc"
	KindMessage = "message"
	KindJob     = "job"
)

// InitFunc initializes a fresh scope from the inbound transport.
type InitFunc func(sc *scope.Context) error

// WorkFunc is the handler. ctx carries the scope; t tracks the operation.
type WorkFunc func(ctx context.Context, t *operation.Tracker) error

// PanicError is returned by Run when the handler panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records scope, operation and lifecycle metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock sets the time source for scopes and trackers.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithIDSource sets the id source for scopes and trackers.
func WithIDSource(src id.Source) Option {
	return func(r *Runner) { r.ids = src }
}

// Runner runs work inside freshly owned scopes.
type Runner struct {
	identity identity.Identity
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	clock    clock.Clock
	ids      id.Source
}

// NewRunner creates a runner for the process identity.
func NewRunner(ident identity.Identity, opts ...Option) *Runner {
	r := &Runner{
		identity: ident,
		logger:   logging.NewNop(),
		clock:    clock.System{},
		ids:      id.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identity returns the process identity.
func (r *Runner) Identity() identity.Identity { return r.identity }

// Logger returns the runner's logger.
func (r *Runner) Logger() *logging.Logger { return r.logger }

// IDs returns the runner's id source.
func (r *Runner) IDs() id.Source { return r.ids }

// Run constructs a scope, initializes it with init, starts a tracker named
// name, binds both to ctx and runs fn. The tracker is finished from fn's
// result and the scope is always disposed before Run returns. A panic in fn is
// returned as a *PanicError.
func (r *Runner) Run(ctx context.Context, kind, name string, init InitFunc, fn WorkFunc) (err error) {
	sc, err := scope.New(r.identity, scope.WithClock(r.clock), scope.WithIDSource(r.ids))
	if err != nil {
		return err
	}

	if r.metrics != nil {
		r.metrics.ScopeOpened()
	}
	defer func() {
		sc.MarkDisposed()
		if r.metrics != nil {
			r.metrics.ScopeClosed()
		}
	}()

	if err := init(sc); err != nil {
		r.reject(kind, name, err)
		return err
	}

	trackerOpts := []operation.Option{
		operation.WithLogger(r.logger.Logger),
		operation.WithClock(r.clock),
		operation.WithIDSource(r.ids),
	}
	if r.metrics != nil {
		trackerOpts = append(trackerOpts, operation.WithRecorder(r.metrics))
	}

	tracker, err := operation.Start(sc, name, trackerOpts...)
	if err != nil {
		r.reject(kind, name, err)
		return err
	}
	defer tracker.Close()

	ctx = operation.WithTracker(scope.WithScope(ctx, sc), tracker)

	defer func() {
		if v := recover(); v != nil {
			perr := &PanicError{Value: v, Stack: debug.Stack()}
			_ = tracker.Fail(perr.Error(), perr)
			r.logger.WithScope(sc).Error("Recovered from panic",
				zap.String("kind", kind),
				zap.Any("panic", v),
				zap.ByteString("stack", perr.Stack),
			)
			err = perr
		}
	}()

	err = fn(ctx, tracker)
	tracker.Finish(err)
	return err
}

func (r *Runner) reject(kind, name string, err error) {
	r.logger.Warn("Scope boundary rejected work",
		zap.String("kind", kind),
		zap.String("operation", name),
		zap.Error(err),
	)
	if r.metrics != nil && (scope.IsLifecycle(err) || scope.IsValidation(err)) {
		r.metrics.RecordLifecycleError(kind, monitoring.LifecycleKind(err))
	}
}
