package operation

import (
	"context"

	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
)

type trackerKey struct{}

// WithTracker binds t to ctx.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFrom returns the tracker bound to ctx, if any.
func TrackerFrom(ctx context.Context) (*Tracker, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(trackerKey{}).(*Tracker)
	return t, ok && t != nil
}

// ForContext derives a child for an outbound call made from ctx. A bound
// tracker is the cause when present; otherwise the bound scope is.
func (f *ChildFactory) ForContext(ctx context.Context, nodeID string) (*scope.Context, error) {
	if t, ok := TrackerFrom(ctx); ok {
		return f.ForCall(t, nodeID)
	}
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return f.Derive(sc, nodeID)
}
