package operation

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
)

var errNilTracker = errors.New("operation: tracker is nil")

// ChildFactory derives scoped contexts for outbound calls.
type ChildFactory struct {
	registry *identity.Registry
}

// NewChildFactory creates a factory. When registry is non-nil, node
// overrides must name a registered node.
func NewChildFactory(registry *identity.Registry) *ChildFactory {
	return &ChildFactory{registry: registry}
}

// ForCall derives a child of the tracker's scope for a call made by the
// tracked operation. The child's causation id is the tracker's operation id
// and its correlation id is unchanged. An empty nodeID keeps the scope's node.
func (f *ChildFactory) ForCall(t *Tracker, nodeID string) (*scope.Context, error) {
	if t == nil {
		return nil, errNilTracker
	}
	if err := f.checkNode(nodeID); err != nil {
		return nil, err
	}
	return t.scope.CreateChildContextCausedBy(nodeID, t.operationID)
}

// Derive derives a child of sc whose causation id is sc's operation id.
func (f *ChildFactory) Derive(sc *scope.Context, nodeID string) (*scope.Context, error) {
	if sc == nil {
		return nil, &scope.LifecycleError{Op: "operation.Derive", Err: scope.ErrNoScope}
	}
	if err := f.checkNode(nodeID); err != nil {
		return nil, err
	}
	return sc.CreateChildContext(nodeID)
}

func (f *ChildFactory) checkNode(nodeID string) error {
	if nodeID == "" || f == nil || f.registry == nil {
		return nil
	}
	if !f.registry.Contains(nodeID) {
		return fmt.Errorf("failed to derive child context: %w: %q", identity.ErrUnknownNode, nodeID)
	}
	return nil
}
