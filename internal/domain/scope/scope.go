// Package scope implements the per-operation context that carries
// correlation, causation and tenant identity across process boundaries.
//
// A Context is owned by exactly one scope: one HTTP request, one job
// execution or one handled message. The boundary that owns the scope
// constructs it, initializes it once from the inbound transport, and marks it
// disposed when the operation has fully unwound. Every accessor checks the
// lifecycle and fails loudly instead of returning stale or empty values.
//
// A Context is not safe for concurrent mutation. Code that fans out work
// either reads it without mutating or derives a child per branch.
package scope

import (
	"context"
	"strings"
	"time"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/shared/clock"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
)

// State is the lifecycle state of a Context.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateDisposed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Option configures a Context at construction.
type Option func(*Context)

// WithClock sets the time source used for CreatedAt.
func WithClock(c clock.Clock) Option {
	return func(sc *Context) { sc.clock = c }
}

// WithIDSource sets the generator used for operation ids.
func WithIDSource(src id.Source) Option {
	return func(sc *Context) { sc.ids = src }
}

// Context is the scope-owned container for one logical operation.
type Context struct {
	identity identity.Identity
	clock    clock.Clock
	ids      id.Source

	initialized bool
	disposed    bool

	correlationID string
	operationID   string
	causationID   string
	tenantID      string
	projectID     string
	baggage       map[string]string
	cancellation  context.Context
	createdAt     time.Time
}

// New constructs an uninitialized Context for the given process identity.
func New(ident identity.Identity, opts ...Option) (*Context, error) {
	const op = "New"
	switch {
	case isBlank(ident.NodeID):
		return nil, required(op, "node_id")
	case isBlank(ident.StudioID):
		return nil, required(op, "studio_id")
	case isBlank(ident.Environment):
		return nil, required(op, "environment")
	}

	c := &Context{
		identity: ident,
		clock:    clock.System{},
		ids:      id.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Initialize transitions the context to Initialized. It succeeds at most once
// per instance; the baggage map is copied.
func (c *Context) Initialize(correlationID string, opts ...InitOption) error {
	const op = "Initialize"
	if c.disposed {
		return lifecycle(op, ErrDisposed)
	}
	if c.initialized {
		return lifecycle(op, ErrAlreadyInitialized)
	}
	if isBlank(correlationID) {
		return required(op, "correlation_id")
	}

	v := InitValues{CorrelationID: correlationID}
	for _, opt := range opts {
		opt(&v)
	}

	bag := make(map[string]string, len(v.Baggage))
	for k, val := range v.Baggage {
		if isBlank(k) {
			return required(op, "baggage key")
		}
		if isBlank(val) {
			return required(op, "baggage value for "+k)
		}
		bag[k] = val
	}

	cancel := v.Cancellation
	if cancel == nil {
		cancel = context.Background()
	}

	c.correlationID = correlationID
	c.operationID = c.ids.NewID()
	c.causationID = strings.TrimSpace(v.CausationID)
	c.tenantID = strings.TrimSpace(v.TenantID)
	c.projectID = strings.TrimSpace(v.ProjectID)
	c.baggage = bag
	c.cancellation = cancel
	c.createdAt = c.clock.Now()
	c.initialized = true
	return nil
}

// InitializeFrom initializes the context from values produced by a
// transport mapper.
func (c *Context) InitializeFrom(v InitValues) error {
	return c.Initialize(v.CorrelationID, v.Options()...)
}

// MarkDisposed ends the lifecycle. It is idempotent and is only called by the
// boundary that owns the scope.
func (c *Context) MarkDisposed() {
	c.disposed = true
}

// IsInitialized reports whether Initialize has succeeded.
func (c *Context) IsInitialized() bool { return c.initialized }

// IsDisposed reports whether MarkDisposed has been called.
func (c *Context) IsDisposed() bool { return c.disposed }

// State returns the current lifecycle state.
func (c *Context) State() State {
	switch {
	case c.disposed:
		return StateDisposed
	case c.initialized:
		return StateInitialized
	default:
		return StateUninitialized
	}
}

// check enforces disposal before initialization: a disposed context reports
// disposal even if it was never initialized.
func (c *Context) check(op string) error {
	if c.disposed {
		return lifecycle(op, ErrDisposed)
	}
	if !c.initialized {
		return lifecycle(op, ErrNotInitialized)
	}
	return nil
}

// Identity returns the process identity. It is readable in every state.
func (c *Context) Identity() identity.Identity { return c.identity }

// NodeID returns the node this context is addressed to.
func (c *Context) NodeID() string { return c.identity.NodeID }

// StudioID returns the studio (tenant root) identifier.
func (c *Context) StudioID() string { return c.identity.StudioID }

// Environment returns the environment name.
func (c *Context) Environment() string { return c.identity.Environment }

// CorrelationID returns the id shared by every hop of the trace.
func (c *Context) CorrelationID() (string, error) {
	if err := c.check("CorrelationID"); err != nil {
		return "", err
	}
	return c.correlationID, nil
}

// OperationID returns the id of this hop.
func (c *Context) OperationID() (string, error) {
	if err := c.check("OperationID"); err != nil {
		return "", err
	}
	return c.operationID, nil
}

// CausationID returns the operation id of the hop that caused this one, or
// "" for a root operation.
func (c *Context) CausationID() (string, error) {
	if err := c.check("CausationID"); err != nil {
		return "", err
	}
	return c.causationID, nil
}

// TenantID returns the tenant id, or "" when none was supplied.
func (c *Context) TenantID() (string, error) {
	if err := c.check("TenantID"); err != nil {
		return "", err
	}
	return c.tenantID, nil
}

// ProjectID returns the project id, or "" when none was supplied.
func (c *Context) ProjectID() (string, error) {
	if err := c.check("ProjectID"); err != nil {
		return "", err
	}
	return c.projectID, nil
}

// Baggage returns a copy of the baggage map.
func (c *Context) Baggage() (map[string]string, error) {
	if err := c.check("Baggage"); err != nil {
		return nil, err
	}
	return copyMap(c.baggage), nil
}

// BaggageItem returns a single baggage value.
func (c *Context) BaggageItem(key string) (string, bool, error) {
	if err := c.check("BaggageItem"); err != nil {
		return "", false, err
	}
	v, ok := c.baggage[key]
	return v, ok, nil
}

// Cancellation returns the cooperative cancellation signal of the owning scope.
func (c *Context) Cancellation() (context.Context, error) {
	if err := c.check("Cancellation"); err != nil {
		return nil, err
	}
	return c.cancellation, nil
}

// CreatedAt returns the UTC time Initialize succeeded.
func (c *Context) CreatedAt() (time.Time, error) {
	if err := c.check("CreatedAt"); err != nil {
		return time.Time{}, err
	}
	return c.createdAt, nil
}

// AddBaggage upserts one baggage entry. Correlation and causation are unaffected.
func (c *Context) AddBaggage(key, value string) error {
	const op = "AddBaggage"
	if err := c.check(op); err != nil {
		return err
	}
	if isBlank(key) {
		return required(op, "key")
	}
	if isBlank(value) {
		return required(op, "value")
	}
	c.baggage[key] = value
	return nil
}

// Snapshot is a read-only copy of every field, for logging and diagnostics.
type Snapshot struct {
	NodeID        string            `json:"node_id"`
	StudioID      string            `json:"studio_id"`
	Environment   string            `json:"environment"`
	CorrelationID string            `json:"correlation_id"`
	OperationID   string            `json:"operation_id"`
	CausationID   string            `json:"causation_id,omitempty"`
	TenantID      string            `json:"tenant_id,omitempty"`
	ProjectID     string            `json:"project_id,omitempty"`
	Baggage       map[string]string `json:"baggage,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Snapshot copies all fields under a single lifecycle check.
func (c *Context) Snapshot() (Snapshot, error) {
	if err := c.check("Snapshot"); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		NodeID:        c.identity.NodeID,
		StudioID:      c.identity.StudioID,
		Environment:   c.identity.Environment,
		CorrelationID: c.correlationID,
		OperationID:   c.operationID,
		CausationID:   c.causationID,
		TenantID:      c.tenantID,
		ProjectID:     c.projectID,
		Baggage:       copyMap(c.baggage),
		CreatedAt:     c.createdAt,
	}, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
