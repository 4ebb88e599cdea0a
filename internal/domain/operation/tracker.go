package operation

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/shared/clock"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
)

// Status is the lifecycle status of a Tracker.
type Status int

const (
	StatusRunning Status = iota
	StatusSucceeded
	StatusFailed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome labels passed to a Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder receives the outcome of every finished tracker.
type Recorder interface {
	RecordOperation(name, outcome string, duration time.Duration)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger for start, success and failure lines.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(t *Tracker) { t.recorder = r }
}

// WithClock sets the time source for start and completion stamps.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithIDSource sets the generator for the tracker's operation id.
func WithIDSource(src id.Source) Option {
	return func(t *Tracker) { t.ids = src }
}

// Tracker records one named unit of work.
type Tracker struct {
	name  string
	scope *scope.Context

	operationID       string
	parentOperationID string
	correlationID     string
	causationID       string
	tenantID          string
	projectID         string
	startedAt         time.Time

	clock    clock.Clock
	ids      id.Source
	log      *zap.Logger
	recorder Recorder

	mu          sync.Mutex
	status      Status
	completedAt time.Time
	message     string
	err         error
	metadata    map[string]any
}

// Start begins tracking name inside sc. The scope must be initialized and
// not disposed; lifecycle errors from sc are returned unmodified.
func Start(sc *scope.Context, name string, opts ...Option) (*Tracker, error) {
	if sc == nil {
		return nil, &scope.LifecycleError{Op: "operation.Start", Err: scope.ErrNoScope}
	}
	if strings.TrimSpace(name) == "" {
		return nil, &scope.ValidationError{Op: "operation.Start", Field: "name", Reason: "must not be blank"}
	}

	snap, err := sc.Snapshot()
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		name:              name,
		scope:             sc,
		parentOperationID: snap.OperationID,
		correlationID:     snap.CorrelationID,
		causationID:       snap.CausationID,
		tenantID:          snap.TenantID,
		projectID:         snap.ProjectID,
		clock:             clock.System{},
		ids:               id.Default(),
		log:               zap.NewNop(),
		metadata:          make(map[string]any),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.operationID = t.ids.NewID()
	t.startedAt = t.clock.Now()
	t.log = t.log.With(
		zap.String("operation", name),
		zap.String("operation_id", t.operationID),
		zap.String("parent_operation_id", t.parentOperationID),
		zap.String("correlation_id", t.correlationID),
		zap.String("node_id", snap.NodeID),
	)
	if t.causationID != "" {
		t.log = t.log.With(zap.String("causation_id", t.causationID))
	}
	if t.tenantID != "" {
		t.log = t.log.With(zap.String("tenant_id", t.tenantID))
	}
	if t.projectID != "" {
		t.log = t.log.With(zap.String("project_id", t.projectID))
	}

	t.log.Info("Operation started")
	return t, nil
}

// Name returns the operation name.
func (t *Tracker) Name() string { return t.name }

// OperationID returns the tracker's own operation id.
func (t *Tracker) OperationID() string { return t.operationID }

// ParentOperationID returns the operation id of the bound scope.
func (t *Tracker) ParentOperationID() string { return t.parentOperationID }

// CorrelationID returns the correlation id observed at start.
func (t *Tracker) CorrelationID() string { return t.correlationID }

// CausationID returns the causation id observed at start.
func (t *Tracker) CausationID() string { return t.causationID }

// TenantID returns the tenant id observed at start.
func (t *Tracker) TenantID() string { return t.tenantID }

// ProjectID returns the project id observed at start.
func (t *Tracker) ProjectID() string { return t.projectID }

// Scope returns the scoped context the tracker is bound to.
func (t *Tracker) Scope() *scope.Context { return t.scope }

// StartedAt returns the start time.
func (t *Tracker) StartedAt() time.Time { return t.startedAt }

// Status returns the current status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// CompletedAt returns the completion time and whether the tracker has finished.
func (t *Tracker) CompletedAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completedAt, t.status != StatusRunning
}

// Duration returns the elapsed time, up to completion if finished.
func (t *Tracker) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusRunning {
		return t.clock.Now().Sub(t.startedAt)
	}
	return t.completedAt.Sub(t.startedAt)
}

// Failure returns the failure message and cause, if the tracker failed.
func (t *Tracker) Failure() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message, t.err
}

// Metadata returns a copy of the metadata map.
func (t *Tracker) Metadata() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]any, len(t.metadata))
	for k, v := range t.metadata {
		out[k] = v
	}
	return out
}

// AddMetadata upserts a metadata entry. The value may be nil.
func (t *Tracker) AddMetadata(key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return &scope.ValidationError{Op: "operation.AddMetadata", Field: "key", Reason: "must not be blank"}
	}
	t.mu.Lock()
	t.metadata[key] = value
	t.mu.Unlock()
	return nil
}

// Complete marks the operation successful and returns its duration. Calls
// after the first terminal transition change nothing.
func (t *Tracker) Complete() time.Duration {
	t.mu.Lock()
	if t.status != StatusRunning {
		d := t.completedAt.Sub(t.startedAt)
		t.mu.Unlock()
		return d
	}
	t.status = StatusSucceeded
	t.completedAt = t.clock.Now()
	d := t.completedAt.Sub(t.startedAt)
	fields := t.metadataFields()
	t.mu.Unlock()

	t.log.Info("Operation completed", append(fields, zap.Duration("duration", d))...)
	if t.recorder != nil {
		t.recorder.RecordOperation(t.name, OutcomeSuccess, d)
	}
	return d
}

// Fail marks the operation failed. The message is required; cause may be nil.
func (t *Tracker) Fail(message string, cause error) error {
	if strings.TrimSpace(message) == "" {
		return &scope.ValidationError{Op: "operation.Fail", Field: "message", Reason: "must not be blank"}
	}

	t.mu.Lock()
	if t.status != StatusRunning {
		t.mu.Unlock()
		return nil
	}
	t.status = StatusFailed
	t.completedAt = t.clock.Now()
	t.message = message
	t.err = cause
	d := t.completedAt.Sub(t.startedAt)
	fields := t.metadataFields()
	t.mu.Unlock()

	fields = append(fields, zap.Duration("duration", d), zap.String("failure", message))
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	t.log.Error("Operation failed", fields...)
	if t.recorder != nil {
		t.recorder.RecordOperation(t.name, OutcomeFailure, d)
	}
	return nil
}

// Close completes the tracker if nothing else finished it. It is the hook the
// owning boundary calls when the scope ends.
func (t *Tracker) Close() {
	if t.Status() == StatusRunning {
		t.log.Debug("Operation auto-completed on scope end")
		t.Complete()
	}
}

// Finish completes the tracker when err is nil and fails it otherwise.
func (t *Tracker) Finish(err error) {
	if err == nil {
		t.Complete()
		return
	}
	msg := err.Error()
	if strings.TrimSpace(msg) == "" {
		msg = "operation failed"
	}
	_ = t.Fail(msg, err)
}

// metadataFields must be called with t.mu held. The map is copied because
// zap encodes it after the lock is released.
func (t *Tracker) metadataFields() []zap.Field {
	if len(t.metadata) == 0 {
		return nil
	}
	md := make(map[string]any, len(t.metadata))
	for k, v := range t.metadata {
		md[k] = v
	}
	return []zap.Field{zap.Any("metadata", md)}
}
