package scope

import "context"

// InitValues is the canonical set of values a transport mapper lifts out of
// an inbound request, job or message.
type InitValues struct {
	CorrelationID string
	CausationID   string
	TenantID      string
	ProjectID     string
	Baggage       map[string]string
	Cancellation  context.Context
}

// Options converts the optional fields into InitOptions.
func (v InitValues) Options() []InitOption {
	return []InitOption{
		WithCausation(v.CausationID),
		WithTenant(v.TenantID),
		WithProject(v.ProjectID),
		WithBaggage(v.Baggage),
		WithCancellation(v.Cancellation),
	}
}

// InitOption sets an optional value passed to Initialize.
type InitOption func(*InitValues)

// WithCausation sets the operation id of the hop that caused this one.
func WithCausation(causationID string) InitOption {
	return func(v *InitValues) { v.CausationID = causationID }
}

// WithTenant sets the tenant id.
func WithTenant(tenantID string) InitOption {
	return func(v *InitValues) { v.TenantID = tenantID }
}

// WithProject sets the project id.
func WithProject(projectID string) InitOption {
	return func(v *InitValues) { v.ProjectID = projectID }
}

// WithBaggage supplies initial baggage. The map is copied by Initialize.
func WithBaggage(baggage map[string]string) InitOption {
	return func(v *InitValues) { v.Baggage = baggage }
}

// WithCancellation sets the cancellation signal of the owning scope.
func WithCancellation(ctx context.Context) InitOption {
	return func(v *InitValues) { v.Cancellation = ctx }
}
