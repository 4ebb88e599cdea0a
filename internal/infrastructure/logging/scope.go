package logging

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
)

// Field names shared by every component that logs scope data.
const (
	FieldCorrelationID = "correlation_id"
	FieldOperationID   = "operation_id"
	FieldCausationID   = "causation_id"
	FieldTenantID      = "tenant_id"
	FieldProjectID     = "project_id"
	FieldNodeID        = "node_id"
	FieldScopeError    = "scope_error"
)

// ScopeFields returns the correlation fields of c. Optional ids are omitted
// when empty. If c is not usable the lifecycle error is reported as a field.
func ScopeFields(c *scope.Context) []zap.Field {
	if c == nil {
		return []zap.Field{zap.String(FieldScopeError, scope.ErrNoScope.Error())}
	}

	snap, err := c.Snapshot()
	if err != nil {
		return []zap.Field{
			zap.String(FieldNodeID, c.NodeID()),
			zap.String(FieldScopeError, err.Error()),
		}
	}

	fields := []zap.Field{
		zap.String(FieldCorrelationID, snap.CorrelationID),
		zap.String(FieldOperationID, snap.OperationID),
		zap.String(FieldNodeID, snap.NodeID),
	}
	if snap.CausationID != "" {
		fields = append(fields, zap.String(FieldCausationID, snap.CausationID))
	}
	if snap.TenantID != "" {
		fields = append(fields, zap.String(FieldTenantID, snap.TenantID))
	}
	if snap.ProjectID != "" {
		fields = append(fields, zap.String(FieldProjectID, snap.ProjectID))
	}
	return fields
}

// For returns a child logger enriched with the ambient scope of ctx.
func (l *Logger) For(ctx context.Context) *zap.Logger {
	sc, ok := scope.Lookup(ctx)
	if !ok {
		return l.With(zap.String(FieldScopeError, scope.ErrNoScope.Error()))
	}
	return l.With(ScopeFields(sc)...)
}

// WithScope returns a child logger enriched with the fields of c.
func (l *Logger) WithScope(c *scope.Context) *zap.Logger {
	return l.With(ScopeFields(c)...)
}
