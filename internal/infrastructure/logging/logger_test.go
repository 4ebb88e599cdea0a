package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return Wrap(zap.New(core)), logs
}

func initializedScope(t *testing.T, opts ...scope.InitOption) *scope.Context {
	t.Helper()
	sc, err := scope.New(
		identity.Identity{NodeID: "billing-api", StudioID: "acme", Environment: "test"},
		scope.WithIDSource(id.SourceFunc(func() string { return "op-1" })),
	)
	require.NoError(t, err)
	require.NoError(t, sc.Initialize("corr-1", opts...))
	return sc
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"development", DevelopmentConfig(), false},
		{"no output paths", Config{Level: "warn"}, false},
		{"bad level", Config{Level: "loud"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l.Logger)
		})
	}
}

func TestWrapNil(t *testing.T) {
	l := Wrap(nil)
	require.NotNil(t, l)
	l.Info("dropped")
}

func TestScopeFields(t *testing.T) {
	sc := initializedScope(t, scope.WithCausation("cause-1"), scope.WithTenant("t-1"))
	log, logs := observed()

	log.WithScope(sc).Info("hello")

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "corr-1", ctx[FieldCorrelationID])
	assert.Equal(t, "op-1", ctx[FieldOperationID])
	assert.Equal(t, "cause-1", ctx[FieldCausationID])
	assert.Equal(t, "t-1", ctx[FieldTenantID])
	assert.Equal(t, "billing-api", ctx[FieldNodeID])
	assert.NotContains(t, ctx, FieldProjectID)
}

func TestScopeFieldsUnusableScope(t *testing.T) {
	sc := initializedScope(t)
	sc.MarkDisposed()

	fields := ScopeFields(sc)
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	assert.Equal(t, "billing-api", enc.Fields[FieldNodeID])
	assert.Contains(t, enc.Fields[FieldScopeError], "disposed")
	assert.NotContains(t, enc.Fields, FieldCorrelationID)

	nilFields := ScopeFields(nil)
	require.Len(t, nilFields, 1)
	assert.Equal(t, FieldScopeError, nilFields[0].Key)
}

func TestFor(t *testing.T) {
	log, logs := observed()

	log.For(context.Background()).Warn("outside")
	sc := initializedScope(t)
	log.For(scope.WithScope(context.Background(), sc)).Info("inside")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].ContextMap(), FieldScopeError)
	assert.Equal(t, "corr-1", entries[1].ContextMap()[FieldCorrelationID])
}

func TestConfigFields(t *testing.T) {
	l, err := New(Config{Level: "info", OutputPaths: []string{"stderr"}, Fields: map[string]string{"studio_id": "acme"}})
	require.NoError(t, err)
	assert.NotNil(t, l)
}
