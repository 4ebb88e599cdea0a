package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
)

const validTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func fixedIDs(v string) id.Source {
	return id.SourceFunc(func() string { return v })
}

func newScope(t *testing.T) *scope.Context {
	t.Helper()
	sc, err := scope.New(identity.Identity{NodeID: "billing-api", StudioID: "acme", Environment: "test"})
	require.NoError(t, err)
	return sc
}

func TestHTTPExtractCorrelation(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"explicit header", map[string]string{HeaderCorrelationID: "corr-1", HeaderTraceparent: validTraceparent}, "corr-1"},
		{"blank header falls back to traceparent", map[string]string{HeaderCorrelationID: "  ", HeaderTraceparent: validTraceparent}, "4bf92f3577b34da6a3ce929d0e0e4736"},
		{"traceparent only", map[string]string{HeaderTraceparent: validTraceparent}, "4bf92f3577b34da6a3ce929d0e0e4736"},
		{"zero trace id", map[string]string{HeaderTraceparent: "00-00000000000000000000000000000000-00f067aa0ba902b7-01"}, "generated"},
		{"short trace id", map[string]string{HeaderTraceparent: "00-4bf92f35-00f067aa0ba902b7-01"}, "generated"},
		{"bad span id", map[string]string{HeaderTraceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-xyz-01"}, "generated"},
		{"too few segments", map[string]string{HeaderTraceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736"}, "generated"},
		{"forbidden version", map[string]string{HeaderTraceparent: "ff-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}, "generated"},
		{"non-hex flags", map[string]string{HeaderTraceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-zz"}, "generated"},
		{"uppercase flags", map[string]string{HeaderTraceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-0A"}, "generated"},
		{"non-hex version", map[string]string{HeaderTraceparent: "0g-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}, "generated"},
		{"unsampled flags", map[string]string{HeaderTraceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00"}, "4bf92f3577b34da6a3ce929d0e0e4736"},
		{"nothing", nil, "generated"},
	}

	m := NewHTTPMapper(HTTPConfig{IDs: fixedIDs("generated")})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			v := m.ExtractHeaders(h, context.Background())
			assert.Equal(t, tt.want, v.CorrelationID)
		})
	}
}

func TestHTTPExtractOptionalIDs(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderCorrelationID, "corr-1")
	r.Header.Set(HeaderCausationID, " op-9 ")
	r.Header.Set(HeaderTenantID, "tenant-a")
	r.Header.Set(HeaderProjectID, "project-b")

	v := m.Extract(r)
	assert.Equal(t, "op-9", v.CausationID)
	assert.Equal(t, "tenant-a", v.TenantID)
	assert.Equal(t, "project-b", v.ProjectID)
	assert.Equal(t, r.Context(), v.Cancellation)
}

// Scenario B.
func TestHTTPBaggageHeaderSkipsEmptyEntries(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{})
	h := http.Header{}
	h.Set("baggage", "a=1,b=,=3,c=4")

	v := m.ExtractHeaders(h, context.Background())
	assert.Equal(t, map[string]string{"a": "1", "c": "4"}, v.Baggage)
}

func TestHTTPBaggageParsing(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   map[string]string
	}{
		{"properties ignored", []string{"region=eu;ttl=30;sensitive"}, map[string]string{"region": "eu"}},
		{"percent decoded", []string{"user=J%C3%BCrgen%20K"}, map[string]string{"user": "Jürgen K"}},
		{"missing equals skipped", []string{"novalue,ok=1"}, map[string]string{"ok": "1"}},
		{"bad escape skipped", []string{"bad=%zz,ok=1"}, map[string]string{"ok": "1"}},
		{"whitespace trimmed", []string{" a = 1 , b=2 "}, map[string]string{"a": "1", "b": "2"}},
		{"multiple header lines", []string{"a=1", "b=2"}, map[string]string{"a": "1", "b": "2"}},
		{"value keeps equals", []string{"expr=x=y"}, map[string]string{"expr": "x=y"}},
	}

	m := NewHTTPMapper(HTTPConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, line := range tt.header {
				h.Add("Baggage", line)
			}
			assert.Equal(t, tt.want, m.ExtractHeaders(h, context.Background()).Baggage)
		})
	}
}

func TestHTTPPrefixedBaggage(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{})
	h := http.Header{}
	h.Set("baggage", "region=eu,tier=free")
	h.Set("X-Baggage-Tier", "gold")
	h["x-baggage-lower"] = []string{"yes"}
	h.Set("X-Baggage-Empty", "   ")
	h["X-Baggage-"] = []string{"no key"}

	v := m.ExtractHeaders(h, context.Background())
	assert.Equal(t, map[string]string{"region": "eu", "tier": "gold", "lower": "yes"}, v.Baggage)
}

func TestHTTPBaggageKeysAreCaseInsensitive(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{})
	h := http.Header{}
	h.Set("baggage", "Tenant=a,Region=eu")
	h.Set("X-Baggage-Tenant", "b")

	v := m.ExtractHeaders(h, context.Background())
	assert.Equal(t, map[string]string{"tenant": "b", "region": "eu"}, v.Baggage)
}

func TestHTTPCustomPrefix(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{BaggagePrefix: "Ctx-"})
	h := http.Header{}
	h.Set("Ctx-Flow", "checkout")
	h.Set("X-Baggage-Ignored", "x")

	assert.Equal(t, map[string]string{"flow": "checkout"}, m.ExtractHeaders(h, context.Background()).Baggage)
}

func TestHTTPTruncation(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{})
	long := strings.Repeat("x", 1000)
	h := http.Header{}
	h.Set(HeaderCorrelationID, long)
	h.Set(HeaderTenantID, long)
	h.Set("baggage", "k="+long)
	h.Set("X-Baggage-"+strings.Repeat("k", 300), "v")

	v := m.ExtractHeaders(h, context.Background())
	assert.Len(t, v.CorrelationID, 256)
	assert.Len(t, v.TenantID, 256)
	assert.Len(t, v.Baggage["k"], 256)
	for k := range v.Baggage {
		assert.LessOrEqual(t, len(k), 256)
	}

	small := NewHTTPMapper(HTTPConfig{MaxValueLength: 4})
	assert.Equal(t, "abcd", small.ExtractHeaders(http.Header{HeaderCorrelationID: {"abcdefgh"}}, context.Background()).CorrelationID)
}

func TestHTTPBaggageEntryLimit(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{MaxBaggageEntries: 2})
	h := http.Header{}
	h.Set("baggage", "a=1,b=2,c=3")
	h.Set("X-Baggage-D", "4")

	assert.Len(t, m.ExtractHeaders(h, context.Background()).Baggage, 2)
}

func TestHTTPInitialize(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	r.Header.Set(HeaderCorrelationID, "corr-1")

	sc := newScope(t)
	require.NoError(t, m.Initialize(sc, r))

	corr, _ := sc.CorrelationID()
	assert.Equal(t, "corr-1", corr)

	signal, err := sc.Cancellation()
	require.NoError(t, err)
	cancel()
	<-signal.Done()

	assert.ErrorIs(t, m.Initialize(sc, r), scope.ErrAlreadyInitialized)
}

func TestHTTPWriteResponseHeaders(t *testing.T) {
	m := NewHTTPMapper(HTTPConfig{})
	sc := newScope(t)

	w := httptest.NewRecorder()
	assert.ErrorIs(t, m.WriteResponseHeaders(w.Header(), sc), scope.ErrNotInitialized)

	require.NoError(t, sc.Initialize("corr-1", scope.WithTenant("tenant-a")))
	require.NoError(t, m.WriteResponseHeaders(w.Header(), sc))

	assert.Equal(t, "corr-1", w.Header().Get(HeaderCorrelationID))
	assert.Equal(t, "billing-api", w.Header().Get(HeaderNodeID))
	assert.Equal(t, "tenant-a", w.Header().Get(HeaderTenantID))
	assert.Empty(t, w.Header().Get(HeaderProjectID))
}

func TestHTTPInjectHeadersRoundTrip(t *testing.T) {
	gen := id.NewGenerator()
	parent, err := scope.New(
		identity.Identity{NodeID: "billing-api", StudioID: "acme", Environment: "test"},
		scope.WithIDSource(gen),
	)
	require.NoError(t, err)
	require.NoError(t, parent.Initialize(gen.NewID(),
		scope.WithTenant("tenant-a"),
		scope.WithBaggage(map[string]string{"user": "Jürgen K", "flow": "a,b;c"}),
	))

	child, err := parent.CreateChildContext("ledger")
	require.NoError(t, err)

	m := NewHTTPMapper(HTTPConfig{Sampled: true})
	h := http.Header{}
	require.NoError(t, m.InjectHeaders(h, child))

	corr, _ := parent.CorrelationID()
	parentOp, _ := parent.OperationID()
	assert.Equal(t, corr, h.Get(HeaderCorrelationID))
	assert.Equal(t, parentOp, h.Get(HeaderCausationID))
	assert.Empty(t, h.Get(HeaderProjectID))

	tp := h.Get(HeaderTraceparent)
	require.NotEmpty(t, tp)
	assert.True(t, strings.HasPrefix(tp, "00-"))
	assert.True(t, strings.HasSuffix(tp, "-01"))

	// The receiving node sees the same trace.
	received := m.ExtractHeaders(h, context.Background())
	assert.Equal(t, corr, received.CorrelationID)
	assert.Equal(t, parentOp, received.CausationID)
	assert.Equal(t, "tenant-a", received.TenantID)
	assert.Equal(t, map[string]string{"user": "Jürgen K", "flow": "a,b;c"}, received.Baggage)

	// Without the correlation header the traceparent still carries the trace.
	h.Del(HeaderCorrelationID)
	traceID, ok := parseTraceparent(h.Get(HeaderTraceparent))
	require.True(t, ok)
	b, _ := id.Bytes(corr)
	wantTrace, _ := id.Bytes(traceID)
	assert.Equal(t, b, wantTrace)
}

func TestHTTPInjectHeadersFreeFormIDs(t *testing.T) {
	sc, err := scope.New(
		identity.Identity{NodeID: "billing-api", StudioID: "acme", Environment: "test"},
		scope.WithIDSource(fixedIDs("op-1")),
	)
	require.NoError(t, err)
	require.NoError(t, sc.Initialize("corr-1"))

	h := http.Header{}
	h.Set(HeaderTraceparent, validTraceparent)
	require.NoError(t, NewHTTPMapper(HTTPConfig{}).InjectHeaders(h, sc))

	assert.Empty(t, h.Get(HeaderTraceparent), "stale traceparent must not leak")
	assert.Empty(t, h.Get(HeaderBaggage))
	assert.Empty(t, h.Get(HeaderCausationID))
	assert.Equal(t, "op-1", h.Get(HeaderOperationID))
}

func TestHTTPInjectRequiresUsableScope(t *testing.T) {
	sc := newScope(t)
	sc.MarkDisposed()
	assert.ErrorIs(t, NewHTTPMapper(HTTPConfig{}).InjectHeaders(http.Header{}, sc), scope.ErrDisposed)
}
