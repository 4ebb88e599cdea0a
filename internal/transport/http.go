package transport

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
	"github.com/GriffinCanCode/scopectx/internal/shared/utils"
)

// HTTP header names.
const (
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderCausationID   = "X-Causation-Id"
	HeaderOperationID   = "X-Operation-Id"
	HeaderTenantID      = "X-Tenant-Id"
	HeaderProjectID     = "X-Project-Id"
	HeaderNodeID        = "X-Node-Id"
	HeaderTraceparent   = "Traceparent"
	HeaderBaggage       = "Baggage"

	DefaultBaggageHeaderPrefix = "X-Baggage-"
	DefaultMaxBaggageEntries   = 64
)

// HTTPConfig configures an HTTPMapper. Zero values select defaults.
type HTTPConfig struct {
	// MaxValueLength caps every extracted value, in runes.
	MaxValueLength int
	// BaggagePrefix marks single-entry baggage headers; matched case-insensitively.
	BaggagePrefix string
	// MaxBaggageEntries bounds the number of inbound baggage entries.
	MaxBaggageEntries int
	// Sampled sets the sampled flag on outbound traceparent headers.
	Sampled bool
	// IDs generates correlation ids when the request carries none.
	IDs id.Source
}

// HTTPMapper maps HTTP requests to scope values and back.
type HTTPMapper struct {
	cfg HTTPConfig
}

// NewHTTPMapper creates an HTTP mapper.
func NewHTTPMapper(cfg HTTPConfig) *HTTPMapper {
	if cfg.MaxValueLength <= 0 {
		cfg.MaxValueLength = utils.DefaultMaxHeaderValueLength
	}
	if cfg.BaggagePrefix == "" {
		cfg.BaggagePrefix = DefaultBaggageHeaderPrefix
	}
	if cfg.MaxBaggageEntries <= 0 {
		cfg.MaxBaggageEntries = DefaultMaxBaggageEntries
	}
	if cfg.IDs == nil {
		cfg.IDs = id.Default()
	}
	return &HTTPMapper{cfg: cfg}
}

// Extract reads scope values from r. Cancellation follows the request context.
func (m *HTTPMapper) Extract(r *http.Request) scope.InitValues {
	return m.ExtractHeaders(r.Header, r.Context())
}

// ExtractHeaders reads scope values from h.
func (m *HTTPMapper) ExtractHeaders(h http.Header, cancel context.Context) scope.InitValues {
	correlation := m.clip(h.Get(HeaderCorrelationID))
	if utils.IsBlank(correlation) {
		if traceID, ok := parseTraceparent(h.Get(HeaderTraceparent)); ok {
			correlation = traceID
		} else {
			correlation = m.cfg.IDs.NewID()
		}
	}

	return scope.InitValues{
		CorrelationID: strings.TrimSpace(correlation),
		CausationID:   m.clip(h.Get(HeaderCausationID)),
		TenantID:      m.clip(h.Get(HeaderTenantID)),
		ProjectID:     m.clip(h.Get(HeaderProjectID)),
		Baggage:       m.extractBaggage(h),
		Cancellation:  cancel,
	}
}

// Initialize extracts values from r and initializes c with them.
func (m *HTTPMapper) Initialize(c *scope.Context, r *http.Request) error {
	return c.InitializeFrom(m.Extract(r))
}

// WriteResponseHeaders echoes the resolved ids so the caller learns the
// correlation id that was actually assigned.
func (m *HTTPMapper) WriteResponseHeaders(h http.Header, c *scope.Context) error {
	snap, err := c.Snapshot()
	if err != nil {
		return err
	}
	h.Set(HeaderCorrelationID, snap.CorrelationID)
	h.Set(HeaderNodeID, snap.NodeID)
	if snap.TenantID != "" {
		h.Set(HeaderTenantID, snap.TenantID)
	}
	if snap.ProjectID != "" {
		h.Set(HeaderProjectID, snap.ProjectID)
	}
	return nil
}

// InjectHeaders writes c onto an outbound request. c is normally a child
// derived for the call, so the receiver's causation id is the caller's
// operation.
func (m *HTTPMapper) InjectHeaders(h http.Header, c *scope.Context) error {
	snap, err := c.Snapshot()
	if err != nil {
		return err
	}

	h.Set(HeaderCorrelationID, snap.CorrelationID)
	h.Set(HeaderOperationID, snap.OperationID)
	setOrDelete(h, HeaderCausationID, snap.CausationID)
	setOrDelete(h, HeaderTenantID, snap.TenantID)
	setOrDelete(h, HeaderProjectID, snap.ProjectID)

	parent := snap.CausationID
	if parent == "" {
		parent = snap.OperationID
	}
	if tp, ok := formatTraceparent(snap.CorrelationID, parent, m.cfg.Sampled); ok {
		h.Set(HeaderTraceparent, tp)
	} else {
		h.Del(HeaderTraceparent)
	}

	setOrDelete(h, HeaderBaggage, formatBaggage(snap.Baggage))
	return nil
}

func (m *HTTPMapper) clip(s string) string {
	return strings.TrimSpace(utils.Truncate(s, m.cfg.MaxValueLength))
}

// extractBaggage merges the W3C baggage header with prefixed headers. Keys
// from both sources are lowercased; prefixed headers win on conflicting keys.
func (m *HTTPMapper) extractBaggage(h http.Header) map[string]string {
	out := make(map[string]string)

	for _, line := range h.Values(HeaderBaggage) {
		for _, member := range strings.Split(line, ",") {
			if len(out) >= m.cfg.MaxBaggageEntries {
				break
			}
			k, v, ok := parseBaggageMember(member)
			if !ok {
				continue
			}
			k, v = m.clip(strings.ToLower(k)), m.clip(v)
			if k == "" || v == "" {
				continue
			}
			out[k] = v
		}
	}

	prefix := strings.ToLower(m.cfg.BaggagePrefix)
	names := make([]string, 0, len(h))
	for name := range h {
		if len(name) > len(prefix) && strings.HasPrefix(strings.ToLower(name), prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		key := m.clip(strings.ToLower(name[len(prefix):]))
		value := m.clip(firstNonBlank(h[name]))
		if key == "" || value == "" {
			continue
		}
		if _, exists := out[key]; !exists && len(out) >= m.cfg.MaxBaggageEntries {
			continue
		}
		out[key] = value
	}

	return out
}

// parseBaggageMember parses "key=value;prop;prop". Properties are ignored
// and the value is percent-decoded.
func parseBaggageMember(member string) (string, string, bool) {
	if i := strings.IndexByte(member, ';'); i >= 0 {
		member = member[:i]
	}
	k, v, found := strings.Cut(member, "=")
	if !found {
		return "", "", false
	}
	k, v = strings.TrimSpace(k), strings.TrimSpace(v)
	if k == "" || v == "" {
		return "", "", false
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return "", "", false
	}
	return k, decoded, true
}

func formatBaggage(bag map[string]string) string {
	if len(bag) == 0 {
		return ""
	}
	keys := make([]string, 0, len(bag))
	for k := range bag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.PathEscape(k)+"="+url.PathEscape(bag[k]))
	}
	return strings.Join(parts, ",")
}

// parseTraceparent returns the trace-id of a W3C traceparent header.
func parseTraceparent(v string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) < 4 || !isHexByte(parts[0]) || parts[0] == "ff" {
		return "", false
	}
	if parts[0] == "00" && len(parts) != 4 {
		return "", false
	}
	traceID, err := trace.TraceIDFromHex(parts[1])
	if err != nil {
		return "", false
	}
	if _, err := trace.SpanIDFromHex(parts[2]); err != nil {
		return "", false
	}
	if !isHexByte(parts[3]) {
		return "", false
	}
	return traceID.String(), true
}

// isHexByte reports whether s is exactly two lowercase hex digits.
func isHexByte(s string) bool {
	if len(s) != 2 || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// formatTraceparent renders a traceparent when the correlation id maps onto
// a 16-byte trace id (a ULID, UUID or 32-hex id).
func formatTraceparent(correlationID, parentID string, sampled bool) (string, bool) {
	tb, ok := id.Bytes(correlationID)
	if !ok {
		return "", false
	}
	traceID := trace.TraceID(tb)
	if !traceID.IsValid() {
		return "", false
	}

	pb, ok := id.Bytes(parentID)
	if !ok {
		return "", false
	}
	var spanID trace.SpanID
	copy(spanID[:], pb[8:])
	if !spanID.IsValid() {
		return "", false
	}

	var flags trace.TraceFlags
	if sampled {
		flags = flags.WithSampled(true)
	}
	return fmt.Sprintf("00-%s-%s-%s", traceID, spanID, flags), true
}

func firstNonBlank(values []string) string {
	for _, v := range values {
		if !utils.IsBlank(v) {
			return v
		}
	}
	return ""
}

func setOrDelete(h http.Header, key, value string) {
	if value == "" {
		h.Del(key)
		return
	}
	h.Set(key, value)
}
