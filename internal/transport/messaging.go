package transport

import (
	"context"
	"sort"
	"strings"

	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
	"github.com/GriffinCanCode/scopectx/internal/shared/utils"
)

// Metadata key spellings in priority order. The first spelling is the one
// written on outbound messages.
var (
	CorrelationKeys = []string{"CorrelationId", "correlation-id", "X-Correlation-Id"}
	CausationKeys   = []string{"CausationId", "causation-id", "X-Causation-Id"}
	TenantKeys      = []string{"TenantId", "tenant-id", "X-Tenant-Id"}
	ProjectKeys     = []string{"ProjectId", "project-id", "X-Project-Id"}
)

// DefaultMessagingBaggagePrefix marks baggage entries in message metadata.
const DefaultMessagingBaggagePrefix = "baggage-"

// MessagingConfig configures a MessagingMapper. Zero values select defaults.
type MessagingConfig struct {
	MaxValueLength int
	BaggagePrefix  string
	IDs            id.Source
}

// MessagingMapper maps flat message metadata to scope values and back.
type MessagingMapper struct {
	cfg MessagingConfig
}

// NewMessagingMapper creates a messaging mapper.
func NewMessagingMapper(cfg MessagingConfig) *MessagingMapper {
	if cfg.MaxValueLength <= 0 {
		cfg.MaxValueLength = utils.DefaultMaxHeaderValueLength
	}
	if cfg.BaggagePrefix == "" {
		cfg.BaggagePrefix = DefaultMessagingBaggagePrefix
	}
	if cfg.IDs == nil {
		cfg.IDs = id.Default()
	}
	return &MessagingMapper{cfg: cfg}
}

// Extract reads scope values from md without generating anything. ok is
// false when md carries no correlation id; CorrelationID is then empty.
func (m *MessagingMapper) Extract(md map[string]string, cancel context.Context) (scope.InitValues, bool) {
	v := scope.InitValues{
		CorrelationID: m.lookup(md, CorrelationKeys),
		CausationID:   m.lookup(md, CausationKeys),
		TenantID:      m.lookup(md, TenantKeys),
		ProjectID:     m.lookup(md, ProjectKeys),
		Baggage:       m.extractBaggage(md),
		Cancellation:  cancel,
	}
	return v, v.CorrelationID != ""
}

// Initialize extracts values from md, generating a correlation id when
// none is present, and initializes c with them.
func (m *MessagingMapper) Initialize(c *scope.Context, md map[string]string, cancel context.Context) error {
	v, ok := m.Extract(md, cancel)
	if !ok {
		v.CorrelationID = m.cfg.IDs.NewID()
	}
	return c.InitializeFrom(v)
}

// Inject writes c into md using the canonical key spellings. Existing
// entries under other spellings are left alone.
func (m *MessagingMapper) Inject(md map[string]string, c *scope.Context) error {
	snap, err := c.Snapshot()
	if err != nil {
		return err
	}

	md[CorrelationKeys[0]] = snap.CorrelationID
	setIfPresent(md, CausationKeys[0], snap.CausationID)
	setIfPresent(md, TenantKeys[0], snap.TenantID)
	setIfPresent(md, ProjectKeys[0], snap.ProjectID)
	for k, v := range snap.Baggage {
		md[m.cfg.BaggagePrefix+k] = v
	}
	return nil
}

// lookup returns the first non-blank value under keys, trying exact
// spellings in order and then a case-insensitive pass in the same order.
func (m *MessagingMapper) lookup(md map[string]string, keys []string) string {
	for _, k := range keys {
		if v := m.clip(md[k]); v != "" {
			return v
		}
	}

	names := sortedKeys(md)
	for _, k := range keys {
		for _, name := range names {
			if strings.EqualFold(name, k) {
				if v := m.clip(md[name]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func (m *MessagingMapper) extractBaggage(md map[string]string) map[string]string {
	prefix := strings.ToLower(m.cfg.BaggagePrefix)
	out := make(map[string]string)
	for _, name := range sortedKeys(md) {
		if len(name) <= len(prefix) || !strings.HasPrefix(strings.ToLower(name), prefix) {
			continue
		}
		key := m.clip(name[len(prefix):])
		value := m.clip(md[name])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func (m *MessagingMapper) clip(s string) string {
	return strings.TrimSpace(utils.Truncate(s, m.cfg.MaxValueLength))
}

func sortedKeys(md map[string]string) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setIfPresent(md map[string]string, key, value string) {
	if value != "" {
		md[key] = value
	}
}
