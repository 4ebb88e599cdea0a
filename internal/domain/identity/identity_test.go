package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		node        string
		studio      string
		environment string
		wantErr     bool
	}{
		{"valid", "billing-api", "acme", "production", false},
		{"blank node", " ", "acme", "production", true},
		{"blank studio", "billing-api", "", "production", true},
		{"blank environment", "billing-api", "acme", "", true},
		{"uppercase", "Billing", "acme", "production", true},
		{"underscore", "billing_api", "acme", "production", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := New(tt.node, tt.studio, tt.environment)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidIdentity)
				assert.Equal(t, Identity{}, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.node, id.NodeID)
			assert.Equal(t, "acme/production/billing-api", id.String())
		})
	}
}

func TestWithNode(t *testing.T) {
	id, err := New("billing-api", "acme", "staging")
	require.NoError(t, err)

	other, err := id.WithNode("ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger", other.NodeID)
	assert.Equal(t, "acme", other.StudioID)
	assert.Equal(t, "billing-api", id.NodeID, "original is unchanged")

	_, err = id.WithNode("")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

const yamlRegistry = `
nodes:
  - id: ledger
    sector: finance
    base_url: http://ledger:8000
    health_url: http://ledger:8000/health
    critical: true
  - id: mailer
    sector: comms
    grpc_health_addr: mailer:50051
`

const tomlRegistry = `
[[nodes]]
id = "ledger"
sector = "finance"
base_url = "http://ledger:8000"
health_url = "http://ledger:8000/health"
critical = true

[[nodes]]
id = "mailer"
sector = "comms"
grpc_health_addr = "mailer:50051"
`

func TestParseRegistry(t *testing.T) {
	for _, tc := range []struct {
		format Format
		data   string
	}{
		{FormatYAML, yamlRegistry},
		{FormatTOML, tomlRegistry},
	} {
		t.Run(string(tc.format), func(t *testing.T) {
			reg, err := ParseRegistry([]byte(tc.data), tc.format)
			require.NoError(t, err)

			assert.Equal(t, 2, reg.Len())
			assert.True(t, reg.Contains("ledger"))
			assert.False(t, reg.Contains("unknown"))

			ledger, err := reg.Lookup("ledger")
			require.NoError(t, err)
			assert.Equal(t, "finance", ledger.Sector)
			assert.Equal(t, "http://ledger:8000/health", ledger.HealthURL)
			assert.True(t, ledger.Critical)

			mailer, err := reg.Lookup("mailer")
			require.NoError(t, err)
			assert.Equal(t, "mailer:50051", mailer.GRPCHealthAddr)
			assert.False(t, mailer.Critical)

			nodes := reg.Nodes()
			require.Len(t, nodes, 2)
			assert.Equal(t, "ledger", nodes[0].ID)
			assert.Equal(t, "mailer", nodes[1].ID)
		})
	}
}

func TestRegistryErrors(t *testing.T) {
	_, err := NewRegistry(Node{ID: "a"}, Node{ID: "a"})
	assert.Error(t, err)

	_, err = NewRegistry(Node{ID: "Not Kebab"})
	assert.Error(t, err)

	_, err = ParseRegistry([]byte("nodes: ["), FormatYAML)
	assert.Error(t, err)

	_, err = ParseRegistry([]byte("{}"), Format("json"))
	assert.Error(t, err)

	reg, err := NewRegistry()
	require.NoError(t, err)
	_, err = reg.Lookup("ghost")
	assert.ErrorIs(t, err, ErrUnknownNode)

	var nilReg *Registry
	assert.False(t, nilReg.Contains("x"))
	assert.Empty(t, nilReg.Nodes())
	_, err = nilReg.Lookup("x")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "nodes.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlRegistry), 0o600))
	reg, err := LoadRegistry(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	tomlPath := filepath.Join(dir, "nodes.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(tomlRegistry), 0o600))
	reg, err = LoadRegistry(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	badExt := filepath.Join(dir, "nodes.ini")
	require.NoError(t, os.WriteFile(badExt, []byte(""), 0o600))
	_, err = LoadRegistry(badExt)
	assert.Error(t, err)

	_, err = LoadRegistry(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
