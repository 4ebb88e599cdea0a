package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/scopectx/internal/shared/utils"
)

// ErrUnknownNode is returned when a node id is not in the registry.
var ErrUnknownNode = errors.New("unknown node")

// Node describes one reachable node in the studio.
type Node struct {
	ID             string `json:"id" yaml:"id" toml:"id"`
	Sector         string `json:"sector,omitempty" yaml:"sector" toml:"sector"`
	Description    string `json:"description,omitempty" yaml:"description" toml:"description"`
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url" toml:"base_url"`
	HealthURL      string `json:"health_url,omitempty" yaml:"health_url" toml:"health_url"`
	GRPCHealthAddr string `json:"grpc_health_addr,omitempty" yaml:"grpc_health_addr" toml:"grpc_health_addr"`
	// Critical nodes report Unhealthy when their probe fails; others report Degraded.
	Critical bool `json:"critical" yaml:"critical" toml:"critical"`
}

// Format is the registry file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

type registryFile struct {
	Nodes []Node `yaml:"nodes" toml:"nodes"`
}

// Registry is the immutable catalog of known nodes, loaded once at startup.
type Registry struct {
	nodes map[string]Node
	order []string
}

// NewRegistry builds a registry from nodes, rejecting duplicates and
// malformed ids.
func NewRegistry(nodes ...Node) (*Registry, error) {
	r := &Registry{nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		if err := utils.ValidateKebab(n.ID, "node id"); err != nil {
			return nil, fmt.Errorf("invalid registry entry: %w", err)
		}
		if _, dup := r.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate registry entry %q", n.ID)
		}
		r.nodes[n.ID] = n
		r.order = append(r.order, n.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// LoadRegistry reads a registry file; the format follows the extension
// (.yaml, .yml or .toml).
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".toml":
		format = FormatTOML
	default:
		return nil, fmt.Errorf("unsupported registry extension %q", filepath.Ext(path))
	}

	return ParseRegistry(data, format)
}

// ParseRegistry decodes registry data in the given format.
func ParseRegistry(data []byte, format Format) (*Registry, error) {
	var file registryFile
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML registry: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML registry: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported registry format %q", format)
	}
	return NewRegistry(file.Nodes...)
}

// Lookup returns the node with the given id.
func (r *Registry) Lookup(id string) (Node, error) {
	if r == nil {
		return Node{}, fmt.Errorf("%w: %q (no registry loaded)", ErrUnknownNode, id)
	}
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	return n, nil
}

// Contains reports whether id is a known node.
func (r *Registry) Contains(id string) bool {
	if r == nil {
		return false
	}
	_, ok := r.nodes[id]
	return ok
}

// Nodes returns all nodes ordered by id.
func (r *Registry) Nodes() []Node {
	if r == nil {
		return nil
	}
	out := make([]Node, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.nodes[id])
	}
	return out
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.nodes)
}
