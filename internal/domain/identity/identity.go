// Package identity holds the process identity established once at startup
// and the data-driven catalog of nodes this process knows how to reach.
package identity

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/scopectx/internal/shared/utils"
)

// ErrInvalidIdentity is returned when an identity field is blank or malformed.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity identifies the running process. It is a value type and never
// changes after New returns.
type Identity struct {
	NodeID      string `json:"node_id" yaml:"node_id" toml:"node_id"`
	StudioID    string `json:"studio_id" yaml:"studio_id" toml:"studio_id"`
	Environment string `json:"environment" yaml:"environment" toml:"environment"`
}

// New validates and returns an Identity.
func New(nodeID, studioID, environment string) (Identity, error) {
	id := Identity{NodeID: nodeID, StudioID: studioID, Environment: environment}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks that all three fields are well-formed kebab-case identifiers.
func (i Identity) Validate() error {
	fields := []struct{ name, value string }{
		{"node_id", i.NodeID},
		{"studio_id", i.StudioID},
		{"environment", i.Environment},
	}
	for _, f := range fields {
		if err := utils.ValidateKebab(f.value, f.name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
		}
	}
	return nil
}

// WithNode returns a copy of i addressed to another node of the same studio.
func (i Identity) WithNode(nodeID string) (Identity, error) {
	return New(nodeID, i.StudioID, i.Environment)
}

// String renders the identity as studio/environment/node.
func (i Identity) String() string {
	return fmt.Sprintf("%s/%s/%s", i.StudioID, i.Environment, i.NodeID)
}
