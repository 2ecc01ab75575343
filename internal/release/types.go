// Package release defines the Release data model shared by the Release
// Store and the Release Controller.
package release

import (
	"time"

	"github.com/hashmap-kz/shipctl/internal/manifest"
)

// State enumerates a Release's lifecycle position.
type State string

const (
	StatePendingInstall  State = "Pending-Install"
	StateDeployed        State = "Deployed"
	StatePendingUpgrade  State = "Pending-Upgrade"
	StatePendingRollback State = "Pending-Rollback"
	StateSuperseded      State = "Superseded"
	StateFailed          State = "Failed"
	StateUninstalling    State = "Uninstalling"
	StateUninstalled     State = "Uninstalled"
)

// IsTerminal reports whether s is a terminal state (no further automatic
// transitions happen from it).
func (s State) IsTerminal() bool {
	switch s {
	case StateDeployed, StateSuperseded, StateFailed, StateUninstalled:
		return true
	default:
		return false
	}
}

// IsPending reports whether s is one of the non-terminal Pending-* states
// the Recover operation looks for, so in-flight operations stay serialized.
func (s State) IsPending() bool {
	switch s {
	case StatePendingInstall, StatePendingUpgrade, StatePendingRollback, StateUninstalling:
		return true
	default:
		return false
	}
}

// ValuesLayer is one layer of values provenance: a named source and the
// snapshot of values it contributed.
type ValuesLayer struct {
	Source   string
	Snapshot map[string]interface{}
}

// Release is a single immutable (once out of Pending-*) revision of a named
// release in a namespace. Identity is (Name, Namespace, Revision).
type Release struct {
	Name        string
	Namespace   string
	Revision    int
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Description string

	ValuesSnapshot   map[string]interface{}
	ValuesProvenance []ValuesLayer

	Manifests []*manifest.Manifest

	PackRef       string
	EngineVersion string
}

// Summary is the compact view returned by List/History, avoiding the cost of
// decoding every revision's full manifest set.
type Summary struct {
	Name        string
	Namespace   string
	Revision    int
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Description string
}

func (r *Release) Summary() Summary {
	return Summary{
		Name:        r.Name,
		Namespace:   r.Namespace,
		Revision:    r.Revision,
		State:       r.State,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Description: r.Description,
	}
}
