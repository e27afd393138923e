package geometry

import (
	"fmt"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// Overrides holds operator-supplied geometry fields. A nil field keeps the
// reconciled value.
type Overrides struct {
	Cylinders *uint32
	Heads     *uint32
	Sectors   *uint32
}

// Any reports whether at least one field is overridden.
func (o Overrides) Any() bool {
	return o.Cylinders != nil || o.Heads != nil || o.Sectors != nil
}

// Apply replaces each overridden field independently.
func (o Overrides) Apply(g types.Geometry) types.Geometry {
	if o.Cylinders != nil {
		g.Cylinders = *o.Cylinders
	}
	if o.Heads != nil {
		g.Heads = *o.Heads
	}
	if o.Sectors != nil {
		g.SectorsPerTrack = *o.Sectors
	}
	return g
}

// Validate rejects a geometry with any zero field, or with heads or sectors
// beyond their address fields. Nothing may be created or written when it
// returns an error.
func Validate(g types.Geometry) error {
	var missing, exceeds []string
	if g.Cylinders == 0 {
		missing = append(missing, "cylinders")
	}
	if g.Heads == 0 {
		missing = append(missing, "heads")
	}
	if g.SectorsPerTrack == 0 {
		missing = append(missing, "sectors")
	}
	if g.Heads > types.MaxHeads {
		exceeds = append(exceeds, fmt.Sprintf("heads (%d > %d)", g.Heads, types.MaxHeads))
	}
	if g.SectorsPerTrack > types.MaxSectorsPerTrack {
		exceeds = append(exceeds, fmt.Sprintf("sectors (%d > %d)", g.SectorsPerTrack, types.MaxSectorsPerTrack))
	}
	if missing == nil && exceeds == nil {
		return nil
	}
	return &types.GeometryError{Geometry: g, Missing: missing, Exceeds: exceeds}
}
