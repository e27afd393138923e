// Package geometry reconciles the drive parameter table and the device
// identify query into one authoritative CHS geometry.
package geometry

import (
	"fmt"

	"github.com/deploymenttheory/go-rawimage/internal/interfaces"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// CylinderTolerance is the largest table/identify cylinder difference that is
// not reported. The table commonly counts one extra landing-zone cylinder.
const CylinderTolerance = 1

// Result is a reconciled geometry together with the raw readings it came from.
type Result struct {
	Geometry     types.Geometry    `json:"geometry" yaml:"geometry"`
	Disagreement bool              `json:"disagreement" yaml:"disagreement"`
	Warnings     []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Table        types.RawGeometry `json:"table" yaml:"table"`
	Identify     types.RawGeometry `json:"identify" yaml:"identify"`
	TableErr     string            `json:"table_error,omitempty" yaml:"table_error,omitempty"`
}

// Reconcile reads both channels and merges them. Sectors per track always
// come from identify; cylinders and heads come from the table. An identify
// failure is fatal. A table failure falls back to identify and is flagged.
func Reconcile(table interfaces.GeometryTable, ident interfaces.DeviceIdentifier) (*Result, error) {
	id, err := ident.IdentifyGeometry()
	if err != nil {
		return nil, &types.GeometryError{Cause: fmt.Errorf("identify query: %w", err)}
	}

	res := &Result{
		Identify: id,
		Geometry: types.Geometry{
			Cylinders:       id.Cylinders,
			Heads:           id.Heads,
			SectorsPerTrack: id.SectorsPerTrack,
		},
	}

	tbl, err := table.TableGeometry()
	if err != nil {
		res.TableErr = err.Error()
		res.flag("parameter table unavailable (%v); using identify CHS %d,%d unverified", err, id.Cylinders, id.Heads)
		return res, nil
	}
	res.Table = tbl

	if absDiff(tbl.Cylinders, id.Cylinders) > CylinderTolerance {
		res.flag("%s cyls: %d; %s cyls: %d", sourceName(tbl, "table"), tbl.Cylinders, sourceName(id, "identify"), id.Cylinders)
	}
	res.Geometry.Cylinders = tbl.Cylinders

	if tbl.Heads != id.Heads {
		res.flag("%s heads: %d; %s heads: %d", sourceName(tbl, "table"), tbl.Heads, sourceName(id, "identify"), id.Heads)
		res.Geometry.Heads = tbl.Heads
	}

	return res, nil
}

func (r *Result) flag(format string, args ...interface{}) {
	r.Disagreement = true
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func sourceName(g types.RawGeometry, fallback string) string {
	if g.Source != "" {
		return g.Source
	}
	return fallback
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
