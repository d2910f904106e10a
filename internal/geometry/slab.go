// Package geometry provides detector-geometry implementations of the
// tracker's query surface. The production experiment resolves volumes
// from an imported geometry description; this package carries the
// in-memory implementations used by the CLI and by tests.
package geometry

import (
	"fmt"
	"math"

	"github.com/alig146/tracker/internal/tracker"
	"github.com/alig146/tracker/internal/units"
)

// SlabConfig describes a detector built from horizontal slabs stacked
// along z, each spanning the full x/y aperture.
type SlabConfig struct {
	// Z0 is the bottom of the lowest slab.
	Z0 float64

	// Thickness is the slab extent along z.
	Thickness float64

	// HalfX and HalfY are the slab half-apertures around x = y = 0.
	HalfX float64
	HalfY float64

	// TimeResolution is the per-slab timing uncertainty.
	TimeResolution float64
}

// DefaultSlabConfig returns a ten-layer style stack with 10 mm slabs
// and a 1 ns timing resolution.
func DefaultSlabConfig() SlabConfig {
	return SlabConfig{
		Z0:             -5 * units.Length,
		Thickness:      10 * units.Length,
		HalfX:          500 * units.Length,
		HalfY:          500 * units.Length,
		TimeResolution: 1 * units.Time,
	}
}

// SlabGeometry maps points to slab volumes by their z coordinate.
// It is immutable and safe for concurrent use.
type SlabGeometry struct {
	config SlabConfig
}

// NewSlabGeometry builds a slab geometry; zero or negative thickness
// falls back to the default.
func NewSlabGeometry(config SlabConfig) *SlabGeometry {
	if config.Thickness <= 0 {
		config = DefaultSlabConfig()
	}
	return &SlabGeometry{config: config}
}

// Volume names the slab containing the point, e.g. "slab3". Points
// below the stack map to slab indices of zero or less; the mapping is
// stable everywhere so out-of-acceptance hits still resolve
// consistently.
func (g *SlabGeometry) Volume(p tracker.Point) string {
	index := int(math.Floor((p.Z - g.config.Z0) / g.config.Thickness))
	return fmt.Sprintf("slab%d", index)
}

// LimitsOf returns the bounding box of a named slab. Unknown names
// yield the box of slab zero.
func (g *SlabGeometry) LimitsOf(name string) tracker.BoxVolume {
	var index int
	fmt.Sscanf(name, "slab%d", &index)

	minZ := g.config.Z0 + float64(index)*g.config.Thickness
	maxZ := minZ + g.config.Thickness
	return tracker.BoxVolume{
		Center: tracker.Point{X: 0, Y: 0, Z: minZ + g.config.Thickness/2},
		Min:    tracker.Point{X: -g.config.HalfX, Y: -g.config.HalfY, Z: minZ},
		Max:    tracker.Point{X: g.config.HalfX, Y: g.config.HalfY, Z: maxZ},
	}
}

// TimeResolutionOf returns the uniform slab timing resolution.
func (g *SlabGeometry) TimeResolutionOf(string) float64 {
	return g.config.TimeResolution
}

// Verify at compile time that *SlabGeometry implements tracker.Geometry.
var _ tracker.Geometry = (*SlabGeometry)(nil)
