package tracker

// BoxVolume is the axis-aligned spatial extent of a detector volume.
// Only the spatial components of the points are meaningful.
type BoxVolume struct {
	Center Point
	Min    Point
	Max    Point
}

// Geometry is the narrow detector-geometry query surface the fitters
// consume. Implementations must be stable (the same physical region
// always maps to the same volume name) and safe for concurrent readers;
// the fitters never mutate geometry.
type Geometry interface {
	// Volume maps a space-time point to the name of its enclosing
	// detector volume.
	Volume(p Point) string

	// LimitsOf returns the bounding box of a named volume. The box
	// extents drive the uniform-distribution spatial variance model.
	LimitsOf(name string) BoxVolume

	// TimeResolutionOf returns the timing uncertainty of a named
	// volume, falling back to the detector default when the volume has
	// no specific resolution.
	TimeResolutionOf(name string) float64
}
