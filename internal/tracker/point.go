// Package tracker reconstructs straight-line particle trajectories and
// decay vertices from timestamped 3D hits recorded by a segmented
// detector. The pipeline runs collapse (hit clustering), partition
// (layer bucketing), seed (combinatorial line candidates), join (seed
// merging) and finally maximum-likelihood track and vertex fits.
package tracker

import (
	"fmt"
	"math"
	"sort"
)

// Coordinate selects one axis of a space-time point.
type Coordinate int

const (
	CoordinateT Coordinate = iota
	CoordinateX
	CoordinateY
	CoordinateZ
)

// String returns the axis letter.
func (c Coordinate) String() string {
	switch c {
	case CoordinateT:
		return "T"
	case CoordinateX:
		return "X"
	case CoordinateY:
		return "Y"
	case CoordinateZ:
		return "Z"
	}
	return fmt.Sprintf("Coordinate(%d)", int(c))
}

// ParseCoordinate converts an axis letter ("t", "X", ...) to a Coordinate.
func ParseCoordinate(s string) (Coordinate, error) {
	switch s {
	case "t", "T":
		return CoordinateT, nil
	case "x", "X":
		return CoordinateX, nil
	case "y", "Y":
		return CoordinateY, nil
	case "z", "Z":
		return CoordinateZ, nil
	}
	return 0, fmt.Errorf("unknown coordinate %q", s)
}

// Point is a space-time point: time plus three spatial coordinates.
// Points are immutable values; the arithmetic methods return new points.
type Point struct {
	T, X, Y, Z float64
}

// Add returns the component-wise sum p + q.
func (p Point) Add(q Point) Point {
	return Point{p.T + q.T, p.X + q.X, p.Y + q.Y, p.Z + q.Z}
}

// Sub returns the component-wise difference p - q.
func (p Point) Sub(q Point) Point {
	return Point{p.T - q.T, p.X - q.X, p.Y - q.Y, p.Z - q.Z}
}

// Div returns the point scaled by 1/s.
func (p Point) Div(s float64) Point {
	return Point{p.T / s, p.X / s, p.Y / s, p.Z / s}
}

// Component returns the value along the given axis.
func (p Point) Component(c Coordinate) float64 {
	switch c {
	case CoordinateT:
		return p.T
	case CoordinateX:
		return p.X
	case CoordinateY:
		return p.Y
	case CoordinateZ:
		return p.Z
	}
	return math.NaN()
}

// Less imposes a total order by time, then x, y, z. Used for
// deduplication and deterministic output ordering.
func (p Point) Less(q Point) bool {
	if p.T != q.T {
		return p.T < q.T
	}
	if p.X != q.X {
		return p.X < q.X
	}
	if p.Y != q.Y {
		return p.Y < q.Y
	}
	return p.Z < q.Z
}

// String renders the point as "(t, x, y, z)".
func (p Point) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", p.T, p.X, p.Y, p.Z)
}

// Event is an ordered sequence of points. Sortedness by the declared
// key (time or a partition axis) holds within each pipeline stage.
type Event []Point

// Copy returns an independent copy of the event.
func (e Event) Copy() Event {
	return append(Event(nil), e...)
}

// Mean returns the coordinate-wise average of the event, or the zero
// point for an empty event.
func Mean(e Event) Point {
	if len(e) == 0 {
		return Point{}
	}
	var sum Point
	for _, p := range e {
		sum = sum.Add(p)
	}
	return sum.Div(float64(len(e)))
}

// SortByTime sorts the event in place by time (ties broken by x, y, z)
// and returns it.
func SortByTime(e Event) Event {
	sort.Slice(e, func(i, j int) bool { return e[i].Less(e[j]) })
	return e
}

// TimeSorted returns a time-sorted copy of the event.
func TimeSorted(e Event) Event {
	return SortByTime(e.Copy())
}

// TimeNormalize returns a time-sorted copy of the event with the
// earliest time shifted to zero.
func TimeNormalize(e Event) Event {
	if len(e) == 0 {
		return nil
	}
	out := TimeSorted(e)
	t0 := out[0].T
	for i := range out {
		out[i].T -= t0
	}
	return out
}

// sortedByComponent returns a stable copy sort of the event along the
// given axis. Stability keeps the time order of equal-axis points.
func sortedByComponent(e Event, c Coordinate) Event {
	out := e.Copy()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Component(c) < out[j].Component(c)
	})
	return out
}

// withinSpace reports whether q lies inside the spatial tolerance box
// ds centered on p. Time is handled separately by the collapse window.
func withinSpace(p, q, ds Point) bool {
	return math.Abs(q.X-p.X) <= ds.X &&
		math.Abs(q.Y-p.Y) <= ds.Y &&
		math.Abs(q.Z-p.Z) <= ds.Z
}

// PointLineDistance returns the perpendicular spatial distance from p
// to the line through a and b. A degenerate (zero-length) line falls
// back to the point-to-point distance.
func PointLineDistance(p, a, b Point) float64 {
	dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	length := math.Sqrt(dx*dx + dy*dy + dz*dz)
	px, py, pz := p.X-a.X, p.Y-a.Y, p.Z-a.Z
	if length == 0 {
		return math.Sqrt(px*px + py*py + pz*pz)
	}
	// |(p-a) x (b-a)| / |b-a|
	cx := py*dz - pz*dy
	cy := pz*dx - px*dz
	cz := px*dy - py*dx
	return math.Sqrt(cx*cx+cy*cy+cz*cz) / length
}
