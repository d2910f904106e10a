package tracker

import "math"

// SeedConfig holds the parameters of the combinatorial seeding stage.
type SeedConfig struct {
	// MinSize is the number of points per seed. Values of 2 or less are
	// rejected: a line through two points carries no residual information.
	MinSize int

	// CollapseTolerance is the space-time box used to merge nearby hits
	// before partitioning.
	CollapseTolerance Point

	// LayerAxis is the coordinate along which hits are bucketed into
	// detector layers.
	LayerAxis Coordinate

	// LayerInterval is the layer thickness along LayerAxis.
	LayerInterval float64

	// LineWidth is the maximum perpendicular distance an interior seed
	// point may sit from the line through the seed's endpoints.
	LineWidth float64
}

// DefaultSeedConfig returns seeding parameters for a layered detector
// read out along z.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		MinSize:           3,
		CollapseTolerance: Point{T: 2, X: 20, Y: 20, Z: 20},
		LayerAxis:         CoordinateZ,
		LayerInterval:     50,
		LineWidth:         50,
	}
}

// lineFits reports whether every interior point of the time-sorted
// tuple lies within threshold of the line through its endpoints.
func lineFits(points Event, threshold float64) bool {
	begin := points[0]
	end := points[len(points)-1]
	for _, p := range points[1 : len(points)-1] {
		if PointLineDistance(p, begin, end) > threshold {
			return false
		}
	}
	return true
}

// seedCapacity estimates the expected seed count for reserving output
// capacity, using Stirling's approximation of the layer-choice count.
// Heuristic only; clamped to keep pathological inputs from
// over-allocating.
func seedCapacity(size, n int) int {
	estimate := math.Pow(float64(size), float64(n)) / math.Pow(float64(n)/math.E, float64(n))
	if math.IsNaN(estimate) || estimate < 1 {
		return 1
	}
	if estimate > 1<<16 {
		return 1 << 16
	}
	return int(estimate)
}

// Seed enumerates candidate point tuples that approximately lie on a
// line. Hits are first collapsed and partitioned into layers; every way
// of choosing one point from each of MinSize distinct layers (layers in
// ascending order) forms a candidate, which is accepted when its
// interior points pass the linearity check after time sorting.
//
// Degenerate cases return empty results rather than errors: MinSize <= 2
// is rejected outright, and fewer layers than MinSize makes seeding
// infeasible for the given parameters. When the collapsed event is no
// larger than MinSize the whole event is returned as the only candidate.
//
// The enumeration is combinatorial in the per-layer occupancies; callers
// keep it tractable by bounding layer population through the collapse
// and partition tolerances.
func Seed(event Event, cfg SeedConfig) []Event {
	n := cfg.MinSize
	if n <= 2 {
		return nil
	}

	points := Collapse(event, cfg.CollapseTolerance)
	if len(points) == 0 {
		return nil
	}
	if len(points) <= n {
		return []Event{points}
	}

	layers := Partition(points, cfg.LayerInterval, cfg.LayerAxis).Layers
	if len(layers) < n {
		return nil
	}

	out := make([]Event, 0, seedCapacity(len(points), n))
	tuple := make(Event, 0, n)

	// Backtracking enumeration over per-layer choices: at each layer
	// either take one of its points or skip the layer, pruning branches
	// that cannot reach n picks.
	var choose func(layerIndex, remaining int)
	choose = func(layerIndex, remaining int) {
		if remaining == 0 {
			candidate := TimeSorted(tuple)
			if lineFits(candidate, cfg.LineWidth) {
				out = append(out, candidate)
			}
			return
		}
		if len(layers)-layerIndex < remaining {
			return
		}
		for _, p := range layers[layerIndex] {
			tuple = append(tuple, p)
			choose(layerIndex+1, remaining-1)
			tuple = tuple[:len(tuple)-1]
		}
		choose(layerIndex+1, remaining)
	}
	choose(0, n)

	return out
}
