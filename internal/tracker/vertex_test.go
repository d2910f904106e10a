package tracker

import (
	"fmt"
	"math"
	"testing"
)

// testVoxels is a finely segmented stub detector: 1 mm cells in x and
// y, 10 mm slabs in z. Unlike testSlabs it preserves transverse hit
// positions through the volume centers, which vertexing needs.
type testVoxels struct{}

func (testVoxels) Volume(p Point) string {
	return fmt.Sprintf("vox_%d_%d_%d",
		int(math.Floor(p.X)), int(math.Floor(p.Y)), int(math.Floor((p.Z+5)/10)))
}

func (testVoxels) LimitsOf(name string) BoxVolume {
	var i, j, k int
	fmt.Sscanf(name, "vox_%d_%d_%d", &i, &j, &k)
	min := Point{X: float64(i), Y: float64(j), Z: -5 + float64(k)*10}
	max := Point{X: min.X + 1, Y: min.Y + 1, Z: min.Z + 10}
	return BoxVolume{Center: min.Add(max).Div(2), Min: min, Max: max}
}

func (testVoxels) TimeResolutionOf(string) float64 { return 1 }

var _ Geometry = testVoxels{}

// crossingTracks fits two tracks that extrapolate back toward the
// origin with a small miss distance in y, so the vertex objective has a
// smooth well-defined minimum near (0, 0, 0, 0).
func crossingTracks(t *testing.T) []*Track {
	t.Helper()
	a := Event{
		{T: 1, X: 5, Y: 1, Z: 10},
		{T: 2, X: 10, Y: 1, Z: 20},
		{T: 3, X: 15, Y: 1, Z: 30},
		{T: 4, X: 20, Y: 1, Z: 40},
	}
	b := Event{
		{T: 1, X: -5, Y: -1, Z: 10},
		{T: 2, X: -10, Y: -1, Z: 20},
		{T: 3, X: -15, Y: -1, Z: 30},
		{T: 4, X: -20, Y: -1, Z: 40},
	}

	tracks := FitSeeds([]Event{a, b}, DefaultFitSettings(), testVoxels{})
	if len(tracks) != 2 {
		t.Fatalf("expected 2 fitted tracks, got %d", len(tracks))
	}
	for i, track := range tracks {
		if !track.Converged() {
			t.Fatalf("track %d did not converge", i)
		}
	}
	return tracks
}

func TestVertexDefaultState(t *testing.T) {
	v := NewVertex(nil)
	if v.Size() != 0 {
		t.Errorf("size = %d, want 0", v.Size())
	}
	if v.FitDiverged() {
		t.Error("a vertex that never fit should not report divergence")
	}
	if v.Point() != (Point{}) {
		t.Errorf("point = %v, want zero", v.Point())
	}
	if v.ChiSquared() != 0 {
		t.Errorf("chi2 = %g, want 0", v.ChiSquared())
	}
	if v.CovarianceMatrix() != ([16]float64{}) {
		t.Error("covariance should be zero valued")
	}
}

func TestVertexSingleTrack(t *testing.T) {
	tracks := crossingTracks(t)
	v := NewVertex(tracks[:1])
	if v.Size() != 1 {
		t.Errorf("size = %d, want 1", v.Size())
	}
	if v.FitDiverged() {
		t.Error("a single-track vertex is unfit, not diverged")
	}
	if v.Point() != (Point{}) {
		t.Errorf("single-track vertex should stay at defaults, got %v", v.Point())
	}
}

func TestVertexFitConverges(t *testing.T) {
	v := NewVertex(crossingTracks(t))
	if v.Size() != 2 {
		t.Fatalf("size = %d, want 2", v.Size())
	}
	if v.FitDiverged() {
		t.Fatal("vertex fit diverged")
	}

	guess := v.GuessParameters()
	for _, p := range guess {
		if p.Error <= 0 {
			t.Errorf("guess parameter %s has non-positive error %g", p.Name, p.Error)
		}
	}

	point := v.Point()
	if math.Abs(point.X) > 3 {
		t.Errorf("vertex x = %g, want ~0", point.X)
	}
	if math.Abs(point.Y) > 2 {
		t.Errorf("vertex y = %g, want ~0", point.Y)
	}
	if math.Abs(point.T) > 3 {
		t.Errorf("vertex t = %g, want ~0", point.T)
	}
	if math.Abs(point.Z) > 25 {
		t.Errorf("vertex z = %g, want ~0", point.Z)
	}

	if v.DegreesOfFreedom() != 4 {
		t.Errorf("dof = %d, want 4", v.DegreesOfFreedom())
	}
	if got := v.ChiSquared(); got < 0 || math.IsNaN(got) {
		t.Errorf("chi2 = %g, want finite and non-negative", got)
	}

	distances := v.Distances()
	errors := v.DistanceErrors()
	if len(distances) != 2 || len(errors) != 2 {
		t.Fatalf("expected per-track distances and errors of length 2")
	}
	for i := range distances {
		if distances[i] < 0 || math.IsNaN(distances[i]) {
			t.Errorf("distance %d = %g", i, distances[i])
		}
		if errors[i] <= 0 {
			t.Errorf("distance error %d = %g, want positive", i, errors[i])
		}
	}
}

func TestVertexGuessUsesExtrapolationErrors(t *testing.T) {
	tracks := crossingTracks(t)
	guess := guessVertex(tracks)

	// Spatial guess errors come from each track's covariance-propagated
	// position error at its front time, not from the volume box extents.
	axes := []struct {
		name      string
		component func(Point) float64
		got       float64
	}{
		{"x", func(p Point) float64 { return p.X }, guess.x.Error},
		{"y", func(p Point) float64 { return p.Y }, guess.y.Error},
		{"z", func(p Point) float64 { return p.Z }, guess.z.Error},
	}
	for _, axis := range axes {
		errors := make([]float64, len(tracks))
		for i, track := range tracks {
			extrapolated := track.ErrorAtTime(track.Event()[0].T)
			errors[i] = uniformError(axis.component(extrapolated))
		}
		want := propagateAverage(errors)
		if math.Abs(axis.got-want) > 1e-12 {
			t.Errorf("guess %s error = %g, want %g", axis.name, axis.got, want)
		}
	}

	// The time error still comes from the front volume's resolution
	// (1 ns per track in this detector).
	wantT := propagateAverage([]float64{1, 1})
	if math.Abs(guess.t.Error-wantT) > 1e-12 {
		t.Errorf("guess t error = %g, want %g", guess.t.Error, wantT)
	}
}

func TestVertexExactIntersection(t *testing.T) {
	a := Event{
		{T: 1, X: 5, Y: 5, Z: 10},
		{T: 2, X: 10, Y: 10, Z: 20},
		{T: 3, X: 15, Y: 15, Z: 30},
		{T: 4, X: 20, Y: 20, Z: 40},
	}
	b := Event{
		{T: 1, X: -5, Y: -5, Z: 10},
		{T: 2, X: -10, Y: -10, Z: 20},
		{T: 3, X: -15, Y: -15, Z: 30},
		{T: 4, X: -20, Y: -20, Z: 40},
	}
	tracks := FitSeeds([]Event{a, b}, DefaultFitSettings(), testVoxels{})
	if len(tracks) != 2 {
		t.Fatalf("expected 2 fitted tracks, got %d", len(tracks))
	}
	for i, track := range tracks {
		if !track.Converged() {
			t.Fatalf("track %d did not converge", i)
		}
	}

	// Both tracks pass through a common space-time point; the error
	// matrix may be unextractable at the cusp, but the fit itself
	// converges and must not be reported as diverged.
	v := NewVertex(tracks)
	if v.Size() != 2 {
		t.Fatalf("vertex size = %d, want 2", v.Size())
	}
	if v.FitDiverged() {
		t.Fatal("exactly intersecting tracks must not report divergence")
	}

	point := v.Point()
	if math.Abs(point.T) > 1.5 {
		t.Errorf("vertex t = %g, want ~0", point.T)
	}
	if math.Abs(point.X) > 3 || math.Abs(point.Y) > 3 {
		t.Errorf("vertex at (%g, %g), want near the axis", point.X, point.Y)
	}
	if math.Abs(point.Z) > 15 {
		t.Errorf("vertex z = %g, want ~0", point.Z)
	}

	for i, d := range v.Distances() {
		if d > 2 || math.IsNaN(d) {
			t.Errorf("distance %d = %g, want near zero", i, d)
		}
	}
	for i, chi2 := range v.ChiSquaredVector() {
		if math.IsNaN(chi2) || chi2 < 0 {
			t.Errorf("chi2 contribution %d = %g", i, chi2)
		}
	}
}

func TestVertexDivergenceSnapshot(t *testing.T) {
	tracks := crossingTracks(t)
	settings := DefaultFitSettings()
	settings.MaxIterations = 1 // trip the iteration limit

	v := NewVertexWithSettings(tracks, settings)
	if v.Size() != 2 {
		t.Fatalf("vertex size = %d, want 2", v.Size())
	}
	if !v.FitDiverged() {
		t.Fatal("expected divergence under a one-iteration budget")
	}

	// The guess survives for diagnostics.
	guess := v.GuessParameters()
	if guess[0].Value == 0 {
		t.Error("guess parameters should be retained on divergence")
	}
	for _, p := range guess {
		if p.Error <= 0 {
			t.Errorf("guess parameter %s has non-positive error %g", p.Name, p.Error)
		}
	}

	// Final parameters and covariance revert to their defaults.
	if v.Point() != (Point{}) {
		t.Errorf("final point = %v, want zero", v.Point())
	}
	if v.PointError() != (Point{}) {
		t.Errorf("final point error = %v, want zero", v.PointError())
	}
	if v.CovarianceMatrix() != ([16]float64{}) {
		t.Error("covariance should be zero valued on divergence")
	}
	if v.ChiSquared() != 0 {
		t.Errorf("chi2 = %g, want 0 on divergence", v.ChiSquared())
	}
}

func TestVertexCoordinateAccessors(t *testing.T) {
	v := NewVertex(crossingTracks(t))
	if v.FitDiverged() {
		t.Fatal("vertex fit diverged")
	}

	point := v.Point()
	if v.Value(CoordinateT) != point.T || v.Value(CoordinateX) != point.X ||
		v.Value(CoordinateY) != point.Y || v.Value(CoordinateZ) != point.Z {
		t.Error("Value accessors disagree with Point")
	}

	pointError := v.PointError()
	if v.Error(CoordinateX) != pointError.X {
		t.Error("Error accessor disagrees with PointError")
	}
}

func TestVertexCovarianceSymmetry(t *testing.T) {
	v := NewVertex(crossingTracks(t))
	if v.FitDiverged() {
		t.Fatal("vertex fit diverged")
	}

	matrix := v.CovarianceMatrix()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if matrix[4*i+j] != matrix[4*j+i] {
				t.Errorf("covariance not symmetric at (%d, %d)", i, j)
			}
		}
	}
	coords := []Coordinate{CoordinateT, CoordinateX, CoordinateY, CoordinateZ}
	for i, p := range coords {
		if got := v.Variance(p); got != matrix[4*i+i] {
			t.Errorf("Variance(%v) = %g, want %g", p, got, matrix[4*i+i])
		}
	}
}

func TestVertexInsertDuplicate(t *testing.T) {
	tracks := crossingTracks(t)
	v := NewVertex(tracks)
	if got := v.Insert(tracks[0]); got != 2 {
		t.Errorf("inserting a duplicate changed size to %d", got)
	}
}

func TestVertexInsertGrows(t *testing.T) {
	tracks := crossingTracks(t)
	v := NewVertex(tracks[:1])
	if got := v.Insert(tracks[1]); got != 2 {
		t.Fatalf("size after insert = %d, want 2", got)
	}
	if v.FitDiverged() {
		t.Error("vertex fit diverged after insert")
	}
}

func TestVertexRemove(t *testing.T) {
	tracks := crossingTracks(t)
	v := NewVertex(tracks)

	if got := v.Remove(-1); got != 2 {
		t.Errorf("negative index should be a no-op, size = %d", got)
	}
	if got := v.Remove(5); got != 2 {
		t.Errorf("out-of-range index should be a no-op, size = %d", got)
	}
	if got := v.Remove(1); got != 1 {
		t.Errorf("size after remove = %d, want 1", got)
	}
	// Back to the unfit single-track state.
	if v.Point() != (Point{}) {
		t.Errorf("single-track vertex should reset to defaults, got %v", v.Point())
	}
}

func TestVertexRemoveAll(t *testing.T) {
	tracks := crossingTracks(t)
	v := NewVertex(tracks)

	if got := v.RemoveAll([]int{-2, 7}); got != 2 {
		t.Errorf("all-invalid indices should be a no-op, size = %d", got)
	}
	if got := v.RemoveAll([]int{0, 0, 1}); got != 0 {
		t.Errorf("size after removing everything = %d, want 0", got)
	}
}

func TestVertexPruneKeepsGoodTracks(t *testing.T) {
	v := NewVertex(crossingTracks(t))
	if v.FitDiverged() {
		t.Fatal("vertex fit diverged")
	}
	if got := v.PruneOnChiSquared(math.Inf(1)); got != 2 {
		t.Errorf("infinite threshold should prune nothing, size = %d", got)
	}
}
