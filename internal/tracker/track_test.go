package tracker

import (
	"fmt"
	"math"
	"testing"
)

// testSlabs mirrors the slab detector used by the CLI: 10 mm slabs
// stacked along z from -5, full 500 mm half-apertures, 1 ns timing.
// Defined locally because the geometry package imports this one.
type testSlabs struct{}

func (testSlabs) Volume(p Point) string {
	return fmt.Sprintf("slab%d", int(math.Floor((p.Z+5)/10)))
}

func (testSlabs) LimitsOf(name string) BoxVolume {
	var index int
	fmt.Sscanf(name, "slab%d", &index)
	minZ := -5 + float64(index)*10
	return BoxVolume{
		Center: Point{Z: minZ + 5},
		Min:    Point{X: -500, Y: -500, Z: minZ},
		Max:    Point{X: 500, Y: 500, Z: minZ + 10},
	}
}

func (testSlabs) TimeResolutionOf(string) float64 { return 1 }

var _ Geometry = testSlabs{}

func TestNewTrackValidation(t *testing.T) {
	short := lineEvent()[:2]
	if _, err := NewTrack(short, DefaultFitSettings(), testSlabs{}); err == nil {
		t.Error("expected error for a two-point seed")
	}
	if _, err := NewTrack(lineEvent(), DefaultFitSettings(), nil); err == nil {
		t.Error("expected error for nil geometry")
	}
}

func TestTrackFitPerfectLine(t *testing.T) {
	track, err := NewTrack(lineEvent(), DefaultFitSettings(), testSlabs{})
	if err != nil {
		t.Fatal(err)
	}
	if !track.Converged() {
		t.Fatal("fit of a perfect line should converge")
	}

	if got := track.VZ().Value; math.Abs(got-10) > 0.5 {
		t.Errorf("vz = %g, want ~10", got)
	}
	if got := track.VX().Value; math.Abs(got) > 0.5 {
		t.Errorf("vx = %g, want ~0", got)
	}
	if got := track.ChiSquared(); got > 1e-2 {
		t.Errorf("chi2 = %g, want ~0 for a perfect line", got)
	}

	if got := track.DegreesOfFreedom(); got != 6 {
		t.Errorf("dof = %d, want 3*4-6 = 6", got)
	}
	wantBeta := 10 / 299.792458
	if got := track.Beta(); math.Abs(got-wantBeta) > 0.01 {
		t.Errorf("beta = %g, want ~%g", got, wantBeta)
	}
}

func TestTrackFitDeterministic(t *testing.T) {
	a, err := NewTrack(lineEvent(), DefaultFitSettings(), testSlabs{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewTrack(lineEvent(), DefaultFitSettings(), testSlabs{})
	if err != nil {
		t.Fatal(err)
	}
	if a.T0() != b.T0() || a.Z0() != b.Z0() || a.VZ() != b.VZ() {
		t.Error("identical seeds should fit to identical parameters")
	}
}

func TestTrackInterpolation(t *testing.T) {
	track, err := NewTrack(lineEvent(), DefaultFitSettings(), testSlabs{})
	if err != nil {
		t.Fatal(err)
	}
	if !track.Converged() {
		t.Fatal("fit did not converge")
	}

	at := track.PositionAt(20)
	if math.Abs(at.T-2) > 0.2 {
		t.Errorf("time at z=20 is %g, want ~2", at.T)
	}
	if at.Z != 20 {
		t.Errorf("PositionAt must pin z, got %g", at.Z)
	}

	atTime := track.PositionAtTime(2)
	if math.Abs(atTime.Z-20) > 2 {
		t.Errorf("z at t=2 is %g, want ~20", atTime.Z)
	}
	if atTime.T != 2 {
		t.Errorf("PositionAtTime must pin t, got %g", atTime.T)
	}
}

func TestTrackResidualVectors(t *testing.T) {
	track, err := NewTrack(lineEvent(), DefaultFitSettings(), testSlabs{})
	if err != nil {
		t.Fatal(err)
	}

	chi2s := track.ChiSquaredVector()
	residuals := track.ResidualVector()
	if len(chi2s) != 4 || len(residuals) != 4 {
		t.Fatalf("expected per-point vectors of length 4, got %d and %d", len(chi2s), len(residuals))
	}

	var sum float64
	for i := range chi2s {
		sum += chi2s[i]
		if math.Abs(residuals[i]*residuals[i]-chi2s[i]) > 1e-9 {
			t.Errorf("residual %d does not square to its chi2 contribution", i)
		}
	}
	if math.Abs(sum-track.ChiSquared()) > 1e-9 {
		t.Errorf("per-point contributions sum to %g, ChiSquared is %g", sum, track.ChiSquared())
	}
}

func TestTrackEventIsTimeSortedCopy(t *testing.T) {
	scrambled := Event{
		{T: 3, Z: 30}, {T: 0, Z: 0}, {T: 2, Z: 20}, {T: 1, Z: 10},
	}
	track, err := NewTrack(scrambled, DefaultFitSettings(), testSlabs{})
	if err != nil {
		t.Fatal(err)
	}

	event := track.Event()
	for i := 1; i < len(event); i++ {
		if event[i].T < event[i-1].T {
			t.Fatalf("track event not time sorted: %v", event)
		}
	}

	event[0].X = 99
	if track.Event()[0].X == 99 {
		t.Error("Event must return a copy")
	}
}

func TestTrackVolumes(t *testing.T) {
	track, err := NewTrack(lineEvent(), DefaultFitSettings(), testSlabs{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"slab0", "slab1", "slab2", "slab3"}
	got := track.Volumes()
	if len(got) != len(want) {
		t.Fatalf("got %d volumes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("volume %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFitSeedsSkipsShortSeeds(t *testing.T) {
	seeds := []Event{
		lineEvent(),
		lineEvent()[:2], // too short to constrain the fit
	}
	tracks := FitSeeds(seeds, DefaultFitSettings(), testSlabs{})
	if len(tracks) != 1 {
		t.Errorf("expected the short seed to be skipped, got %d tracks", len(tracks))
	}
}
