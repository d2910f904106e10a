package tracker

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/alig146/tracker/internal/fit"
	"github.com/alig146/tracker/internal/monitoring"
	"github.com/alig146/tracker/internal/units"
)

// FitParameter aliases the minimizer's parameter type: a value with its
// one-sigma error and optional search bounds.
type FitParameter = fit.Parameter

// FitSettings controls the track and vertex likelihood fits.
type FitSettings struct {
	// MaxIterations caps the minimizer's major iterations.
	MaxIterations int

	// Tolerance is the absolute objective convergence threshold.
	Tolerance float64

	// ErrorDef is the objective increase per standard deviation
	// (0.5 for the negative log-likelihood used here).
	ErrorDef float64

	// FixedParameter selects which position coordinate is held fixed
	// during the track fit to remove the along-line degeneracy.
	// Default is Z.
	FixedParameter Coordinate
}

// DefaultFitSettings returns settings for the standard Z-fixed
// likelihood fit.
func DefaultFitSettings() FitSettings {
	return FitSettings{
		MaxIterations:  2000,
		Tolerance:      1e-10,
		ErrorDef:       0.5,
		FixedParameter: CoordinateZ,
	}
}

func (s FitSettings) minimizer() fit.Minimizer {
	return fit.NewNelderMead(fit.Settings{
		MaxIterations: s.MaxIterations,
		Tolerance:     s.Tolerance,
		ErrorDef:      s.ErrorDef,
	})
}

// trackSquaredResidual is the per-point contribution to the track
// likelihood. The line is evaluated at the characteristic depth of the
// point's detector volume; the time deviation is normalized by twice
// the time unit and the spatial deviations by the volume's bounding-box
// extents, with the factor 12 completing the uniform-distribution
// variance model (extent²/12).
func trackSquaredResidual(t0, x0, y0, z0, vx, vy, vz float64, p Point, geo Geometry) float64 {
	limits := geo.LimitsOf(geo.Volume(p))
	dt := (limits.Center.Z - z0) / vz
	tRes := (dt + t0 - p.T) / (2 * units.Time)
	xRes := (dt*vx + x0 - limits.Center.X) / (limits.Max.X - limits.Min.X)
	yRes := (dt*vy + y0 - limits.Center.Y) / (limits.Max.Y - limits.Min.Y)
	return tRes*tRes + 12*(xRes*xRes+yRes*yRes)
}

// guessTrack derives starting parameters from the seed endpoints: the
// first point fixes the position, the endpoint displacement over time
// fixes the velocity. Errors are wide fixed step sizes; bounds are left
// open.
func guessTrack(event Event) []FitParameter {
	first := event[0]
	last := event[len(event)-1]
	dt := last.T - first.T
	return []FitParameter{
		{Name: "T0", Value: first.T, Error: 2 * units.Time},
		{Name: "X0", Value: first.X, Error: 100 * units.Length},
		{Name: "Y0", Value: first.Y, Error: 100 * units.Length},
		{Name: "Z0", Value: first.Z, Error: 100 * units.Length},
		{Name: "VX", Value: (last.X - first.X) / dt, Error: 0.1 * units.SpeedOfLight},
		{Name: "VY", Value: (last.Y - first.Y) / dt, Error: 0.1 * units.SpeedOfLight},
		{Name: "VZ", Value: (last.Z - first.Z) / dt, Error: 0.1 * units.SpeedOfLight},
	}
}

// Track is a fitted constant-velocity 4D line through a seed's points.
// It owns a time-sorted copy of its input event and is immutable after
// construction except through Refit. The seven parameters are
// (t0, x0, y0, z0, vx, vy, vz); one position coordinate is held fixed
// during the fit per the settings.
type Track struct {
	event    Event
	settings FitSettings
	geometry Geometry

	t0, x0, y0, z0 FitParameter
	vx, vy, vz     FitParameter

	squaredResiduals []float64
	volumes          []string
	covariance       *mat.SymDense
	converged        bool
}

// NewTrack fits a track through the seed. The seed needs at least three
// points; fewer leave the likelihood underconstrained.
func NewTrack(seed Event, settings FitSettings, geo Geometry) (*Track, error) {
	if len(seed) < 3 {
		return nil, fmt.Errorf("track: need at least 3 points, got %d", len(seed))
	}
	if geo == nil {
		return nil, fmt.Errorf("track: nil geometry")
	}
	t := &Track{event: TimeSorted(seed), settings: settings, geometry: geo}
	t.fit()
	return t, nil
}

// Refit re-runs the likelihood fit with new settings, replacing all
// fitted state.
func (t *Track) Refit(settings FitSettings) {
	t.settings = settings
	t.fit()
}

func (t *Track) fit() {
	params := guessTrack(t.event)
	switch t.settings.FixedParameter {
	case CoordinateT:
		params[0].Fixed = true
	case CoordinateX:
		params[1].Fixed = true
	case CoordinateY:
		params[2].Fixed = true
	default:
		params[3].Fixed = true
	}

	objective := func(x []float64) float64 {
		var sum float64
		for _, p := range t.event {
			sum += trackSquaredResidual(x[0], x[1], x[2], x[3], x[4], x[5], x[6], p, t.geometry)
		}
		return 0.5 * sum
	}

	result, err := t.settings.minimizer().Minimize(objective, params)
	if err != nil {
		monitoring.Logf("tracker: track fit did not converge: %v", err)
	}
	t.converged = err == nil && result.Converged

	fitted := result.Parameters
	t.t0, t.x0, t.y0, t.z0 = fitted[0], fitted[1], fitted[2], fitted[3]
	t.vx, t.vy, t.vz = fitted[4], fitted[5], fitted[6]
	t.covariance = result.Covariance

	t.squaredResiduals = make([]float64, len(t.event))
	t.volumes = make([]string, len(t.event))
	for i, p := range t.event {
		t.squaredResiduals[i] = trackSquaredResidual(
			t.t0.Value, t.x0.Value, t.y0.Value, t.z0.Value,
			t.vx.Value, t.vy.Value, t.vz.Value, p, t.geometry)
		t.volumes[i] = t.geometry.Volume(p)
	}
}

// Event returns a copy of the fitted event.
func (t *Track) Event() Event { return t.event.Copy() }

// Settings returns the fit settings used for the last fit.
func (t *Track) Settings() FitSettings { return t.settings }

// Converged reports whether the last fit reached a stationary point.
// Derived statistics are meaningless when this is false.
func (t *Track) Converged() bool { return t.converged }

// Volumes returns the resolved detector-volume name for each point.
func (t *Track) Volumes() []string { return append([]string(nil), t.volumes...) }

// Parameter accessors.

func (t *Track) T0() FitParameter { return t.t0 }
func (t *Track) X0() FitParameter { return t.x0 }
func (t *Track) Y0() FitParameter { return t.y0 }
func (t *Track) Z0() FitParameter { return t.z0 }
func (t *Track) VX() FitParameter { return t.vx }
func (t *Track) VY() FitParameter { return t.vy }
func (t *Track) VZ() FitParameter { return t.vz }

// PositionAt interpolates the track at depth z.
func (t *Track) PositionAt(z float64) Point {
	dt := (z - t.z0.Value) / t.vz.Value
	return Point{
		T: dt + t.t0.Value,
		X: dt*t.vx.Value + t.x0.Value,
		Y: dt*t.vy.Value + t.y0.Value,
		Z: z,
	}
}

// PositionAtTime interpolates the track at time tm.
func (t *Track) PositionAtTime(tm float64) Point {
	dt := tm - t.t0.Value
	return Point{
		T: tm,
		X: dt*t.vx.Value + t.x0.Value,
		Y: dt*t.vy.Value + t.y0.Value,
		Z: dt*t.vz.Value + t.z0.Value,
	}
}

// ErrorAtTime propagates the fitted covariance into the uncertainty of
// the interpolated position at time tm. Assumes the default Z-fixed
// parametrization, whose free parameters are (t0, x0, y0, vx, vy, vz).
func (t *Track) ErrorAtTime(tm float64) Point {
	dt := tm - t.t0.Value
	return Point{
		T: t.t0.Error,
		X: fit.Propagate([]float64{-t.vx.Value, 1, 0, dt, 0, 0}, t.covariance),
		Y: fit.Propagate([]float64{-t.vy.Value, 0, 1, 0, dt, 0}, t.covariance),
		Z: fit.Propagate([]float64{-t.vz.Value, 0, 0, 0, 0, dt}, t.covariance),
	}
}

// SquaredResidual is the total squared residual of the fit.
func (t *Track) SquaredResidual() float64 {
	var sum float64
	for _, r := range t.squaredResiduals {
		sum += r
	}
	return sum
}

// Residual is the square root of the total squared residual.
func (t *Track) Residual() float64 { return math.Sqrt(t.SquaredResidual()) }

// ResidualVector returns the per-point residuals.
func (t *Track) ResidualVector() []float64 {
	out := make([]float64, len(t.squaredResiduals))
	for i, r := range t.squaredResiduals {
		out[i] = math.Sqrt(r)
	}
	return out
}

// ChiSquaredVector returns the per-point chi-squared contributions.
func (t *Track) ChiSquaredVector() []float64 {
	return append([]float64(nil), t.squaredResiduals...)
}

// ChiSquared is the goodness-of-fit statistic of the track.
func (t *Track) ChiSquared() float64 { return t.SquaredResidual() }

// DegreesOfFreedom is 3N-6 for a track through N points: three
// residual components per point minus six free parameters.
func (t *Track) DegreesOfFreedom() int { return 3*len(t.event) - 6 }

// ChiSquaredPerDOF is the chi-squared normalized by degrees of freedom.
func (t *Track) ChiSquaredPerDOF() float64 {
	return t.ChiSquared() / float64(t.DegreesOfFreedom())
}

// Beta is the track speed as a fraction of the speed of light.
func (t *Track) Beta() float64 {
	vx, vy, vz := t.vx.Value, t.vy.Value, t.vz.Value
	return math.Sqrt(vx*vx+vy*vy+vz*vz) / units.SpeedOfLight
}

// CovarianceMatrix returns the free-parameter covariance of the last
// fit in declaration order (nil when the fit diverged or the Hessian
// was singular). With the default Z-fixed settings the order is
// (t0, x0, y0, vx, vy, vz).
func (t *Track) CovarianceMatrix() *mat.SymDense { return t.covariance }

// frontErrors is the measurement width attached to the track's
// earliest point: the volume's timing resolution in time and the
// covariance-propagated extrapolation error in space. Drives the
// vertex guess errors.
func (t *Track) frontErrors() Point {
	front := t.event[0]
	err := t.ErrorAtTime(front.T)
	return Point{
		T: t.geometry.TimeResolutionOf(t.geometry.Volume(front)),
		X: err.X,
		Y: err.Y,
		Z: err.Z,
	}
}

func equalEvents(a, b Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders the track parameters, event, statistics and dynamics
// for human-readable logs.
func (t *Track) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Track Parameters:\n")
	for _, p := range []FitParameter{t.t0, t.x0, t.y0, t.z0, t.vx, t.vy, t.vz} {
		fmt.Fprintf(&b, "  %s: %.7g  (+/- %.7g)\n", p.Name, p.Value, p.Error)
	}

	fmt.Fprintf(&b, "Event:\n")
	for i, p := range t.event {
		fmt.Fprintf(&b, "  %s %v\n", t.volumes[i], p)
	}

	fmt.Fprintf(&b, "Statistics:\n")
	fmt.Fprintf(&b, "  chi2:     %.7g\n", t.ChiSquared())
	fmt.Fprintf(&b, "  dof:      %d\n", t.DegreesOfFreedom())
	fmt.Fprintf(&b, "  chi2/dof: %.7g\n", t.ChiSquaredPerDOF())

	fmt.Fprintf(&b, "Dynamics:\n")
	fmt.Fprintf(&b, "  beta:  %.6g\n", t.Beta())
	fmt.Fprintf(&b, "  front: %v\n", t.PositionAt(t.event[0].Z))
	fmt.Fprintf(&b, "  back:  %v\n", t.PositionAt(t.event[len(t.event)-1].Z))
	return b.String()
}

// FitSeeds fits every seed into a track, skipping seeds too small to
// constrain the fit.
func FitSeeds(seeds []Event, settings FitSettings, geo Geometry) []*Track {
	out := make([]*Track, 0, len(seeds))
	for _, seed := range seeds {
		track, err := NewTrack(seed, settings, geo)
		if err != nil {
			monitoring.Logf("tracker: skipping seed: %v", err)
			continue
		}
		out = append(out, track)
	}
	return out
}
