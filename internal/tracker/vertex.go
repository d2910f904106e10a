package tracker

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/alig146/tracker/internal/fit"
	"github.com/alig146/tracker/internal/monitoring"
)

// uniformError converts a full width into the standard deviation of a
// uniform distribution over that width.
func uniformError(width float64) float64 {
	return width / math.Sqrt(12)
}

// propagateAverage combines the errors of N independently measured
// values into the error of their unweighted average.
func propagateAverage(errors []float64) float64 {
	var sum float64
	for _, e := range errors {
		sum += e * e
	}
	return math.Sqrt(sum) / float64(len(errors))
}

// uncertainDistance is a scalar distance with a propagated error.
type uncertainDistance struct {
	value float64
	err   float64
}

// errorFloor keeps the heteroscedastic weights finite when a track
// passes exactly through the candidate vertex.
const errorFloor = 1e-12

// vertexTrackDistance is the 3D distance between the candidate vertex
// (x, y, z) and the track evaluated at the candidate time t.
func vertexTrackDistance(t, x, y, z float64, track *Track) float64 {
	p := track.PositionAtTime(t)
	dx, dy, dz := p.X-x, p.Y-y, p.Z-z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// vertexTrackDistanceWithError additionally propagates the track's
// fitted covariance into the distance uncertainty, via the gradient of
// the distance with respect to the six free track parameters
// (t0, x0, y0, vx, vy, vz).
func vertexTrackDistanceWithError(t, x, y, z float64, track *Track) uncertainDistance {
	p := track.PositionAtTime(t)
	dx, dy, dz := p.X-x, p.Y-y, p.Z-z
	distance := math.Sqrt(dx*dx + dy*dy + dz*dz)

	inverse := 0.0
	if distance > 0 {
		inverse = 1 / distance
	}
	dxByD, dyByD, dzByD := dx*inverse, dy*inverse, dz*inverse
	totalDt := t - track.T0().Value

	gradient := []float64{
		-(track.VX().Value*dxByD + track.VY().Value*dyByD + track.VZ().Value*dzByD),
		dxByD,
		dyByD,
		totalDt * dxByD,
		totalDt * dyByD,
		totalDt * dzByD,
	}
	err := fit.Propagate(gradient, track.CovarianceMatrix())
	if err < errorFloor {
		err = errorFloor
	}
	return uncertainDistance{value: distance, err: err}
}

func vertexSquaredResidual(t, x, y, z float64, track *Track) float64 {
	d := vertexTrackDistanceWithError(t, x, y, z, track)
	r := d.value / d.err
	return r * r
}

// vertexParameters is the (t, x, y, z) fit state of a vertex.
type vertexParameters struct {
	t, x, y, z FitParameter
}

func (p vertexParameters) isZero() bool {
	return p == vertexParameters{}
}

// guessVertex seeds the fit with the error-weighted average of each
// track's extrapolated position at its own earliest time. The time
// width is the front volume's timing resolution; the spatial widths
// are the covariance-propagated extrapolation errors at the front
// time, each put through the uniform-distribution model.
func guessVertex(tracks []*Track) vertexParameters {
	size := len(tracks)
	fronts := make(Event, size)
	tErrors := make([]float64, size)
	xErrors := make([]float64, size)
	yErrors := make([]float64, size)
	zErrors := make([]float64, size)

	for i, track := range tracks {
		frontT := track.Event()[0].T
		fronts[i] = track.PositionAtTime(frontT)
		width := track.frontErrors()
		tErrors[i] = width.T
		xErrors[i] = uniformError(width.X)
		yErrors[i] = uniformError(width.Y)
		zErrors[i] = uniformError(width.Z)
	}

	average := Mean(fronts)
	return vertexParameters{
		t: FitParameter{Name: "T", Value: average.T, Error: propagateAverage(tErrors)},
		x: FitParameter{Name: "X", Value: average.X, Error: propagateAverage(xErrors)},
		y: FitParameter{Name: "Y", Value: average.Y, Error: propagateAverage(yErrors)},
		z: FitParameter{Name: "Z", Value: average.Z, Error: propagateAverage(zErrors)},
	}
}

// fitVertex minimizes the vertex negative log-likelihood over
// (t, x, y, z): each track contributes half its squared normalized
// distance plus a log-error term, so closer tracks with tighter fitted
// covariances weigh more. Returns false only on divergence; the
// covariance may be nil even for a converged fit, since the Hessian at
// an exact intersection degenerates as the distance errors collapse.
func fitVertex(tracks []*Track, params *vertexParameters, settings FitSettings) (*mat.SymDense, bool) {
	objective := func(x []float64) float64 {
		var sum float64
		for _, track := range tracks {
			d := vertexTrackDistanceWithError(x[0], x[1], x[2], x[3], track)
			r := d.value / d.err
			sum += 0.5*r*r + math.Log(d.err)
		}
		return sum
	}

	result, err := settings.minimizer().Minimize(objective, []FitParameter{
		params.t, params.x, params.y, params.z,
	})
	if err != nil {
		monitoring.Logf("tracker: vertex fit did not converge: %v", err)
		return nil, false
	}
	if !result.Converged {
		return nil, false
	}

	params.t = result.Parameters[0]
	params.x = result.Parameters[1]
	params.y = result.Parameters[2]
	params.z = result.Parameters[3]
	return result.Covariance, true
}

// Vertex is a fitted common space-time origin for a collection of
// tracks. It owns copies of its tracks; the mutators always trigger a
// full refit and replace the guess, final parameters, covariance and
// per-track chi-squared contributions together.
type Vertex struct {
	tracks   []*Track
	settings FitSettings

	guess      vertexParameters
	final      vertexParameters
	covariance *mat.SymDense
	deltaChi2  []float64
}

// NewVertex fits a vertex from the given tracks using default fit
// settings. Fewer than two tracks yield a default-initialized vertex.
func NewVertex(tracks []*Track) *Vertex {
	return NewVertexWithSettings(tracks, DefaultFitSettings())
}

// NewVertexWithSettings fits a vertex with explicit fit settings.
func NewVertexWithSettings(tracks []*Track, settings FitSettings) *Vertex {
	v := &Vertex{settings: settings}
	v.Reset(tracks)
	return v
}

// Reset replaces the track collection and refits. All observable fit
// state is rebuilt and assigned as one snapshot; on divergence (or
// fewer than two tracks) the guess is retained while the final
// parameters and covariance revert to their defaults. Returns the new
// track count.
func (v *Vertex) Reset(tracks []*Track) int {
	v.tracks = append([]*Track(nil), tracks...)
	size := len(v.tracks)

	var guess, final vertexParameters
	var covariance *mat.SymDense
	deltaChi2 := make([]float64, size)

	if size > 1 {
		guess = guessVertex(v.tracks)
		final = guess
		if cov, ok := fitVertex(v.tracks, &final, v.settings); ok {
			for i, track := range v.tracks {
				deltaChi2[i] = vertexSquaredResidual(
					final.t.Value, final.x.Value, final.y.Value, final.z.Value, track)
			}
			covariance = cov
		} else {
			final = vertexParameters{}
		}
	}

	v.guess = guess
	v.final = final
	v.covariance = covariance
	v.deltaChi2 = deltaChi2
	return size
}

// Size returns the number of tracks in the vertex.
func (v *Vertex) Size() int { return len(v.tracks) }

// Tracks returns a copy of the track collection.
func (v *Vertex) Tracks() []*Track { return append([]*Track(nil), v.tracks...) }

// Insert adds a track (unless an identical one is already present) and
// refits. Returns the resulting track count.
func (v *Vertex) Insert(track *Track) int {
	for _, existing := range v.tracks {
		if equalEvents(existing.event, track.event) {
			return v.Size()
		}
	}
	return v.Reset(append(v.tracks, track))
}

// Remove drops the track at index and refits. An out-of-range index is
// a no-op returning the unchanged size.
func (v *Vertex) Remove(index int) int {
	size := v.Size()
	if index < 0 || index >= size {
		return size
	}
	kept := make([]*Track, 0, size-1)
	kept = append(kept, v.tracks[:index]...)
	kept = append(kept, v.tracks[index+1:]...)
	return v.Reset(kept)
}

// RemoveAll drops the tracks at the given indices and refits.
// Out-of-range and duplicate indices are ignored; if nothing valid
// remains to remove, the vertex is left untouched.
func (v *Vertex) RemoveAll(indices []int) int {
	size := v.Size()
	drop := make(map[int]bool, len(indices))
	for _, index := range indices {
		if index >= 0 && index < size {
			drop[index] = true
		}
	}
	if len(drop) == 0 {
		return size
	}
	kept := make([]*Track, 0, size-len(drop))
	for i, track := range v.tracks {
		if !drop[i] {
			kept = append(kept, track)
		}
	}
	return v.Reset(kept)
}

// PruneOnChiSquared removes every track whose chi-squared contribution
// from the last successful fit exceeds maxChiSquared, then refits.
func (v *Vertex) PruneOnChiSquared(maxChiSquared float64) int {
	var indices []int
	for i, chi2 := range v.deltaChi2 {
		if chi2 > maxChiSquared {
			indices = append(indices, i)
		}
	}
	return v.RemoveAll(indices)
}

// FitDiverged reports whether the last fit diverged: a guess was made
// but the final parameters were reset to their defaults.
func (v *Vertex) FitDiverged() bool {
	return !v.guess.isZero() && v.final.isZero()
}

// Parameter accessors.

func (v *Vertex) T() FitParameter { return v.final.t }
func (v *Vertex) X() FitParameter { return v.final.x }
func (v *Vertex) Y() FitParameter { return v.final.y }
func (v *Vertex) Z() FitParameter { return v.final.z }

// GuessParameters returns the initial estimate of the last fit as
// (t, x, y, z) fit parameters.
func (v *Vertex) GuessParameters() [4]FitParameter {
	return [4]FitParameter{v.guess.t, v.guess.x, v.guess.y, v.guess.z}
}

// Point returns the fitted vertex position.
func (v *Vertex) Point() Point {
	return Point{T: v.final.t.Value, X: v.final.x.Value, Y: v.final.y.Value, Z: v.final.z.Value}
}

// PointError returns the per-axis errors of the fitted position.
func (v *Vertex) PointError() Point {
	return Point{T: v.final.t.Error, X: v.final.x.Error, Y: v.final.y.Error, Z: v.final.z.Error}
}

// Value returns the fitted value of the given vertex coordinate.
func (v *Vertex) Value(c Coordinate) float64 { return v.parameter(c).Value }

// Error returns the fitted error of the given vertex coordinate.
func (v *Vertex) Error(c Coordinate) float64 { return v.parameter(c).Error }

func (v *Vertex) parameter(c Coordinate) FitParameter {
	switch c {
	case CoordinateT:
		return v.final.t
	case CoordinateX:
		return v.final.x
	case CoordinateY:
		return v.final.y
	default:
		return v.final.z
	}
}

// Distances returns each track's 3D distance from the fitted vertex at
// the vertex time.
func (v *Vertex) Distances() []float64 {
	out := make([]float64, len(v.tracks))
	for i, track := range v.tracks {
		out[i] = vertexTrackDistance(
			v.final.t.Value, v.final.x.Value, v.final.y.Value, v.final.z.Value, track)
	}
	return out
}

// DistanceErrors returns the propagated uncertainty of each track's
// distance from the fitted vertex.
func (v *Vertex) DistanceErrors() []float64 {
	out := make([]float64, len(v.tracks))
	for i, track := range v.tracks {
		out[i] = vertexTrackDistanceWithError(
			v.final.t.Value, v.final.x.Value, v.final.y.Value, v.final.z.Value, track).err
	}
	return out
}

// ChiSquaredVector returns the per-track chi-squared contributions of
// the last successful fit.
func (v *Vertex) ChiSquaredVector() []float64 {
	return append([]float64(nil), v.deltaChi2...)
}

// ChiSquared is the total chi-squared of the vertex fit.
func (v *Vertex) ChiSquared() float64 {
	var sum float64
	for _, chi2 := range v.deltaChi2 {
		sum += chi2
	}
	return sum
}

// DegreesOfFreedom of the four-parameter vertex fit.
func (v *Vertex) DegreesOfFreedom() int { return 4 }

// ChiSquaredPerDOF is the chi-squared normalized by degrees of freedom.
func (v *Vertex) ChiSquaredPerDOF() float64 {
	return v.ChiSquared() / float64(v.DegreesOfFreedom())
}

// Variance returns the fitted variance of one vertex coordinate.
func (v *Vertex) Variance(c Coordinate) float64 { return v.Covariance(c, c) }

// Covariance returns the covariance between two vertex coordinates.
// Zero when the last fit diverged or yielded no error matrix.
func (v *Vertex) Covariance(p, q Coordinate) float64 {
	if v.covariance == nil {
		return 0
	}
	return v.covariance.At(int(p), int(q))
}

// CovarianceMatrix returns the 4x4 covariance of (t, x, y, z) in row
// major order. Zero-valued when the last fit diverged or yielded no
// error matrix.
func (v *Vertex) CovarianceMatrix() [16]float64 {
	var out [16]float64
	if v.covariance == nil {
		return out
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[4*i+j] = v.covariance.At(i, j)
		}
	}
	return out
}

// String renders the vertex status, parameters, per-track distances,
// statistics and covariance matrix for human-readable logs.
func (v *Vertex) String() string {
	bar := strings.Repeat("-", 80)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", bar)

	if v.FitDiverged() {
		fmt.Fprintf(&b, "* Vertex Status: DIVERGED\n")
		fmt.Fprintf(&b, "* Guess Parameters:\n")
		for _, p := range v.GuessParameters() {
			fmt.Fprintf(&b, "    %s: %g  (+/- %g)\n", p.Name, p.Value, p.Error)
		}
		fmt.Fprintf(&b, "%s", bar)
		return b.String()
	}

	fmt.Fprintf(&b, "* Vertex Status: CONVERGED\n")
	fmt.Fprintf(&b, "* Parameters:\n")
	for _, p := range []FitParameter{v.final.t, v.final.x, v.final.y, v.final.z} {
		fmt.Fprintf(&b, "    %s: %g  (+/- %g)\n", p.Name, p.Value, p.Error)
	}

	fmt.Fprintf(&b, "* Tracks:\n")
	distances := v.Distances()
	errors := v.DistanceErrors()
	for i, track := range v.tracks {
		fmt.Fprintf(&b, "    %g  (+/- %g)\n", distances[i], errors[i])
		fmt.Fprintf(&b, "      from (%g, %g, %g, %g, %g, %g, %g)\n",
			track.T0().Value, track.X0().Value, track.Y0().Value, track.Z0().Value,
			track.VX().Value, track.VY().Value, track.VZ().Value)
	}

	fmt.Fprintf(&b, "* Statistics:\n")
	fmt.Fprintf(&b, "    dof:      %d\n", v.DegreesOfFreedom())
	fmt.Fprintf(&b, "    chi2:     %.7g\n", v.ChiSquared())
	fmt.Fprintf(&b, "    chi2/dof: %.7g\n", v.ChiSquaredPerDOF())
	fmt.Fprintf(&b, "    cov mat:  ")
	matrix := v.CovarianceMatrix()
	for i := 0; i < 4; i++ {
		if i > 0 {
			fmt.Fprintf(&b, "              ")
		}
		fmt.Fprintf(&b, "|")
		for j := 0; j < 4; j++ {
			fmt.Fprintf(&b, " %g", matrix[4*i+j])
		}
		fmt.Fprintf(&b, " |\n")
	}
	fmt.Fprintf(&b, "%s", bar)
	return b.String()
}
