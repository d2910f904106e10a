// Package fit provides a bounded nonlinear minimization capability for
// the track and vertex fitters. A caller declares named parameters with
// starting values, step sizes and optional bounds, marks a subset as
// fixed, and supplies a scalar objective over the full parameter vector.
// The minimizer reports fitted values, symmetric errors, and the
// covariance matrix of the free parameters, with a distinguishable
// divergence outcome.
package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Parameter is a single scalar fit parameter. Min and Max bound the
// search when Min < Max; Min == Max means unbounded. Error holds the
// initial step size on input and the fitted one-sigma error on output.
type Parameter struct {
	Name  string
	Value float64
	Error float64
	Min   float64
	Max   float64
	Fixed bool
}

// Objective is a scalar function of the full parameter vector, fixed
// parameters included. The fitters pass negative log-likelihoods here.
type Objective func(params []float64) float64

// Result is the outcome of a minimization. Covariance is over the free
// parameters in declaration order; it is nil when the Hessian at the
// minimum could not be inverted.
type Result struct {
	Parameters []Parameter
	Covariance *mat.SymDense
	Value      float64
	Converged  bool
	Iterations int
}

// Minimizer is the abstract minimization capability. Implementations
// must be deterministic for a fixed objective and starting point.
type Minimizer interface {
	Minimize(objective Objective, params []Parameter) (*Result, error)
}

// Settings controls the minimization loop.
type Settings struct {
	// MaxIterations caps the number of major iterations.
	MaxIterations int

	// Tolerance is the absolute objective-value convergence threshold.
	Tolerance float64

	// ErrorDef is the objective increase corresponding to one standard
	// deviation: 0.5 for a negative log-likelihood, 1.0 for a chi-squared.
	ErrorDef float64
}

// DefaultSettings returns settings suitable for the track and vertex
// likelihood fits.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations: 2000,
		Tolerance:     1e-10,
		ErrorDef:      0.5,
	}
}

// NelderMead minimizes with the gonum downhill-simplex method. The
// method is derivative free, which suits the geometry-aware residuals
// whose volume lookups are not differentiable across cell boundaries.
type NelderMead struct {
	Settings Settings
}

// NewNelderMead returns a NelderMead minimizer with the given settings.
func NewNelderMead(settings Settings) *NelderMead {
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = DefaultSettings().MaxIterations
	}
	if settings.Tolerance <= 0 {
		settings.Tolerance = DefaultSettings().Tolerance
	}
	if settings.ErrorDef <= 0 {
		settings.ErrorDef = DefaultSettings().ErrorDef
	}
	return &NelderMead{Settings: settings}
}

// Minimize runs the simplex search over the free parameters. Fixed
// parameters keep their input value and error. Bounds are enforced by
// rejecting out-of-bounds vertices.
func (nm *NelderMead) Minimize(objective Objective, params []Parameter) (*Result, error) {
	out := &Result{Parameters: append([]Parameter(nil), params...)}

	free := make([]int, 0, len(params))
	for i, p := range params {
		if !p.Fixed {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		full := values(out.Parameters)
		out.Value = objective(full)
		out.Converged = true
		return out, nil
	}

	full := values(out.Parameters)
	reduced := func(x []float64) float64 {
		for k, i := range free {
			p := &out.Parameters[i]
			if p.Min < p.Max && (x[k] < p.Min || x[k] > p.Max) {
				return math.Inf(1)
			}
			full[i] = x[k]
		}
		return objective(full)
	}

	x0 := make([]float64, len(free))
	for k, i := range free {
		x0[k] = out.Parameters[i].Value
	}

	problem := optimize.Problem{Func: reduced}
	settings := &optimize.Settings{
		MajorIterations: nm.Settings.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   nm.Settings.Tolerance,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return out, fmt.Errorf("minimize: %w", err)
	}
	out.Iterations = result.Stats.MajorIterations
	out.Value = result.F
	for k, i := range free {
		out.Parameters[i].Value = result.X[k]
	}
	if math.IsNaN(result.F) || result.Status == optimize.IterationLimit {
		return out, fmt.Errorf("minimize: diverged with status %v after %d iterations",
			result.Status, out.Iterations)
	}
	out.Converged = true
	out.Covariance = nm.covariance(reduced, result.X)
	if out.Covariance != nil {
		for k, i := range free {
			out.Parameters[i].Error = math.Sqrt(out.Covariance.At(k, k))
		}
	}
	return out, nil
}

// covariance estimates the free-parameter covariance as the scaled
// inverse of the numerical Hessian at the minimum. Returns nil when the
// Hessian is not positive definite.
func (nm *NelderMead) covariance(reduced func([]float64) float64, x []float64) *mat.SymDense {
	n := len(x)
	hessian := mat.NewSymDense(n, nil)
	fd.Hessian(hessian, reduced, x, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if math.IsNaN(hessian.At(i, j)) || math.IsInf(hessian.At(i, j), 0) {
				return nil
			}
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(hessian) {
		return nil
	}
	cov := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil
	}
	cov.ScaleSym(2*nm.Settings.ErrorDef, cov)
	return cov
}

func values(params []Parameter) []float64 {
	out := make([]float64, len(params))
	for i, p := range params {
		out[i] = p.Value
	}
	return out
}

// Propagate computes the first-order propagated variance g^T C g of a
// scalar observable with gradient g under parameter covariance C, and
// returns its square root. A nil covariance yields zero.
func Propagate(gradient []float64, covariance *mat.SymDense) float64 {
	if covariance == nil {
		return 0
	}
	n := len(gradient)
	var sum float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum += gradient[i] * covariance.At(i, j) * gradient[j]
		}
	}
	if sum < 0 {
		return 0
	}
	return math.Sqrt(sum)
}

// Verify at compile time that *NelderMead implements Minimizer.
var _ Minimizer = (*NelderMead)(nil)
