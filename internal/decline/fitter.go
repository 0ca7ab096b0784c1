package decline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// MinProducingMonths is the smallest producing-month count that leaves the
// two-parameter model determined.
const MinProducingMonths = 3

const (
	// logEpsilon guards the warm-start regression against ln(0).
	logEpsilon = 1e-10
	// diFloor is the minimum decline-rate warm start; a zero-decline seed
	// degenerates the search.
	diFloor = 0.005
	// diUpperBound caps di at 100%/month, the physical ceiling.
	diUpperBound = 1.0
	// lambdaCeiling is the damping factor past which the solver gives up
	// looking for a solvable step.
	lambdaCeiling = 1e12
)

// Fitter estimates exponential decline parameters from a monthly production
// series using a bounded Levenberg-Marquardt iteration.
type Fitter struct {
	MaxIterations int
	Tolerance     float64
}

// NewFitter returns a Fitter with the default iteration budget and tolerance.
func NewFitter() *Fitter {
	return &Fitter{
		MaxIterations: 10000,
		Tolerance:     1e-8,
	}
}

// Fit estimates (qi, di) and their covariance from the producing months of
// obs. Shut-in months are excluded before fitting: they reflect operational
// interruptions rather than reservoir behaviour, and including them would
// bias the fitted decline rate upward. Month offsets are taken from each
// observation's position in the full series, so producing months keep their
// true distance in time across shut-in gaps.
func (f *Fitter) Fit(obs []models.ProductionObservation) (models.DeclineModelParameters, error) {
	var ts, qs []float64
	for i, o := range obs {
		if o.ActualBOE > 0 {
			ts = append(ts, float64(i))
			qs = append(qs, o.ActualBOE)
		}
	}

	if len(qs) < MinProducingMonths {
		return models.DeclineModelParameters{}, fmt.Errorf(
			"%w: need >= %d non-zero observations, have %d",
			ErrInsufficientData, MinProducingMonths, len(qs),
		)
	}

	qi0, di0 := warmStart(ts, qs)

	qi, di, iters, converged := levenbergMarquardt(ts, qs, qi0, di0, f.MaxIterations, f.Tolerance)
	if !converged {
		return models.DeclineModelParameters{}, fmt.Errorf("%w after %d iterations", ErrFitDiverged, iters)
	}

	return models.DeclineModelParameters{
		Qi:         qi,
		Di:         di,
		Covariance: covariance(ts, qs, qi, di),
		Converged:  true,
		Iterations: iters,
	}, nil
}

// warmStart seeds the solver: qi from the maximum producing rate, di from the
// slope of a log-linear regression ln(q) = ln(qi) - di*t, floored at diFloor.
func warmStart(ts, qs []float64) (qi0, di0 float64) {
	qi0 = qs[0]
	logQ := make([]float64, len(qs))
	for i, q := range qs {
		if q > qi0 {
			qi0 = q
		}
		logQ[i] = math.Log(q + logEpsilon)
	}
	_, slope := stat.LinearRegression(ts, logQ, nil, false)
	di0 = math.Max(-slope, diFloor)
	if di0 > diUpperBound {
		di0 = diUpperBound
	}
	return qi0, di0
}

// levenbergMarquardt minimizes sum((q - qi*exp(-di*t))^2) with parameters
// clamped to qi >= 0 and 0 <= di <= 1 after every step. It reports the final
// parameters, the iteration count, and whether the run converged within the
// budget. Damping that saturates without finding an improving step is treated
// as a stationary point; an unsolvable damped system is a divergence.
func levenbergMarquardt(ts, qs []float64, qi, di float64, maxIter int, tol float64) (float64, float64, int, bool) {
	lambda := 1e-3
	ssr := residualSumSquares(ts, qs, qi, di)

	for iter := 1; iter <= maxIter; iter++ {
		if ssr < 1e-30 {
			return qi, di, iter, true
		}

		jtj, jtr := normalEquations(ts, qs, qi, di)

		a := mat.NewDense(2, 2, []float64{
			jtj[0][0] * (1 + lambda), jtj[0][1],
			jtj[1][0], jtj[1][1] * (1 + lambda),
		})
		b := mat.NewVecDense(2, []float64{jtr[0], jtr[1]})

		var delta mat.VecDense
		if err := delta.SolveVec(a, b); err != nil {
			lambda *= 10
			if lambda > lambdaCeiling {
				return qi, di, iter, false
			}
			continue
		}

		nqi := clamp(qi+delta.AtVec(0), 0, math.Inf(1))
		ndi := clamp(di+delta.AtVec(1), 0, diUpperBound)
		nssr := residualSumSquares(ts, qs, nqi, ndi)

		if nssr <= ssr {
			improved := ssr - nssr
			smallStep := math.Abs(delta.AtVec(0)) <= tol*(1+math.Abs(nqi)) &&
				math.Abs(delta.AtVec(1)) <= tol*(1+math.Abs(ndi))
			qi, di, ssr = nqi, ndi, nssr
			lambda = math.Max(lambda/10, 1e-12)
			if improved <= tol*(1+nssr) || smallStep {
				return qi, di, iter, true
			}
		} else {
			lambda *= 10
			if lambda > lambdaCeiling {
				return qi, di, iter, true
			}
		}
	}

	return qi, di, maxIter, false
}

// normalEquations builds JtJ and Jt*r at the current parameters, where J is
// the model Jacobian and r the residual vector q - model.
func normalEquations(ts, qs []float64, qi, di float64) (jtj [2][2]float64, jtr [2]float64) {
	for i, t := range ts {
		e := math.Exp(-di * t)
		j0 := e
		j1 := -qi * t * e
		r := qs[i] - qi*e
		jtj[0][0] += j0 * j0
		jtj[0][1] += j0 * j1
		jtj[1][1] += j1 * j1
		jtr[0] += j0 * r
		jtr[1] += j1 * r
	}
	jtj[1][0] = jtj[0][1]
	return jtj, jtr
}

func residualSumSquares(ts, qs []float64, qi, di float64) float64 {
	var ssr float64
	for i, t := range ts {
		r := qs[i] - qi*math.Exp(-di*t)
		ssr += r * r
	}
	return ssr
}

// covariance reports the estimator covariance s^2 * (JtJ)^-1 at the optimum,
// with s^2 the residual variance over m-2 degrees of freedom. A singular JtJ
// degrades to +Inf entries rather than an error.
func covariance(ts, qs []float64, qi, di float64) [2][2]float64 {
	jtj, _ := normalEquations(ts, qs, qi, di)
	m := float64(len(ts))
	s2 := residualSumSquares(ts, qs, qi, di) / (m - 2)

	a := mat.NewDense(2, 2, []float64{jtj[0][0], jtj[0][1], jtj[1][0], jtj[1][1]})
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		inf := math.Inf(1)
		return [2][2]float64{{inf, inf}, {inf, inf}}
	}
	return [2][2]float64{
		{s2 * inv.At(0, 0), s2 * inv.At(0, 1)},
		{s2 * inv.At(1, 0), s2 * inv.At(1, 1)},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
