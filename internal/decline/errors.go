package decline

import "errors"

var (
	// ErrInsufficientData indicates fewer than MinProducingMonths non-zero
	// observations were available, leaving the two-parameter model
	// underdetermined.
	ErrInsufficientData = errors.New("decline: insufficient producing months for curve fitting")

	// ErrFitDiverged indicates the solver exhausted its iteration budget
	// without converging.
	ErrFitDiverged = errors.New("decline: curve fit did not converge within iteration budget")
)
