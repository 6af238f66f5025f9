package prediction

import "errors"

var (
	// ErrInsufficientHistory is returned when fewer than MinDataPoints
	// records are available.
	ErrInsufficientHistory = errors.New("insufficient service history")
	// ErrDegenerateTrend is returned when the fitted slope is not a
	// positive finite number.
	ErrDegenerateTrend = errors.New("degenerate usage trend")
	// ErrInvalidRecord is returned when a record violates the history
	// contract, e.g. a negative odometer reading.
	ErrInvalidRecord = errors.New("invalid service record")
)

// IsNoPrediction reports whether err means "computed, no usable signal"
// rather than an infrastructure failure.
func IsNoPrediction(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) ||
		errors.Is(err, ErrDegenerateTrend) ||
		errors.Is(err, ErrInvalidRecord)
}
