// Package prediction estimates how much a vehicle is driven per day from its
// recent service history and projects when it will reach its next service
// distance threshold.
//
// Estimate is a pure function over a history snapshot. Predictor wraps it
// with the history source and the vehicle usage store: Predict persists a
// successful result, Preview computes without writing.
//
// A missing prediction is a normal outcome, not an error. Estimate reports
// it through the sentinel errors checked by IsNoPrediction; Predictor turns
// those into a nil result with a nil error so that only collaborator
// failures surface as errors.
package prediction
