package index

import "errors"

// ErrNoObservations indicates a run produced no usable provider observations.
var ErrNoObservations = errors.New("no provider observations to aggregate")
