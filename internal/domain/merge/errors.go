package merge

import "errors"

// ErrNegativeGap is returned when the merge gap is below zero.
var ErrNegativeGap = errors.New("merge gap must be non-negative")
