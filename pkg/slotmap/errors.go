package slotmap

import "errors"

var (
	ErrCapacityExceeded = errors.New("slotmap: map is at max capacity")
	ErrOutOfBounds      = errors.New("slotmap: key index out of bounds")
	ErrGrowthFactor     = errors.New("slotmap: growth factor must be greater than 1")
)
