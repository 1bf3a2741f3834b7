package mock

import (
	"fmt"
	"math"
)

// Times is a call-count expectation. The zero value is unbounded: any
// number of calls is allowed and nothing is checked.
type Times struct {
	Bounded bool
	Min     int
	Max     int
}

// Unbounded returns the default, unchecked expectation.
func Unbounded() Times {
	return Times{}
}

// Exactly expects exactly n calls.
func Exactly(n int) Times {
	return Times{Bounded: true, Min: n, Max: n}
}

// Between expects at least minCalls and at most maxCalls calls.
func Between(minCalls, maxCalls int) Times {
	return Times{Bounded: true, Min: minCalls, Max: maxCalls}
}

// AtLeast expects minCalls or more calls with no upper bound.
func AtLeast(minCalls int) Times {
	return Times{Bounded: true, Min: minCalls, Max: math.MaxInt}
}

// Validate requires 0 <= Min <= Max.
func (t Times) Validate() error {
	if !t.Bounded {
		return nil
	}
	if t.Min < 0 || t.Max < 0 {
		return &ValidationError{Field: "times", Message: "counts must not be negative", Err: ErrInvalidTimes}
	}
	if t.Max < t.Min {
		return &ValidationError{Field: "times", Message: fmt.Sprintf("max %d is less than min %d", t.Max, t.Min), Err: ErrInvalidTimes}
	}
	return nil
}

// Allows reports whether one more call fits within the expectation.
func (t Times) Allows(claimed int) bool {
	return !t.Bounded || claimed < t.Max
}

// Satisfied reports whether claimed calls meet the expectation.
func (t Times) Satisfied(claimed int) bool {
	return !t.Bounded || (claimed >= t.Min && claimed <= t.Max)
}

// Unlimited reports whether a bounded expectation has no maximum.
func (t Times) Unlimited() bool {
	return t.Bounded && t.Max == math.MaxInt
}

// IsExact reports whether min and max coincide.
func (t Times) IsExact() bool {
	return t.Min == t.Max
}
