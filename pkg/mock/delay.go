package mock

import (
	"context"
	"fmt"
	"time"
)

// DelayKind identifies how a Delay is computed.
type DelayKind int

// Delay kinds.
const (
	DelayNone DelayKind = iota
	DelayFixed
	DelayRange
	DelayComputed
)

// DelayFunc computes a delay for a claimed request.
type DelayFunc func(ctx context.Context, req *Request) (time.Duration, error)

// Delay is the pause applied before a handler's response is resolved.
type Delay struct {
	Kind  DelayKind
	Fixed time.Duration
	Min   time.Duration
	Max   time.Duration
	Func  DelayFunc
}

// NoDelay returns the zero delay.
func NoDelay() Delay {
	return Delay{}
}

// FixedDelay pauses for exactly d.
func FixedDelay(d time.Duration) Delay {
	return Delay{Kind: DelayFixed, Fixed: d}
}

// RangeDelay pauses for a uniformly random duration in [min, max].
func RangeDelay(minDelay, maxDelay time.Duration) Delay {
	return Delay{Kind: DelayRange, Min: minDelay, Max: maxDelay}
}

// ComputedDelay pauses for whatever fn returns.
func ComputedDelay(fn DelayFunc) Delay {
	return Delay{Kind: DelayComputed, Func: fn}
}

// Validate rejects negative durations and inverted ranges.
func (d Delay) Validate() error {
	switch d.Kind {
	case DelayNone:
	case DelayFixed:
		if d.Fixed < 0 {
			return &ValidationError{Field: "delay", Message: fmt.Sprintf("negative delay %s", d.Fixed), Err: ErrInvalidDelay}
		}
	case DelayRange:
		if d.Min < 0 || d.Max < 0 {
			return &ValidationError{Field: "delay", Message: "negative delay bound", Err: ErrInvalidDelay}
		}
		if d.Min > d.Max {
			return &ValidationError{Field: "delay", Message: fmt.Sprintf("min %s exceeds max %s", d.Min, d.Max), Err: ErrInvalidDelay}
		}
	case DelayComputed:
		if d.Func == nil {
			return &ValidationError{Field: "delay", Message: "delay function is nil", Err: ErrInvalidDelay}
		}
	default:
		return &ValidationError{Field: "delay", Message: fmt.Sprintf("unknown delay kind %d", int(d.Kind)), Err: ErrInvalidDelay}
	}
	return nil
}
