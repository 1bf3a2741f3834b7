package engine

import (
	"context"
	mathrand "math/rand/v2"
	"time"

	"github.com/getmockd/interceptd/pkg/mock"
)

// ResolveDelay computes the pause for req. The result is never negative.
func ResolveDelay(ctx context.Context, d mock.Delay, req *mock.Request) (time.Duration, error) {
	var out time.Duration
	switch d.Kind {
	case mock.DelayNone:
		return 0, nil
	case mock.DelayFixed:
		out = d.Fixed
	case mock.DelayRange:
		out = d.Min
		if d.Max > d.Min {
			out += time.Duration(mathrand.Int64N(int64(d.Max-d.Min) + 1))
		}
	case mock.DelayComputed:
		if d.Func == nil {
			return 0, nil
		}
		v, err := d.Func(ctx, req)
		if err != nil {
			return 0, err
		}
		out = v
	}
	return max(out, 0), nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
