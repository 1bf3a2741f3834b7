package engine

import (
	"context"

	"github.com/getmockd/interceptd/pkg/mock"
)

// ResolveResponse produces the outcome for req. Declarative responses are
// normalized; factories are invoked and their outcome validated. Bypass is
// refused when remote is set.
func ResolveResponse(ctx context.Context, spec mock.ResponseSpec, req *mock.Request, remote bool) (mock.Outcome, error) {
	out, err := spec.Resolve(ctx, req)
	if err != nil {
		return mock.Outcome{}, err
	}
	return normalizeOutcome(out, remote)
}

func normalizeOutcome(out mock.Outcome, remote bool) (mock.Outcome, error) {
	switch out.Action {
	case mock.ActionBypass:
		if remote {
			return mock.Outcome{}, ErrBypassUnsupported
		}
		return out, nil
	case mock.ActionReject:
		return out, nil
	default:
		if err := out.Response.Validate(); err != nil {
			return mock.Outcome{}, err
		}
		resp, err := out.Response.Normalize()
		if err != nil {
			return mock.Outcome{}, err
		}
		return mock.Reply(resp), nil
	}
}
