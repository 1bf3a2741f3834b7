package matching

import (
	"log/slog"

	"github.com/getmockd/interceptd/pkg/body"
	"github.com/getmockd/interceptd/pkg/mock"
)

// MatchBody decodes the request body (once, cached on req) and compares it
// with expected. A body that fails to decode under its declared content
// type is compared as a blob and a warning is logged once per request.
func MatchBody(expected body.Value, req *mock.Request, log *slog.Logger) (bool, body.Value) {
	received, _ := req.Body()
	if err := req.BodyWarning(); err != nil && log != nil {
		log.Warn("failed to decode request body",
			"method", req.Method,
			"url", req.URL.String(),
			"contentType", req.ContentType(),
			"error", err,
		)
	}
	return body.Equal(expected, received), received
}
