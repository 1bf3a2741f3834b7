package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/httputil"
	"github.com/getmockd/interceptd/pkg/mock"
)

// serveTraffic dispatches application requests sent under a session base
// URL. The first path segment selects the session.
func (s *Server) serveTraffic(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sessionID, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	sess, ok := s.session(sessionID)
	if !ok {
		s.metrics.observeRequest(outcomeUnknownSession, false, start)
		httputil.WriteError(w, http.StatusNotFound, "unknown_session", fmt.Sprintf("no interceptor session %q", sessionID))
		return
	}

	req, err := mock.FromHTTP(r)
	if err != nil {
		s.metrics.observeRequest(outcomeInvalid, false, start)
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	out, h, err := sess.registry.Dispatch(r.Context(), req)
	if err != nil {
		s.metrics.observeRequest(outcomeError, h != nil, start)
		handlerID := ""
		if h != nil {
			handlerID = h.ID()
		}
		sess.log.Error("request evaluation failed", "method", req.Method, "url", req.URL.String(), "handler", handlerID, "error", err)
		code := "internal"
		if errors.Is(err, engine.ErrEvaluation) {
			code = "evaluation"
		}
		httputil.WriteError(w, http.StatusInternalServerError, code, err.Error())
		return
	}

	s.metrics.observeRequest(out.Action.String(), h != nil, start)
	switch out.Action {
	case mock.ActionRespond:
		httputil.WriteResponse(w, r, out.Response)
	default:
		// Rejections surface to the client as a network error.
		panic(http.ErrAbortHandler)
	}
}
