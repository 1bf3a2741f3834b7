package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/getmockd/interceptd/internal/id"
	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/httputil"
	"github.com/getmockd/interceptd/pkg/mock"
	"github.com/getmockd/interceptd/pkg/protocol"
)

// session is one connected remote interceptor and its handlers.
type session struct {
	id       string
	baseURL  string
	registry *engine.Registry
	peer     *protocol.Peer
	log      *slog.Logger
}

// serveSession upgrades a remote interceptor connection and serves it until
// it closes.
func (s *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	subject, err := s.authenticate(r)
	if err != nil {
		s.log.Warn("session rejected", "remote", r.RemoteAddr, "error", err)
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "a valid bearer token is required")
		return
	}

	sessionID := r.URL.Query().Get(protocol.SessionParam)
	if sessionID == "" {
		sessionID = id.Session()
	} else if !id.IsValidSession(sessionID) || strings.HasPrefix(sessionID, "__") {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_session", fmt.Sprintf("invalid session id %q", sessionID))
		return
	}
	if _, exists := s.session(sessionID); exists {
		httputil.WriteError(w, http.StatusConflict, "session_exists", fmt.Sprintf("session %s is already connected", sessionID))
		return
	}
	save, _ := strconv.ParseBool(r.URL.Query().Get("saveRequests"))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Error("websocket accept failed", "error", err)
		return
	}

	log := s.log.With("session", sessionID)
	sess := &session{
		id:      sessionID,
		baseURL: sessionBaseURL(r, sessionID),
		log:     log,
		registry: engine.NewRegistry(
			engine.WithRemote(true),
			engine.WithSaveRequests(save),
			engine.WithLogger(log),
		),
	}
	sess.peer = protocol.NewPeer(conn, "s", sess.handleCall, log)

	if !s.addSession(sess) {
		_ = conn.Close(websocket.StatusPolicyViolation, "session already connected")
		return
	}
	defer s.removeSession(sess)

	ctx := r.Context()
	if err := sess.peer.Send(ctx, protocol.NewConnectedMessage(sess.id, sess.baseURL)); err != nil {
		log.Error("failed to send connected message", "error", err)
		sess.peer.Close("handshake failed")
		return
	}
	log.Info("session connected", "remote", r.RemoteAddr, "subject", subject, "saveRequests", save)

	if err := sess.peer.Run(ctx); err != nil {
		log.Error("session transport failed", "error", err)
	}
	sess.peer.Close("session ended")
	log.Info("session disconnected")
}

func sessionBaseURL(r *http.Request, sessionID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/" + sessionID
}

// handleCall processes a client call. Calls only touch session state, so
// they run inline on the read loop and are answered in arrival order.
func (sess *session) handleCall(ctx context.Context, p *protocol.Peer, msg *protocol.Message) {
	if msg.Type != protocol.TypeCall {
		_ = p.Reply(ctx, msg, nil, fmt.Errorf("unsupported %s %s", msg.Type, msg.Op))
		return
	}
	result, err := sess.dispatchCall(msg)
	if err != nil {
		sess.log.Debug("call failed", "op", msg.Op, "error", err)
	}
	if err := p.Reply(ctx, msg, result, err); err != nil {
		sess.log.Error("failed to send reply", "op", msg.Op, "error", err)
	}
}

func (sess *session) dispatchCall(msg *protocol.Message) (any, error) {
	switch msg.Op {
	case protocol.OpHandlerCreate:
		var req protocol.HandlerCreate
		if err := msg.DecodePayload(&req); err != nil {
			return nil, err
		}
		return sess.createHandler(req)

	case protocol.OpHandlerWith:
		var req protocol.HandlerWith
		if err := msg.DecodePayload(&req); err != nil {
			return nil, err
		}
		h, err := sess.handler(req.HandlerID)
		if err != nil {
			return nil, err
		}
		restrictions := make([]mock.Restriction, 0, len(req.Restrictions))
		for _, wire := range req.Restrictions {
			var predicate mock.Predicate
			if wire.CallbackID != "" {
				predicate = sess.predicate(wire.CallbackID)
			}
			res, err := wire.ToMock(predicate)
			if err != nil {
				return nil, err
			}
			restrictions = append(restrictions, res)
		}
		return nil, h.With(restrictions...)

	case protocol.OpHandlerDelay:
		var req protocol.HandlerDelay
		if err := msg.DecodePayload(&req); err != nil {
			return nil, err
		}
		h, err := sess.handler(req.HandlerID)
		if err != nil {
			return nil, err
		}
		d, err := sess.delay(req)
		if err != nil {
			return nil, err
		}
		return nil, h.SetDelay(d)

	case protocol.OpHandlerTimes:
		var req protocol.HandlerTimes
		if err := msg.DecodePayload(&req); err != nil {
			return nil, err
		}
		h, err := sess.handler(req.HandlerID)
		if err != nil {
			return nil, err
		}
		return nil, h.SetTimes(mock.Times{Bounded: req.Bounded, Min: req.Min, Max: req.Max}, req.Declaration)

	case protocol.OpHandlerRespond:
		var req protocol.HandlerRespond
		if err := msg.DecodePayload(&req); err != nil {
			return nil, err
		}
		h, err := sess.handler(req.HandlerID)
		if err != nil {
			return nil, err
		}
		spec, err := sess.responseSpec(req)
		if err != nil {
			return nil, err
		}
		return nil, h.SetResponse(spec)

	case protocol.OpHandlerClear:
		h, err := sess.handlerRef(msg)
		if err != nil {
			return nil, err
		}
		h.Clear()
		return nil, nil

	case protocol.OpHandlerCheckTimes:
		h, err := sess.handlerRef(msg)
		if err != nil {
			return nil, err
		}
		return nil, h.CheckTimes()

	case protocol.OpHandlerRequests:
		h, err := sess.handlerRef(msg)
		if err != nil {
			return nil, err
		}
		return encodeSaved(h.Requests())

	case protocol.OpInterceptorClear:
		sess.registry.Clear()
		return nil, nil

	case protocol.OpInterceptorCheck:
		return nil, sess.registry.CheckTimes()

	case protocol.OpInterceptorOptions:
		var req protocol.Options
		if err := msg.DecodePayload(&req); err != nil {
			return nil, err
		}
		if req.Unhandled == nil {
			return nil, nil
		}
		strategy, err := req.Unhandled.ToEngine()
		if err != nil {
			return nil, err
		}
		return nil, sess.registry.SetUnhandled(strategy)

	default:
		return nil, fmt.Errorf("unknown operation %q", msg.Op)
	}
}

func (sess *session) createHandler(req protocol.HandlerCreate) (protocol.HandlerRef, error) {
	if err := mock.ValidateMethod(req.Method); err != nil {
		return protocol.HandlerRef{}, err
	}
	full := matching.JoinPath("/"+sess.id, req.Path)
	if !matching.ValidatePath(full) {
		return protocol.HandlerRef{}, &mock.ValidationError{Field: "path", Message: fmt.Sprintf("invalid handler path %q", req.Path)}
	}
	h := sess.registry.Register(req.Method, full)
	return protocol.HandlerRef{HandlerID: h.ID(), Path: h.Path()}, nil
}

func (sess *session) handler(handlerID string) (*engine.HTTPRequestHandler, error) {
	h, ok := sess.registry.Handler(handlerID)
	if !ok {
		return nil, fmt.Errorf("handler %s: %w", handlerID, protocol.ErrNotFound)
	}
	return h, nil
}

func (sess *session) handlerRef(msg *protocol.Message) (*engine.HTTPRequestHandler, error) {
	var ref protocol.HandlerRef
	if err := msg.DecodePayload(&ref); err != nil {
		return nil, err
	}
	return sess.handler(ref.HandlerID)
}

func (sess *session) delay(req protocol.HandlerDelay) (mock.Delay, error) {
	switch req.Kind {
	case "", "none":
		return mock.NoDelay(), nil
	case "fixed":
		return mock.FixedDelay(req.Fixed), nil
	case "range":
		return mock.RangeDelay(req.Min, req.Max), nil
	case "computed":
		if req.CallbackID == "" {
			return mock.Delay{}, fmt.Errorf("computed delay without callback: %w", mock.ErrInvalidDelay)
		}
		return mock.ComputedDelay(sess.delayFunc(req.CallbackID)), nil
	default:
		return mock.Delay{}, fmt.Errorf("unknown delay kind %q: %w", req.Kind, mock.ErrInvalidDelay)
	}
}

func (sess *session) responseSpec(req protocol.HandlerRespond) (mock.ResponseSpec, error) {
	if req.CallbackID != "" {
		return mock.Dynamic(sess.responseFactory(req.CallbackID)), nil
	}
	action, err := mock.ParseAction(req.Action)
	if err != nil {
		return mock.ResponseSpec{}, err
	}
	switch action {
	case mock.ActionBypass:
		return mock.Static(mock.Bypass()), nil
	case mock.ActionReject:
		return mock.Static(mock.Reject()), nil
	default:
		return mock.Static(mock.Reply(req.Response.ToMock())), nil
	}
}

// predicate, delayFunc and responseFactory run client callbacks over the
// session connection.

func (sess *session) predicate(cbID string) mock.Predicate {
	return func(ctx context.Context, req *mock.Request) (bool, error) {
		var res protocol.RestrictionResult
		if err := sess.invoke(ctx, protocol.OpCallbackRestriction, cbID, req, &res); err != nil {
			return false, err
		}
		return res.Matched, nil
	}
}

func (sess *session) delayFunc(cbID string) mock.DelayFunc {
	return func(ctx context.Context, req *mock.Request) (time.Duration, error) {
		var res protocol.DelayResult
		if err := sess.invoke(ctx, protocol.OpCallbackDelay, cbID, req, &res); err != nil {
			return 0, err
		}
		return res.Delay, nil
	}
}

func (sess *session) responseFactory(cbID string) mock.ResponseFactory {
	return func(ctx context.Context, req *mock.Request) (mock.Outcome, error) {
		var res protocol.Outcome
		if err := sess.invoke(ctx, protocol.OpCallbackResponse, cbID, req, &res); err != nil {
			return mock.Outcome{}, err
		}
		return res.ToMock()
	}
}

func (sess *session) invoke(ctx context.Context, op, cbID string, req *mock.Request, out any) error {
	payload := protocol.CallbackInvoke{CallbackID: cbID, Request: protocol.EncodeRequest(req)}
	return sess.peer.Request(ctx, protocol.TypeInvoke, op, payload, out)
}

func encodeSaved(saved []*engine.SavedRequest) ([]protocol.SavedRequest, error) {
	out := make([]protocol.SavedRequest, 0, len(saved))
	for _, s := range saved {
		wire := protocol.SavedRequest{
			ID:       s.ID,
			Request:  protocol.EncodeRequest(s.Request),
			Received: s.Received,
		}
		if s.Outcome != nil {
			outcome, err := protocol.EncodeOutcome(*s.Outcome)
			if err != nil {
				return nil, err
			}
			wire.Outcome = outcome
		}
		out = append(out, wire)
	}
	return out, nil
}
