package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/getmockd/interceptd/internal/id"
	"github.com/getmockd/interceptd/pkg/logging"
)

// MaxMessageSize bounds a single frame. Frames carry request bodies, so the
// websocket default of 32KiB is too small.
const MaxMessageSize = 32 << 20

// HandlerFunc processes an incoming call or invoke. It runs on the read
// loop, so messages are handled in arrival order; implementations that may
// block must hand off to a goroutine. Every request must be answered with
// Peer.Reply.
type HandlerFunc func(ctx context.Context, p *Peer, msg *Message)

// Peer is one end of a session connection. Requests sent with Request are
// correlated with their answers by message id.
type Peer struct {
	conn    *websocket.Conn
	log     *slog.Logger
	handler HandlerFunc
	ids     *id.Sequence

	mu      sync.Mutex
	pending map[string]chan *Message
	closed  bool
	cause   error

	done      chan struct{}
	closeOnce sync.Once
}

// NewPeer wraps conn. idPrefix keeps this side's message ids distinct from
// the other side's.
func NewPeer(conn *websocket.Conn, idPrefix string, handler HandlerFunc, log *slog.Logger) *Peer {
	if log == nil {
		log = logging.Nop()
	}
	conn.SetReadLimit(MaxMessageSize)
	return &Peer{
		conn:    conn,
		log:     log,
		handler: handler,
		ids:     &id.Sequence{Prefix: idPrefix},
		pending: make(map[string]chan *Message),
		done:    make(chan struct{}),
	}
}

// Run reads frames until the connection ends or ctx is done. Pending
// requests fail with ErrSessionClosed when it returns. A normal closure
// returns nil.
func (p *Peer) Run(ctx context.Context) error {
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			p.shutdown(err)
			if p.closedLocally() || websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return nil
			}
			return &TransportError{Op: "read", Err: err}
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			p.log.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch msg.Type {
		case TypeReply, TypeResult:
			p.deliver(msg)
		case TypeCall, TypeInvoke:
			if p.handler == nil {
				_ = p.Reply(ctx, msg, nil, fmt.Errorf("unsupported %s %s", msg.Type, msg.Op))
				continue
			}
			p.handler(ctx, p, msg)
		default:
			p.log.Debug("ignoring frame", "type", msg.Type)
		}
	}
}

// Request sends a call or invoke and waits for its answer. out, when not
// nil, receives the decoded payload.
func (p *Peer) Request(ctx context.Context, typ, op string, payload, out any) error {
	msgID := p.ids.Next()
	msg, err := NewMessage(typ, msgID, op, payload)
	if err != nil {
		return err
	}

	ch := make(chan *Message, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.closedErr()
	}
	p.pending[msgID] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, msgID)
		p.mu.Unlock()
	}()

	if err := p.Send(ctx, msg); err != nil {
		return err
	}

	var reply *Message
	select {
	case reply = <-ch:
	case <-p.done:
		select {
		case reply = <-ch:
		default:
			return p.closedErr()
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if reply.Error != nil {
		return reply.Error.Err()
	}
	if out != nil && len(reply.Payload) > 0 {
		if err := json.Unmarshal(reply.Payload, out); err != nil {
			return fmt.Errorf("%s: decode reply: %w", op, err)
		}
	}
	return nil
}

// Reply answers req with payload, or with err when it is not nil.
func (p *Peer) Reply(ctx context.Context, req *Message, payload any, err error) error {
	if err != nil {
		return p.Send(ctx, NewErrorReply(req, err))
	}
	msg, encErr := NewMessage(replyType(req.Type), req.ID, req.Op, payload)
	if encErr != nil {
		return p.Send(ctx, NewErrorReply(req, encErr))
	}
	return p.Send(ctx, msg)
}

// Send writes one frame.
func (p *Peer) Send(ctx context.Context, msg *Message) error {
	select {
	case <-p.done:
		return p.closedErr()
	default:
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := p.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close ends the session with a normal closure.
func (p *Peer) Close(reason string) {
	p.closeOnce.Do(func() {
		p.shutdown(ErrSessionClosed)
		_ = p.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

// Done is closed once the session has ended.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) deliver(msg *Message) {
	p.mu.Lock()
	ch, ok := p.pending[msg.ID]
	p.mu.Unlock()
	if !ok {
		p.log.Debug("answer for unknown request", "id", msg.ID, "op", msg.Op)
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (p *Peer) shutdown(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.cause == nil {
		p.cause = cause
	}
	close(p.done)
}

func (p *Peer) closedLocally() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Is(p.cause, ErrSessionClosed)
}

func (p *Peer) closedErr() error {
	p.mu.Lock()
	cause := p.cause
	p.mu.Unlock()
	if cause == nil || errors.Is(cause, ErrSessionClosed) {
		return ErrSessionClosed
	}
	return fmt.Errorf("%w: %w", ErrSessionClosed, &TransportError{Op: "read", Err: cause})
}
