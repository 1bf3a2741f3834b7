package protocol

import (
	"encoding/json"
	"fmt"
)

// Version identifies the wire format. It changes when message shapes or
// operations change incompatibly.
const Version = "1"

// Path is the WebSocket endpoint served by the interceptor server.
const Path = "/__interceptd/ws"

// SessionParam is the query parameter carrying a requested session id.
const SessionParam = "session"

// Message types.
const (
	TypeConnected = "connected"
	TypeCall      = "call"
	TypeReply     = "reply"
	TypeInvoke    = "invoke"
	TypeResult    = "result"
)

// Call operations, client to server.
const (
	OpHandlerCreate      = "handler.create"
	OpHandlerWith        = "handler.with"
	OpHandlerDelay       = "handler.delay"
	OpHandlerTimes       = "handler.times"
	OpHandlerRespond     = "handler.respond"
	OpHandlerClear       = "handler.clear"
	OpHandlerCheckTimes  = "handler.checkTimes"
	OpHandlerRequests    = "handler.requests"
	OpInterceptorClear   = "interceptor.clear"
	OpInterceptorCheck   = "interceptor.checkTimes"
	OpInterceptorOptions = "interceptor.options"
)

// Invoke operations, server to client.
const (
	OpCallbackRestriction = "callback.restriction"
	OpCallbackDelay       = "callback.delay"
	OpCallbackResponse    = "callback.response"
)

// Message is one frame on the wire.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`

	// Set on connected messages only.
	SessionID string `json:"sessionId,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty"`
}

// NewMessage builds a message with payload marshaled to JSON.
func NewMessage(typ, msgID, op string, payload any) (*Message, error) {
	msg := &Message{Type: typ, ID: msgID, Op: op}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", op, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// NewConnectedMessage is the first frame a server sends.
func NewConnectedMessage(sessionID, baseURL string) *Message {
	return &Message{Type: TypeConnected, SessionID: sessionID, BaseURL: baseURL}
}

// NewErrorReply answers request msg with err.
func NewErrorReply(req *Message, err error) *Message {
	return &Message{Type: replyType(req.Type), ID: req.ID, Op: req.Op, Error: EncodeError(err)}
}

// Encode serializes a message to JSON bytes.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Op)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Op, err)
	}
	return nil
}

// DecodeMessage deserializes a JSON message.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// replyType maps a request type to the type of its answer.
func replyType(typ string) string {
	if typ == TypeInvoke {
		return TypeResult
	}
	return TypeReply
}
