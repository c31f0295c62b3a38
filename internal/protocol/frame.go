// Package protocol implements the JSON frame contract spoken between a client and the hub.
//
// Outbound directives carry a "type" discriminator (LOGIN, UPDATE_STATS); chat
// messages travel as bare objects. Inbound frames are decoded into one of the
// Frame variants so callers switch on a concrete type instead of probing fields.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nfrund/lernsino/internal/domain"
)

// Frame type discriminators.
const (
	TypeLogin       = "LOGIN"
	TypeUpdateStats = "UPDATE_STATS"
	TypeInitState   = "INIT_STATE"
)

// Kind identifies a Frame variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindLogin
	KindStateUpdate
	KindInitState
	KindChat
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindStateUpdate:
		return "state_update"
	case KindInitState:
		return "init_state"
	case KindChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Frame is one discrete unit on the remote channel.
type Frame interface {
	Kind() Kind
}

// Login announces the player's identity to the hub.
type Login struct {
	Username string
}

// StateUpdate pushes the player's stats snapshot to the hub.
type StateUpdate struct {
	Stats domain.UserStats
}

// InitState is the hub's reply to a login, carrying the stored snapshot.
type InitState struct {
	Stats domain.UserStats
}

// Chat carries a chat message with no envelope.
type Chat struct {
	Message domain.ChatMessage
}

// Unknown is anything that could not be classified. Err is set when the
// payload was not valid JSON for its claimed shape.
type Unknown struct {
	Raw []byte
	Err error
}

func (Login) Kind() Kind       { return KindLogin }
func (StateUpdate) Kind() Kind { return KindStateUpdate }
func (InitState) Kind() Kind   { return KindInitState }
func (Chat) Kind() Kind        { return KindChat }
func (Unknown) Kind() Kind     { return KindUnknown }

type loginWire struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type statsWire struct {
	Type  string           `json:"type"`
	Stats domain.UserStats `json:"stats"`
}

// Encode serializes a frame in its wire form.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case Login:
		return json.Marshal(loginWire{Type: TypeLogin, Username: v.Username})
	case StateUpdate:
		return json.Marshal(statsWire{Type: TypeUpdateStats, Stats: v.Stats})
	case InitState:
		return json.Marshal(statsWire{Type: TypeInitState, Stats: v.Stats})
	case Chat:
		return json.Marshal(v.Message)
	case nil:
		return nil, fmt.Errorf("encode frame: nil frame")
	default:
		return nil, fmt.Errorf("encode frame: unsupported kind %s", f.Kind())
	}
}

// Decode classifies a raw inbound payload. It never fails: anything that is
// not a recognised frame comes back as Unknown.
//
// Classification order: INIT_STATE, then any object whose id and text are both
// truthy (non-empty string, non-zero number, true, object or array) is chat,
// whatever else it carries, then the LOGIN and UPDATE_STATS directives.
func Decode(data []byte) Frame {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Unknown{Raw: data, Err: fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)}
	}

	typ := stringField(fields["type"])
	if typ == TypeInitState {
		return InitState{Stats: statsField(fields["stats"])}
	}
	if truthy(fields["id"]) && truthy(fields["text"]) {
		return Chat{Message: chatFromFields(fields)}
	}

	switch typ {
	case TypeLogin:
		return Login{Username: stringField(fields["username"])}
	case TypeUpdateStats:
		return StateUpdate{Stats: statsField(fields["stats"])}
	}
	return Unknown{Raw: data}
}

// chatFromFields builds a message from loosely typed fields. Non-string ids and
// texts keep their JSON text, numeric timestamps are truncated to milliseconds.
func chatFromFields(fields map[string]json.RawMessage) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         stringField(fields["id"]),
		SenderID:   stringField(fields["senderId"]),
		SenderName: stringField(fields["senderName"]),
		Text:       stringField(fields["text"]),
		Timestamp:  millisField(fields["timestamp"]),
		IsSystem:   boolField(fields["isSystem"]),
	}
}

func decodeValue(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// truthy reports whether raw is present and not null, false, 0 or "".
func truthy(raw json.RawMessage) bool {
	v, ok := decodeValue(raw)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func stringField(raw json.RawMessage) string {
	v, ok := decodeValue(raw)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return string(bytes.TrimSpace(raw))
	}
}

func millisField(raw json.RawMessage) int64 {
	v, ok := decodeValue(raw)
	if !ok {
		return 0
	}
	var n json.Number
	switch x := v.(type) {
	case json.Number:
		n = x
	case string:
		n = json.Number(strings.TrimSpace(x))
	default:
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return int64(f)
	}
	return 0
}

func boolField(raw json.RawMessage) bool {
	v, ok := decodeValue(raw)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	default:
		return false
	}
}

func statsField(raw json.RawMessage) domain.UserStats {
	if len(raw) == 0 {
		return nil
	}
	return append(domain.UserStats(nil), raw...)
}
