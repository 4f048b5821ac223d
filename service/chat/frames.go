package chat

import (
	"bytes"
	"encoding/json"

	"PPRelay/tools/decode"
	"PPRelay/tools/errs"
)

// FrameKind is the routing class of an inbound payload.
type FrameKind int

const (
	KindInvalid FrameKind = iota
	KindFanout
	KindRegister
)

func (k FrameKind) String() string {
	switch k {
	case KindFanout:
		return "fanout"
	case KindRegister:
		return "register"
	default:
		return "invalid"
	}
}

// Keys a chat message must carry, all of them, to be fanned out.
var fanoutKeys = [...]string{"id", "name", "userIds", "messages", "unread"}

const registerKey = "user_id"

// Frame is one classified inbound payload. Raw is kept untouched so
// fan-out forwards exactly what the sender wrote.
type Frame struct {
	Kind       FrameKind
	Raw        []byte
	Recipients []string // KindFanout
	UserId     string   // KindRegister
}

type fanoutPayload struct {
	ID       any      `json:"id"`
	Name     any      `json:"name"`
	UserIds  []string `json:"userIds"`
	Messages any      `json:"messages"`
	Unread   any      `json:"unread"`
}

// Classify picks the frame kind by key presence alone. Chat messages win
// over registration when both match.
func Classify(doc map[string]any) FrameKind {
	if doc == nil {
		return KindInvalid
	}
	if hasAll(doc, fanoutKeys[:]...) {
		return KindFanout
	}
	if _, ok := doc[registerKey]; ok {
		return KindRegister
	}
	return KindInvalid
}

// ParseFrame decodes and classifies raw. Every error it returns matches
// errs.ErrInvalidStructure; the returned Frame is then KindInvalid.
func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{Kind: KindInvalid, Raw: raw}

	doc, isObject, err := decode.Document(raw)
	if err != nil {
		return f, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	if !isObject {
		return f, errs.ErrUnknownShape.WrapMsg("document is not an object")
	}

	switch Classify(doc) {
	case KindFanout:
		if !decode.IsArray(doc, "userIds") {
			return f, errs.ErrBadField.WrapMsg("userIds must be an array")
		}
		p, err := decode.DecodeMap[fanoutPayload](doc)
		if err != nil {
			return f, errs.ErrBadField.WrapMsg(err.Error())
		}
		f.Kind = KindFanout
		f.Recipients = p.UserIds
	case KindRegister:
		user, err := decode.ReadScalar(doc, registerKey)
		if err != nil {
			return f, errs.ErrBadField.WrapMsg(err.Error())
		}
		f.Kind = KindRegister
		f.UserId = user
	default:
		return f, errs.ErrUnknownShape.Wrap()
	}
	return f, nil
}

func hasAll(doc map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := doc[k]; !ok {
			return false
		}
	}
	return true
}

// ---- 构造服务端回执 ----

type registeredAck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorReply struct {
	Error string `json:"error"`
}

// BuildRegisteredAck is the reply to a successful registration.
func BuildRegisteredAck(user string) []byte {
	return marshalReply(registeredAck{
		Status:  "success",
		Message: "User " + user + " connected.",
	})
}

// BuildInvalidReply is the reply to any payload that is neither a chat
// message nor a registration.
func BuildInvalidReply() []byte {
	return marshalReply(errorReply{Error: errs.ErrInvalidStructure.Msg})
}

func marshalReply(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// only fixed structs of strings go through here
	_ = enc.Encode(v)
	return bytes.TrimRight(buf.Bytes(), "\n")
}
