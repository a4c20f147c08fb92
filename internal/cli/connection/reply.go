package connection

import "github.com/tidwall/redcon"

// Kind is the type of a decoded reply.
type Kind int

const (
	KindStatus Kind = iota
	KindError
	KindInteger
	KindBulk
	KindNull
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindNull:
		return "null"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Reply is one decoded server reply. Str holds status, error and bulk
// text; Int holds integers; Elems holds array elements.
type Reply struct {
	Kind  Kind
	Str   string
	Int   int64
	Elems []Reply
}

// ReplyError is an error reply sent by the server.
type ReplyError string

func (e ReplyError) Error() string { return string(e) }

// Err returns the server error carried by an error reply, or nil.
func (r Reply) Err() error {
	if r.Kind != KindError {
		return nil
	}
	return ReplyError(r.Str)
}

// fromRESP copies a parsed value out of the read buffer.
func fromRESP(v redcon.RESP) Reply {
	switch v.Type {
	case redcon.String:
		return Reply{Kind: KindStatus, Str: v.String()}
	case redcon.Error:
		return Reply{Kind: KindError, Str: v.String()}
	case redcon.Integer:
		return Reply{Kind: KindInteger, Int: v.Int()}
	case redcon.Bulk:
		if v.Data == nil {
			return Reply{Kind: KindNull}
		}
		return Reply{Kind: KindBulk, Str: v.String()}
	default:
		if v.Count < 0 {
			return Reply{Kind: KindNull}
		}
		r := Reply{Kind: KindArray, Elems: make([]Reply, 0, v.Count)}
		v.ForEach(func(e redcon.RESP) bool {
			r.Elems = append(r.Elems, fromRESP(e))
			return true
		})
		return r
	}
}

func validReplyType(b byte) bool {
	switch redcon.Type(b) {
	case redcon.String, redcon.Error, redcon.Integer, redcon.Bulk, redcon.Array:
		return true
	}
	return false
}
