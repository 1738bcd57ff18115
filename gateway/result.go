package gateway

import (
	"encoding/json"
)

// ErrorKind classifies a failed tool invocation. Kinds are short
// machine-readable strings exposed to the protocol layer as-is.
type ErrorKind string

const (
	// KindValidation is bad caller input; no network call was made.
	KindValidation ErrorKind = "validation"
	// KindNotFound means the upstream affirmatively reported the
	// resource does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindUpstream means the upstream was reachable but returned an
	// unexpected or invalid response.
	KindUpstream ErrorKind = "upstream"
	// KindTimeout means the call did not complete within the deadline.
	KindTimeout ErrorKind = "timeout"
	// KindConnection means the upstream was unreachable.
	KindConnection ErrorKind = "connection"
	// KindInternal is an unexpected condition inside the router or a
	// service itself.
	KindInternal ErrorKind = "internal"
)

// Result is the uniform contract every tool produces.
// Exactly one of Payload and Error is populated.
type Result struct {
	OK      bool      `json:"ok" yaml:"ok"`
	Payload any       `json:"payload,omitempty" yaml:"payload,omitempty"`
	Error   ErrorKind `json:"error,omitempty" yaml:"error,omitempty"`
	Detail  string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Success returns a successful Result carrying the payload.
func Success(payload any) *Result {
	return &Result{
		OK:      true,
		Payload: payload,
	}
}

// Failure returns a failed Result with a kind and a human-readable detail.
func Failure(kind ErrorKind, detail string) *Result {
	return &Result{
		OK:     false,
		Error:  kind,
		Detail: detail,
	}
}

// Valid reports whether the Result honors the contract:
// a successful Result carries a payload and no error kind,
// a failed Result carries an error kind and no payload.
func (r *Result) Valid() bool {
	if r.OK {
		return r.Payload != nil && r.Error == ""
	}
	return r.Payload == nil && r.Error != ""
}

func (r *Result) String() string {
	bs, _ := json.Marshal(r)
	return string(bs)
}
