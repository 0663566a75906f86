package vm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CallRequest is one authorized function invocation: "run function F of
// program P with these input literals". A full Authorization carries one
// or more of these in call order — the first is the entry point, any
// further ones are calls the entry point's function makes into imports.
type CallRequest struct {
	ProgramID ProgramID `json:"program_id"`
	Function  string    `json:"function"`
	Inputs    []string  `json:"inputs"`
}

// Transition is a single proven step recorded once a CallRequest has been
// executed: its inputs, its outputs, and the transition identifier derived
// from them.
type Transition struct {
	ID        string   `json:"id"`
	ProgramID ProgramID `json:"program_id"`
	Function  string   `json:"function"`
	Inputs    []string `json:"inputs"`
	Outputs   []string `json:"outputs"`
}

// authorizationWire is the JSON shape accepted on the wire for both the
// primary and fee authorizations in a ProveRequest. It is intentionally
// small: a caller builds it offline (see cmd/authorize) from a CallSpec,
// and the prover only ever reads it back.
type authorizationWire struct {
	Requests    []CallRequest `json:"requests"`
	Transitions []Transition  `json:"transitions,omitempty"`
}

// Authorization is the parsed, ready-to-execute form of an
// authorizationWire: an ordered queue of CallRequests not yet executed,
// plus any Transitions already attached (the fee authorization, for
// instance, arrives with none).
type Authorization struct {
	requests    []CallRequest
	transitions []Transition
	cursor      int
}

// CanonicalizeAuthorizationPayload accepts either a raw JSON object or a
// JSON string containing an encoded object (a caller that round-trips an
// Authorization through a text field double-encodes it) and returns the
// canonical compact JSON form plus the parsed Authorization.
func CanonicalizeAuthorizationPayload(raw json.RawMessage) (*Authorization, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, "", fmt.Errorf("empty authorization payload")
	}

	body := trimmed
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, "", fmt.Errorf("authorization payload looked like an encoded string but did not decode: %w", err)
		}
		body = []byte(inner)
	}

	var wire authorizationWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, "", fmt.Errorf("parsing authorization: %w", err)
	}
	if len(wire.Requests) == 0 {
		return nil, "", fmt.Errorf("authorization has no requests")
	}
	for i, req := range wire.Requests {
		if _, err := ParseProgramID(string(req.ProgramID)); err != nil {
			return nil, "", fmt.Errorf("request %d: %w", i, err)
		}
		if req.Function == "" {
			return nil, "", fmt.Errorf("request %d: empty function name", i)
		}
	}

	canonical, err := json.Marshal(wire)
	if err != nil {
		return nil, "", fmt.Errorf("re-encoding authorization: %w", err)
	}

	return &Authorization{requests: wire.Requests, transitions: wire.Transitions}, string(canonical), nil
}

// ParseAuthorization parses an already-canonical compact JSON document,
// for callers that already hold one.
func ParseAuthorization(compactJSON string) (*Authorization, error) {
	auth, _, err := CanonicalizeAuthorizationPayload(json.RawMessage(compactJSON))
	return auth, err
}

// Requests returns the full ordered list of call requests, executed or
// not. Callers must not mutate the returned slice.
func (a *Authorization) Requests() []CallRequest {
	return a.requests
}

// Transitions returns the transitions recorded so far.
func (a *Authorization) Transitions() []Transition {
	return a.transitions
}

// Len reports the number of call requests in the authorization.
func (a *Authorization) Len() int {
	return len(a.requests)
}

// IsEmpty reports whether every request has already been consumed.
func (a *Authorization) IsEmpty() bool {
	return a.cursor >= len(a.requests)
}

// PeekNext returns the next unconsumed call request without advancing the
// cursor — the prover uses this to derive the locator (program,
// function) of the entry call before Process.Execute advances the
// authorization.
func (a *Authorization) PeekNext() (CallRequest, error) {
	if a.IsEmpty() {
		return CallRequest{}, fmt.Errorf("authorization exhausted")
	}
	return a.requests[a.cursor], nil
}

// advance consumes the next call request and records its resulting
// transition. It is unexported: only Process.Execute, which holds the
// proof of having actually run the call, may advance an authorization.
func (a *Authorization) advance(t Transition) {
	a.cursor++
	a.transitions = append(a.transitions, t)
}

// Clone returns a deep copy. The prover hands Process.Execute a clone so
// that executing consumes the copy and leaves the caller's authorization
// unadvanced.
func (a *Authorization) Clone() *Authorization {
	clone := &Authorization{
		requests:    append([]CallRequest(nil), a.requests...),
		transitions: append([]Transition(nil), a.transitions...),
		cursor:      a.cursor,
	}
	return clone
}

// CheckValidEdition verifies that every program referenced by the
// authorization is present in proc at the edition the process currently
// has loaded. When enforceEditions is false this degrades to an existence
// check only — spec.md's ENFORCE_PROGRAM_EDITIONS=false mode.
func (a *Authorization) CheckValidEdition(proc *Process, enforceEditions bool) error {
	for _, req := range a.requests {
		prog, ok := proc.Get(req.ProgramID)
		if !ok {
			return fmt.Errorf("program %s not loaded", req.ProgramID)
		}
		if enforceEditions && prog.Edition == 0 && prog.ID != CreditsProgramID {
			return fmt.Errorf("program %s has no known edition and edition enforcement is on", req.ProgramID)
		}
	}
	return nil
}

// CheckValidRecords is a placeholder for record-membership validation
// (that any record inputs referenced by the authorization are unspent and
// owned by the authorizing key). The reference VM has no record model, so
// this only validates that input literals are non-empty, matching the
// shape check a real VM would perform before proving.
func (a *Authorization) CheckValidRecords() error {
	for _, req := range a.requests {
		for _, in := range req.Inputs {
			if in == "" {
				return fmt.Errorf("program %s function %s has an empty input literal", req.ProgramID, req.Function)
			}
		}
	}
	return nil
}

// digest is the deterministic stand-in for a cryptographic commitment
// used throughout this package to derive transition, execution and fee
// identifiers from their inputs. See trace.go for why crypto/sha256 (not
// a real SNARK) is used here.
func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
