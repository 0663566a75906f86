package vm

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// CallMetric records the proving-cost accounting a real VM would produce
// per call: how many R1CS constraints the request, the function body,
// and the response each contributed. The prover reports these back to
// the caller as part of the /prove response summary.
type CallMetric struct {
	ProgramID            ProgramID `json:"program_id"`
	Function             string    `json:"function"`
	Instructions         int       `json:"instructions"`
	RequestConstraints   int       `json:"request_constraints"`
	FunctionConstraints  int       `json:"function_constraints"`
	ResponseConstraints  int       `json:"response_constraints"`
}

// Trace accumulates the transitions produced while executing an
// Authorization, plus the ledger context (height, state root) a Query
// supplied, and is the object ProveExecution/ProveFee turn into a proven
// Execution/Fee.
//
// Trace is not safe for concurrent use: each /prove request owns exactly
// one, built and consumed within a single goroutine dispatched to the
// worker pool.
type Trace struct {
	isFee       bool
	transitions []Transition
	callMetrics []CallMetric
	prepared    bool
	height      uint64
	stateRoot   string
}

// Prepare fetches the ledger context a Trace needs before it can be
// proven. It must be called exactly once, after execution and before
// ProveExecution/ProveFee.
func (t *Trace) Prepare(ctx context.Context, q Query) error {
	height, err := q.CurrentBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("querying block height: %w", err)
	}
	root, err := q.StateRoot(ctx)
	if err != nil {
		return fmt.Errorf("querying state root: %w", err)
	}
	t.height = height
	t.stateRoot = root
	t.prepared = true
	return nil
}

// CallMetrics returns the accumulated per-call proving cost accounting.
func (t *Trace) CallMetrics() []CallMetric {
	return t.callMetrics
}

// IsFee reports whether this trace was built for a fee authorization, for
// inclusion in the /prove summary's is_fee field.
func (t *Trace) IsFee() bool {
	return t.isFee
}

// Transitions returns the transitions accumulated so far.
func (t *Trace) Transitions() []Transition {
	return t.transitions
}

// ProveExecution turns a prepared Trace of non-fee transitions into a
// proven Execution under the given locator and Varuna parameters.
//
// There is no SNARK backend behind this: the "proof" is a SHA-256 digest
// over the transitions, locator, Varuna version, ledger context, and a
// salt drawn from rng, so two proofs of the same trace yield different
// execution ids unless rng is in the same state. Nothing here is
// cryptographically sound. See the package doc comment in program.go.
func (t *Trace) ProveExecution(locator string, version VarunaVersion, rng *rand.Rand) (*Execution, error) {
	if !t.prepared {
		return nil, fmt.Errorf("trace not prepared: call Prepare before proving")
	}
	if t.isFee {
		return nil, fmt.Errorf("trace is a fee trace; use ProveFee")
	}
	if len(t.transitions) == 0 {
		return nil, fmt.Errorf("trace has no transitions to prove")
	}

	salt := strconv.FormatUint(rng.Uint64(), 16)
	parts := []string{locator, version.String(), strconv.FormatUint(t.height, 10), t.stateRoot, salt}
	for _, tr := range t.transitions {
		parts = append(parts, tr.ID)
	}

	return &Execution{
		id:          digest(parts...),
		locator:     locator,
		transitions: append([]Transition(nil), t.transitions...),
		version:     version,
		globalRoot:  t.stateRoot,
	}, nil
}

// ProveFee turns a prepared fee Trace into a proven Fee record. Like
// ProveExecution, "proving" is a digest salted from rng, not a real SNARK.
func (t *Trace) ProveFee(version VarunaVersion, priorityMicrocredits uint64, rng *rand.Rand) (*Fee, error) {
	if !t.prepared {
		return nil, fmt.Errorf("trace not prepared: call Prepare before proving")
	}
	if !t.isFee {
		return nil, fmt.Errorf("trace is not a fee trace; use ProveExecution")
	}
	if len(t.transitions) != 1 {
		return nil, fmt.Errorf("fee trace must have exactly one transition, has %d", len(t.transitions))
	}

	tr := t.transitions[0]
	salt := strconv.FormatUint(rng.Uint64(), 16)
	id := digest("fee", version.String(), strconv.FormatUint(t.height, 10), t.stateRoot, salt, tr.ID)

	base := baseFeeMicrocredits(t.callMetrics)

	return &Fee{
		Kind:                  feeKindForFunction(tr.Function),
		TransitionID:          tr.ID,
		BaseMicrocredits:      base,
		PriorityMicrocredits:  priorityMicrocredits,
		AmountMicrocredits:    base + priorityMicrocredits,
		GlobalStateRoot:       t.stateRoot,
		NumFinalizeOperations: len(t.callMetrics),
		proofID:               id,
	}, nil
}

// feeKindForFunction maps the fee transition's function name to a fee
// kind: credits.aleo exposes fee_private (record-based) and fee_public
// (balance-based), and the reference VM has no third shape.
func feeKindForFunction(function string) FeeKind {
	if strings.Contains(strings.ToLower(function), "private") {
		return FeePrivate
	}
	return FeePublic
}

// baseFeeMicrocredits derives a deterministic base fee from accumulated
// constraint counts, standing in for the real cost-estimation model a VM
// would run. Heavier functions cost more, as they would in production.
func baseFeeMicrocredits(metrics []CallMetric) uint64 {
	var total uint64
	for _, m := range metrics {
		total += uint64(m.RequestConstraints+m.FunctionConstraints+m.ResponseConstraints) * 10
	}
	if total == 0 {
		total = 1_000
	}
	return total
}
