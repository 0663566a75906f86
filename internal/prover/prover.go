// Package prover implements the proving pipeline: given a primary
// authorization and an optional fee authorization, it resolves every
// program either one needs, executes both against the shared vm.Process,
// proves the resulting traces, and assembles a broadcast-ready
// vm.Transaction. This mirrors the original prover's prove_transaction
// function step for step, split into a Resolve phase (network I/O, meant
// to run before the admission semaphore is acquired) and a Prove phase
// (VM work plus the ledger query for block height and state root, meant
// to run on the blocking worker pool once a permit is held).
package prover

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/provable-labs/remote-prover/internal/config"
	"github.com/provable-labs/remote-prover/internal/resolver"
	"github.com/provable-labs/remote-prover/internal/vm"
)

// Request is the parsed form of an inbound /prove body.
type Request struct {
	Authorization    json.RawMessage
	FeeAuthorization json.RawMessage
	PriorityFee      uint64
}

// Resolved is a Request whose authorizations have been parsed and whose
// program dependency graphs have already been installed in the shared
// registry — everything Prove needs that does not touch the network.
type Resolved struct {
	Primary     *vm.Authorization
	Fee         *vm.Authorization
	PriorityFee uint64
}

// Summary reports the primary execution's outcome and proving-cost
// accounting, matching the VM's own summary shape from proving.rs.
type Summary struct {
	Locator     string          `json:"locator"`
	OutputIDs   []string        `json:"output_ids"`
	Outputs     []string        `json:"outputs"`
	Transitions int             `json:"transitions"`
	CallMetrics []vm.CallMetric `json:"call_metrics"`
	IsFee       bool            `json:"is_fee"`
}

// Result is everything the HTTP layer needs to build a /prove response.
type Result struct {
	TransactionType string
	ExecutionID     string
	Transaction     *vm.Transaction
	Summary         Summary
	HasFee          bool
}

// Engine owns the shared VM registry and the dependencies needed to
// resolve and prove requests. One Engine is shared by every /prove
// request; neither Resolve nor Prove holds state beyond what each call
// allocates for itself, so both are safe to call concurrently.
type Engine struct {
	process   *vm.Process
	fetch     resolver.Fetcher
	queryBase string
	cfg       *config.ProverConfig
}

// New builds an Engine over the given shared registry and fetcher.
func New(process *vm.Process, fetch resolver.Fetcher, cfg *config.ProverConfig) *Engine {
	return &Engine{
		process:   process,
		fetch:     fetch,
		queryBase: cfg.EffectiveRESTEndpoint(),
		cfg:       cfg,
	}
}

// Resolve parses both authorizations and ensures every program either one
// needs is installed in the shared registry. This is the network-bound
// half of the pipeline and must complete before the caller acquires an
// admission permit, so that a slow explorer never holds a proving slot it
// isn't using yet.
func (e *Engine) Resolve(ctx context.Context, req Request) (*Resolved, error) {
	primary, _, err := vm.CanonicalizeAuthorizationPayload(req.Authorization)
	if err != nil {
		return nil, fmt.Errorf("parsing authorization: %w", err)
	}
	if err := resolver.EnsureProgramsAvailable(ctx, e.process, e.fetch, seedPrograms(primary), e.cfg.EnforceProgramEditions); err != nil {
		return nil, fmt.Errorf("resolving programs: %w", err)
	}

	var fee *vm.Authorization
	if len(req.FeeAuthorization) > 0 {
		fee, _, err = vm.CanonicalizeAuthorizationPayload(req.FeeAuthorization)
		if err != nil {
			return nil, fmt.Errorf("parsing fee authorization: %w", err)
		}
		if err := resolver.EnsureProgramsAvailable(ctx, e.process, e.fetch, seedPrograms(fee), e.cfg.EnforceProgramEditions); err != nil {
			return nil, fmt.Errorf("resolving fee programs: %w", err)
		}
	}

	return &Resolved{Primary: primary, Fee: fee, PriorityFee: req.PriorityFee}, nil
}

// seedPrograms collects every program id an authorization names, either
// as a call still to be made (Requests) or as a transition already
// attached to it (Transitions) — the full seed set the resolver's import
// walk must start from, not just the entry point's program.
func seedPrograms(auth *vm.Authorization) []vm.ProgramID {
	seen := make(map[vm.ProgramID]bool)
	var ids []vm.ProgramID
	add := func(id vm.ProgramID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, req := range auth.Requests() {
		add(req.ProgramID)
	}
	for _, t := range auth.Transitions() {
		add(t.ProgramID)
	}
	return ids
}

// Prove runs the VM-bound half of the pipeline against an already
// Resolved request: validate against consensus rules, execute to produce
// a trace, prepare the trace against a ledger query, prove execution and
// (optionally) fee, and assemble a transaction. Intended to run on a
// blocking worker, never on an I/O goroutine.
func (e *Engine) Prove(ctx context.Context, resolved *Resolved) (*Result, error) {
	auth := resolved.Primary

	if err := auth.CheckValidEdition(e.process, e.cfg.EnforceProgramEditions); err != nil {
		return nil, fmt.Errorf("validating authorization edition: %w", err)
	}
	if err := auth.CheckValidRecords(); err != nil {
		return nil, fmt.Errorf("validating authorization records: %w", err)
	}

	query, err := vm.NewQuery(e.queryBase, e.cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("building ledger query: %w", err)
	}

	height, err := query.CurrentBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying current block height: %w", err)
	}
	varunaVersion := vm.SelectVarunaVersion(vm.ConsensusVersionForHeight(height))

	entry, err := auth.PeekNext()
	if err != nil {
		return nil, fmt.Errorf("reading entry call: %w", err)
	}
	locator := fmt.Sprintf("%s/%s", entry.ProgramID, entry.Function)

	response, primaryTrace, err := e.process.Execute(ctx, auth.Clone(), false, newRequestRNG())
	if err != nil {
		return nil, fmt.Errorf("executing authorization: %w", err)
	}
	if err := primaryTrace.Prepare(ctx, query); err != nil {
		return nil, fmt.Errorf("preparing execution trace: %w", err)
	}
	execution, err := primaryTrace.ProveExecution(locator, varunaVersion, newRequestRNG())
	if err != nil {
		return nil, fmt.Errorf("proving execution: %w", err)
	}

	summary := Summary{
		Locator:     locator,
		OutputIDs:   response.OutputIDs,
		Outputs:     response.Outputs,
		Transitions: len(execution.Transitions()),
		CallMetrics: append([]vm.CallMetric(nil), primaryTrace.CallMetrics()...),
		IsFee:       primaryTrace.IsFee(),
	}

	var fee *vm.Fee
	hasFee := resolved.Fee != nil
	if hasFee {
		feeAuth := resolved.Fee
		if err := feeAuth.CheckValidEdition(e.process, e.cfg.EnforceProgramEditions); err != nil {
			return nil, fmt.Errorf("validating fee authorization edition: %w", err)
		}
		if err := feeAuth.CheckValidRecords(); err != nil {
			return nil, fmt.Errorf("validating fee authorization records: %w", err)
		}

		_, feeTrace, err := e.process.Execute(ctx, feeAuth.Clone(), true, newRequestRNG())
		if err != nil {
			return nil, fmt.Errorf("executing fee authorization: %w", err)
		}
		if err := feeTrace.Prepare(ctx, query); err != nil {
			return nil, fmt.Errorf("preparing fee trace: %w", err)
		}
		fee, err = feeTrace.ProveFee(varunaVersion, resolved.PriorityFee, newRequestRNG())
		if err != nil {
			return nil, fmt.Errorf("proving fee: %w", err)
		}
		summary.Transitions += len(feeTrace.CallMetrics())
		summary.CallMetrics = append(summary.CallMetrics, feeTrace.CallMetrics()...)
	}

	txn := vm.FromExecution(execution, fee)

	return &Result{
		TransactionType: string(txn.Kind),
		ExecutionID:     execution.ID(),
		Transaction:     txn,
		Summary:         summary,
		HasFee:          hasFee,
	}, nil
}

// newRequestRNG seeds a fresh, unshared math/rand source from crypto/rand
// so that proving randomness never crosses a request boundary — two
// concurrent /prove calls must not observe or influence each other's
// "proof" digests via a shared generator.
func newRequestRNG() *mrand.Rand {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing is a platform-level problem; fall back to
		// a time-derived seed rather than panicking mid-request.
		return mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	return mrand.New(mrand.NewSource(int64(binary.BigEndian.Uint64(seed[:]))))
}
