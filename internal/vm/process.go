package vm

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// Process is the shared, monotonically-growing registry of loaded
// programs: every program a /prove request's authorization has ever
// needed, across every request this server instance has handled.
//
// Locking discipline mirrors the teacher's read-heavy, write-rare
// function pool: lookups (ContainsProgram, Get) take the read lock and
// are expected to dominate; installs (AddProgram, AddProgramWithEdition)
// take the write lock and re-check membership under it, since a
// concurrent request may have installed the same program first. A single
// Process is shared by every in-flight request; nothing here is per-call
// state.
type Process struct {
	mu       sync.RWMutex
	programs map[ProgramID]*Program
}

// NewProcess returns a Process with credits.aleo pre-loaded, as Invariant
// 3 requires: callers must never attempt to fetch it remotely.
func NewProcess() *Process {
	p := &Process{programs: make(map[ProgramID]*Program)}
	p.programs[CreditsProgramID] = creditsProgram()
	return p
}

// creditsProgram is the built-in credits.aleo definition: a fee-transfer
// surface wide enough for the fee pipeline to call into, with no imports
// of its own.
func creditsProgram() *Program {
	return &Program{
		ID:      CreditsProgramID,
		Edition: 1,
		Functions: []FunctionSignature{
			{
				Name:    "fee_public",
				Inputs:  []string{"input r0 as u64", "input r1 as u64"},
				Outputs: []string{"output r2 as boolean"},
			},
			{
				Name:    "fee_private",
				Inputs:  []string{"input r0 as u64", "input r1 as u64"},
				Outputs: []string{"output r2 as boolean"},
			},
			{
				Name:    "transfer_public",
				Inputs:  []string{"input r0 as address", "input r1 as u64"},
				Outputs: []string{"output r2 as boolean"},
			},
		},
	}
}

// ContainsProgram reports whether id is currently loaded, at any edition.
func (p *Process) ContainsProgram(id ProgramID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.programs[id]
	return ok
}

// Get returns the loaded Program for id, if any.
func (p *Process) Get(id ProgramID) (*Program, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prog, ok := p.programs[id]
	return prog, ok
}

// ProgramIDs returns a snapshot of every currently loaded program id, for
// diagnostics.
func (p *Process) ProgramIDs() []ProgramID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]ProgramID, 0, len(p.programs))
	for id := range p.programs {
		ids = append(ids, id)
	}
	return ids
}

// AddProgram installs prog if every import it declares is already loaded,
// at edition 0 (unknown/unenforced). It re-checks membership under the
// write lock before installing: two goroutines resolving the same program
// concurrently must not both "win" (and must not error on the second
// attempt — the second is a no-op success).
func (p *Process) AddProgram(prog *Program) error {
	return p.addProgram(prog, 0)
}

// AddProgramWithEdition is AddProgram plus a known edition number, used
// when the fetcher successfully resolved the program's latest edition
// from the network before downloading its source.
func (p *Process) AddProgramWithEdition(prog *Program, edition uint16) error {
	return p.addProgram(prog, edition)
}

func (p *Process) addProgram(prog *Program, edition uint16) error {
	if prog == nil {
		return fmt.Errorf("nil program")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.programs[prog.ID]; exists {
		// Another goroutine installed it first (or the resolver's
		// post-order walk revisited it); installing the identical
		// program twice is not an error.
		return nil
	}

	for _, imp := range prog.Imports {
		if _, ok := p.programs[imp]; !ok {
			return fmt.Errorf("cannot install %s: import %s is not loaded", prog.ID, imp)
		}
	}

	installed := *prog
	installed.Edition = edition
	p.programs[prog.ID] = &installed
	return nil
}

// Execute runs every call request remaining in auth against the loaded
// programs, in order, accumulating a Transition per call. It returns the
// Response of the first call executed (the entry point's own response) and
// the Trace built along the way, ready for Prepare and then
// ProveExecution or ProveFee.
//
// rng must not be shared across concurrent calls to Execute: each /prove
// request is expected to construct its own *rand.Rand (seeded from
// crypto/rand at request start), matching the VM's requirement that
// proving randomness never cross request boundaries.
func (p *Process) Execute(ctx context.Context, auth *Authorization, isFee bool, rng *rand.Rand) (*Response, *Trace, error) {
	if auth.IsEmpty() {
		return nil, nil, fmt.Errorf("authorization has no requests to execute")
	}

	trace := &Trace{isFee: isFee}
	var entryResponse *Response

	for !auth.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		req, err := auth.PeekNext()
		if err != nil {
			return nil, nil, err
		}

		prog, ok := p.Get(req.ProgramID)
		if !ok {
			return nil, nil, fmt.Errorf("program %s is not loaded", req.ProgramID)
		}
		if !prog.HasFunction(req.Function) {
			return nil, nil, fmt.Errorf("program %s has no function %s", req.ProgramID, req.Function)
		}

		var fn FunctionSignature
		for _, candidate := range prog.Functions {
			if candidate.Name == req.Function {
				fn = candidate
				break
			}
		}

		resp := evalCall(prog.ID, fn, req.Inputs)
		if entryResponse == nil {
			entryResponse = resp
		}

		transition := Transition{
			ProgramID: req.ProgramID,
			Function:  req.Function,
			Inputs:    req.Inputs,
			Outputs:   resp.Outputs,
		}
		transition.ID = digest(string(req.ProgramID), req.Function, digest(req.Inputs...), digest(resp.Outputs...))

		trace.transitions = append(trace.transitions, transition)
		trace.callMetrics = append(trace.callMetrics, callMetricFor(prog.ID, req.Function, fn))

		auth.advance(transition)
	}

	return entryResponse, trace, nil
}

// evalCall computes the Response for a single call, using builtin
// arithmetic semantics where the function name matches a recognized
// pattern and deterministic placeholders otherwise.
func evalCall(programID ProgramID, fn FunctionSignature, inputs []string) *Response {
	if result, ok := evalArithmetic(fn.Name, inputs); ok && len(fn.Outputs) >= 1 {
		outputs := make([]string, len(fn.Outputs))
		outputs[0] = result
		for i := 1; i < len(outputs); i++ {
			outputs[i] = placeholderOutput(programID, fn.Name, i, outputType(fn.Outputs[i]), inputs)
		}
		return &Response{Outputs: outputs, OutputIDs: outputIDs(programID, fn.Name, outputs)}
	}

	if len(fn.Outputs) == 0 {
		return &Response{}
	}
	outputs := make([]string, len(fn.Outputs))
	for i, decl := range fn.Outputs {
		outputs[i] = placeholderOutput(programID, fn.Name, i, outputType(decl), inputs)
	}
	return &Response{Outputs: outputs, OutputIDs: outputIDs(programID, fn.Name, outputs)}
}

func outputIDs(programID ProgramID, function string, outputs []string) []string {
	ids := make([]string, len(outputs))
	for i, out := range outputs {
		ids[i] = digest(string(programID), function, "output", fmt.Sprint(i), out)
	}
	return ids
}

// callMetricFor derives placeholder constraint counts for accounting
// purposes, proportional to the number of inputs/outputs a call has —
// standing in for the real circuit-size accounting a VM would report.
func callMetricFor(programID ProgramID, function string, fn FunctionSignature) CallMetric {
	return CallMetric{
		ProgramID:           programID,
		Function:            function,
		Instructions:        len(fn.Inputs) + len(fn.Outputs) + 1,
		RequestConstraints:  len(fn.Inputs) * 8,
		FunctionConstraints: (len(fn.Inputs) + len(fn.Outputs)) * 16,
		ResponseConstraints: len(fn.Outputs) * 8,
	}
}
