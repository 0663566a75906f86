package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/provable-labs/remote-prover/internal/config"
	"github.com/provable-labs/remote-prover/internal/vm"
)

type fakeFetcher struct {
	programs map[vm.ProgramID]*vm.Program
	editions map[vm.ProgramID]uint16
}

func (f *fakeFetcher) FetchLatestEdition(ctx context.Context, id vm.ProgramID) (uint16, bool, error) {
	edition, ok := f.editions[id]
	return edition, ok, nil
}

func (f *fakeFetcher) FetchProgram(ctx context.Context, id vm.ProgramID, edition uint16) (*vm.Program, error) {
	prog, ok := f.programs[id]
	if !ok {
		return nil, fmt.Errorf("no such program %s", id)
	}
	return prog, nil
}

func addProgramSource() string {
	return `program add_public.aleo;

function add_public:
    input r0 as u32;
    input r1 as u32;
    output r2 as u32;
`
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	prog, err := vm.ParseProgram(addProgramSource())
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	f := &fakeFetcher{
		programs: map[vm.ProgramID]*vm.Program{"add_public.aleo": prog},
		editions: map[vm.ProgramID]uint16{"add_public.aleo": 1},
	}

	cfg := config.Default()
	cfg.RESTEndpointOverride = `{"state_root":"genesis-root","height":10}`

	return New(vm.NewProcess(), f, cfg)
}

func authPayload(t *testing.T, programID, function string, inputs ...string) json.RawMessage {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"requests": []map[string]interface{}{
			{"program_id": programID, "function": function, "inputs": inputs},
		},
	})
	if err != nil {
		t.Fatalf("marshal authorization: %v", err)
	}
	return body
}

func TestProveAdditionScenario(t *testing.T) {
	engine := newTestEngine(t)
	req := Request{Authorization: authPayload(t, "add_public.aleo", "add_public", "5u32", "7u32")}

	resolved, err := engine.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	result, err := engine.Prove(context.Background(), resolved)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if result.TransactionType != "execute" {
		t.Errorf("TransactionType = %s, want execute", result.TransactionType)
	}
	if result.Summary.Transitions != 1 {
		t.Errorf("Transitions = %d, want 1", result.Summary.Transitions)
	}
	if result.HasFee {
		t.Error("expected HasFee=false when no fee authorization is supplied")
	}
	if result.Transaction.Fee != nil {
		t.Error("expected no fee attached to the transaction")
	}
	if len(result.Summary.Outputs) != 1 || result.Summary.Outputs[0] != "12u32" {
		t.Errorf("Outputs = %v, want [12u32]", result.Summary.Outputs)
	}
	if result.Summary.Locator != "add_public.aleo/add_public" {
		t.Errorf("Locator = %s, want add_public.aleo/add_public", result.Summary.Locator)
	}
}

func TestProveWithFee(t *testing.T) {
	engine := newTestEngine(t)
	req := Request{
		Authorization:    authPayload(t, "add_public.aleo", "add_public", "5u32", "7u32"),
		FeeAuthorization: authPayload(t, string(vm.CreditsProgramID), "fee_public", "100u64", "0u64"),
		PriorityFee:      50,
	}

	resolved, err := engine.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	result, err := engine.Prove(context.Background(), resolved)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if !result.HasFee {
		t.Error("expected HasFee=true")
	}
	if result.Transaction.Fee == nil {
		t.Fatal("expected a fee attached to the transaction")
	}
	if result.Transaction.Fee.PriorityMicrocredits != 50 {
		t.Errorf("PriorityMicrocredits = %d, want 50", result.Transaction.Fee.PriorityMicrocredits)
	}
}

func TestProveUnknownProgram(t *testing.T) {
	engine := newTestEngine(t)
	req := Request{Authorization: authPayload(t, "ghost.aleo", "run")}

	if _, err := engine.Resolve(context.Background(), req); err == nil {
		t.Error("expected an error for a program absent from the network")
	}
}

// TestResolveSeedsEveryRequestProgram verifies that Resolve installs
// every program named by the authorization's requests, not just the
// entry call's program — an authorization can carry more than one
// distinct top-level call, and a program among them that isn't a
// transitive import of the entry program must still be resolved.
func TestResolveSeedsEveryRequestProgram(t *testing.T) {
	alpha, err := vm.ParseProgram(`program alpha.aleo;

function run_alpha:
    input r0 as u32;
    output r1 as u32;
`)
	if err != nil {
		t.Fatalf("ParseProgram(alpha): %v", err)
	}
	beta, err := vm.ParseProgram(`program beta.aleo;

function run_beta:
    input r0 as u32;
    output r1 as u32;
`)
	if err != nil {
		t.Fatalf("ParseProgram(beta): %v", err)
	}

	f := &fakeFetcher{
		programs: map[vm.ProgramID]*vm.Program{"alpha.aleo": alpha, "beta.aleo": beta},
		editions: map[vm.ProgramID]uint16{"alpha.aleo": 1, "beta.aleo": 1},
	}
	cfg := config.Default()
	cfg.RESTEndpointOverride = `{"state_root":"genesis-root","height":10}`
	engine := New(vm.NewProcess(), f, cfg)

	payload, err := json.Marshal(map[string]interface{}{
		"requests": []map[string]interface{}{
			{"program_id": "alpha.aleo", "function": "run_alpha", "inputs": []string{"1u32"}},
			{"program_id": "beta.aleo", "function": "run_beta", "inputs": []string{"2u32"}},
		},
	})
	if err != nil {
		t.Fatalf("marshal authorization: %v", err)
	}

	if _, err := engine.Resolve(context.Background(), Request{Authorization: payload}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !engine.process.ContainsProgram("alpha.aleo") {
		t.Error("expected alpha.aleo to be installed")
	}
	if !engine.process.ContainsProgram("beta.aleo") {
		t.Error("expected beta.aleo, named only by the second request, to be installed")
	}
}

func TestResolveThenProveSeparately(t *testing.T) {
	engine := newTestEngine(t)
	req := Request{Authorization: authPayload(t, "add_public.aleo", "add_public", "5u32", "7u32")}

	resolved, err := engine.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Primary == nil {
		t.Fatal("expected a parsed primary authorization")
	}
	if resolved.Fee != nil {
		t.Fatal("expected no fee authorization when none was supplied")
	}

	// Prove can run on a goroutine far removed from Resolve, e.g. after an
	// admission semaphore acquire; it must not need network access again.
	result, err := engine.Prove(context.Background(), resolved)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if result.Summary.Transitions != 1 {
		t.Errorf("Transitions = %d, want 1", result.Summary.Transitions)
	}
}
