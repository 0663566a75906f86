package vm

import (
	"context"
	"crypto/rand"
	"encoding/json"
	mrand "math/rand"
	"testing"
)

func newTestRNG(t *testing.T) *mrand.Rand {
	t.Helper()
	var seedBytes [8]byte
	if _, err := rand.Read(seedBytes[:]); err != nil {
		t.Fatalf("seeding rng: %v", err)
	}
	var seed int64
	for _, b := range seedBytes {
		seed = seed<<8 | int64(b)
	}
	return mrand.New(mrand.NewSource(seed))
}

func TestParseProgramBasic(t *testing.T) {
	src := `program add_public.aleo;
import credits.aleo;

function add_public:
    input r0 as u32;
    input r1 as u32;
    output r2 as u32;
`
	prog, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	if prog.ID != "add_public.aleo" {
		t.Errorf("ID = %s, want add_public.aleo", prog.ID)
	}
	if len(prog.Imports) != 1 || prog.Imports[0] != CreditsProgramID {
		t.Errorf("Imports = %v, want [credits.aleo]", prog.Imports)
	}
	if !prog.HasFunction("add_public") {
		t.Error("expected add_public function to be present")
	}
}

func TestParseProgramRejectsMissingDeclaration(t *testing.T) {
	if _, err := ParseProgram("function foo:\n    input r0 as u32;\n"); err == nil {
		t.Error("expected error for missing program declaration")
	}
}

func TestNewProcessPreloadsCredits(t *testing.T) {
	p := NewProcess()
	if !p.ContainsProgram(CreditsProgramID) {
		t.Fatal("expected credits.aleo to be preloaded")
	}
}

func TestAddProgramRejectsMissingImport(t *testing.T) {
	p := NewProcess()
	prog := &Program{ID: "child.aleo", Imports: []ProgramID{"missing.aleo"}}
	if err := p.AddProgram(prog); err == nil {
		t.Error("expected error installing a program with a missing import")
	}
}

func TestAddProgramIdempotent(t *testing.T) {
	p := NewProcess()
	prog := &Program{ID: "standalone.aleo"}
	if err := p.AddProgram(prog); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if err := p.AddProgram(prog); err != nil {
		t.Fatalf("second install should be a no-op, got: %v", err)
	}
}

func TestExecuteAdditionScenario(t *testing.T) {
	p := NewProcess()
	src := `program add_public.aleo;

function add_public:
    input r0 as u32;
    input r1 as u32;
    output r2 as u32;
`
	prog, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	if err := p.AddProgramWithEdition(prog, 1); err != nil {
		t.Fatalf("AddProgramWithEdition: %v", err)
	}

	wire := authorizationWire{Requests: []CallRequest{
		{ProgramID: "add_public.aleo", Function: "add_public", Inputs: []string{"5u32", "7u32"}},
	}}
	body, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal wire: %v", err)
	}
	auth, _, err := CanonicalizeAuthorizationPayload(body)
	if err != nil {
		t.Fatalf("CanonicalizeAuthorizationPayload: %v", err)
	}

	resp, trace, err := p.Execute(context.Background(), auth, false, newTestRNG(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(resp.Outputs) != 1 || resp.Outputs[0] != "12u32" {
		t.Fatalf("Outputs = %v, want [12u32]", resp.Outputs)
	}
	if len(trace.transitions) != 1 {
		t.Fatalf("transitions = %d, want 1", len(trace.transitions))
	}

	if err := trace.Prepare(context.Background(), literalQuery{doc: literalDoc{StateRoot: "root1", Height: 10}}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	execution, err := trace.ProveExecution("add_public.aleo/add_public", VarunaV2, newTestRNG(t))
	if err != nil {
		t.Fatalf("ProveExecution: %v", err)
	}
	if execution.ID() == "" {
		t.Error("expected non-empty execution id")
	}

	txn := FromExecution(execution, nil)
	if txn.Kind != TransactionExecute {
		t.Errorf("Kind = %s, want execute", txn.Kind)
	}
	if _, err := json.Marshal(txn); err != nil {
		t.Fatalf("marshal transaction: %v", err)
	}
}

func TestExecuteUnknownProgram(t *testing.T) {
	p := NewProcess()
	wire := authorizationWire{Requests: []CallRequest{
		{ProgramID: "ghost.aleo", Function: "noop", Inputs: []string{"1u8"}},
	}}
	body, _ := json.Marshal(wire)
	auth, _, err := CanonicalizeAuthorizationPayload(body)
	if err != nil {
		t.Fatalf("CanonicalizeAuthorizationPayload: %v", err)
	}
	if _, _, err := p.Execute(context.Background(), auth, false, newTestRNG(t)); err == nil {
		t.Error("expected error executing against an unloaded program")
	}
}

func TestSelectVarunaVersion(t *testing.T) {
	cases := map[ConsensusVersion]VarunaVersion{
		ConsensusV1: VarunaV1,
		ConsensusV2: VarunaV1,
		ConsensusV3: VarunaV1,
		ConsensusV4: VarunaV2,
		ConsensusV7: VarunaV2,
	}
	for cv, want := range cases {
		if got := SelectVarunaVersion(cv); got != want {
			t.Errorf("SelectVarunaVersion(%v) = %v, want %v", cv, got, want)
		}
	}
}

func TestCanonicalizeAcceptsDoubleEncodedString(t *testing.T) {
	inner := `{"requests":[{"program_id":"add_public.aleo","function":"add_public","inputs":["1u8","2u8"]}]}`
	encoded, err := json.Marshal(inner)
	if err != nil {
		t.Fatalf("marshal inner: %v", err)
	}
	auth, canonical, err := CanonicalizeAuthorizationPayload(encoded)
	if err != nil {
		t.Fatalf("CanonicalizeAuthorizationPayload: %v", err)
	}
	if auth.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", auth.Len())
	}
	if canonical == "" {
		t.Error("expected non-empty canonical form")
	}
}
