package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/provable-labs/remote-prover/internal/vm"
)

type fakeFetcher struct {
	programs          map[vm.ProgramID]*vm.Program
	editions          map[vm.ProgramID]uint16
	calls             map[vm.ProgramID]int
	editionCalls      map[vm.ProgramID]int
	requestedEditions map[vm.ProgramID]uint16
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		programs:     map[vm.ProgramID]*vm.Program{},
		editions:     map[vm.ProgramID]uint16{},
		calls:        map[vm.ProgramID]int{},
		editionCalls: map[vm.ProgramID]int{},
	}
}

func (f *fakeFetcher) add(id vm.ProgramID, edition uint16, imports ...vm.ProgramID) {
	f.programs[id] = &vm.Program{ID: id, Imports: imports}
	f.editions[id] = edition
}

func (f *fakeFetcher) FetchLatestEdition(ctx context.Context, id vm.ProgramID) (uint16, bool, error) {
	f.editionCalls[id]++
	edition, ok := f.editions[id]
	return edition, ok, nil
}

func (f *fakeFetcher) FetchProgram(ctx context.Context, id vm.ProgramID, edition uint16) (*vm.Program, error) {
	f.calls[id]++
	if f.requestedEditions == nil {
		f.requestedEditions = map[vm.ProgramID]uint16{}
	}
	f.requestedEditions[id] = edition
	prog, ok := f.programs[id]
	if !ok {
		return nil, fmt.Errorf("no such program %s", id)
	}
	return prog, nil
}

func TestEnsureProgramsAvailableSimpleChain(t *testing.T) {
	proc := vm.NewProcess()
	f := newFakeFetcher()
	f.add("leaf.aleo", 1)
	f.add("mid.aleo", 1, "leaf.aleo")
	f.add("top.aleo", 1, "mid.aleo", vm.CreditsProgramID)

	if err := EnsureProgramsAvailable(context.Background(), proc, f, []vm.ProgramID{"top.aleo"}, true); err != nil {
		t.Fatalf("EnsureProgramsAvailable: %v", err)
	}

	for _, id := range []vm.ProgramID{"leaf.aleo", "mid.aleo", "top.aleo"} {
		if !proc.ContainsProgram(id) {
			t.Errorf("expected %s to be installed", id)
		}
	}
	if f.calls["leaf.aleo"] != 1 {
		t.Errorf("leaf.aleo fetched %d times, want 1", f.calls["leaf.aleo"])
	}
}

func TestEnsureProgramsAvailableDiamondFetchesOnce(t *testing.T) {
	proc := vm.NewProcess()
	f := newFakeFetcher()
	f.add("base.aleo", 1)
	f.add("left.aleo", 1, "base.aleo")
	f.add("right.aleo", 1, "base.aleo")
	f.add("top.aleo", 1, "left.aleo", "right.aleo")

	if err := EnsureProgramsAvailable(context.Background(), proc, f, []vm.ProgramID{"top.aleo"}, true); err != nil {
		t.Fatalf("EnsureProgramsAvailable: %v", err)
	}
	if f.calls["base.aleo"] != 1 {
		t.Errorf("base.aleo fetched %d times, want 1", f.calls["base.aleo"])
	}
}

func TestEnsureProgramsAvailableUnknownProgram(t *testing.T) {
	proc := vm.NewProcess()
	f := newFakeFetcher()

	err := EnsureProgramsAvailable(context.Background(), proc, f, []vm.ProgramID{"ghost.aleo"}, true)
	if err == nil {
		t.Fatal("expected error for a program absent from the network")
	}
}

func TestEnsureProgramsAvailableRejectsCycle(t *testing.T) {
	proc := vm.NewProcess()
	f := newFakeFetcher()
	f.add("a.aleo", 1, "b.aleo")
	f.add("b.aleo", 1, "a.aleo")

	err := EnsureProgramsAvailable(context.Background(), proc, f, []vm.ProgramID{"a.aleo"}, true)
	if err == nil {
		t.Fatal("expected error resolving a cyclic import graph")
	}
	if proc.ContainsProgram("a.aleo") || proc.ContainsProgram("b.aleo") {
		t.Error("expected no partial installation after a cycle error")
	}
}

func TestEnsureProgramsAvailableSkipsAlreadyLoaded(t *testing.T) {
	proc := vm.NewProcess()
	if err := EnsureProgramsAvailable(context.Background(), proc, newFakeFetcher(), []vm.ProgramID{vm.CreditsProgramID}, true); err != nil {
		t.Fatalf("EnsureProgramsAvailable on credits.aleo should be a no-op: %v", err)
	}
}

// TestEnsureProgramsAvailableWithoutEditionEnforcement verifies that with
// enforceEditions=false the resolver never calls FetchLatestEdition,
// fetches programs version-agnostically at edition 0, and installs them
// with AddProgram rather than AddProgramWithEdition.
func TestEnsureProgramsAvailableWithoutEditionEnforcement(t *testing.T) {
	proc := vm.NewProcess()
	f := newFakeFetcher()
	f.add("leaf.aleo", 1)
	f.add("top.aleo", 1, "leaf.aleo")

	if err := EnsureProgramsAvailable(context.Background(), proc, f, []vm.ProgramID{"top.aleo"}, false); err != nil {
		t.Fatalf("EnsureProgramsAvailable: %v", err)
	}

	for _, id := range []vm.ProgramID{"leaf.aleo", "top.aleo"} {
		if !proc.ContainsProgram(id) {
			t.Errorf("expected %s to be installed", id)
		}
		if f.editionCalls[id] != 0 {
			t.Errorf("FetchLatestEdition called %d times for %s, want 0 when enforcement is off", f.editionCalls[id], id)
		}
		if got := f.requestedEditions[id]; got != 0 {
			t.Errorf("FetchProgram requested edition %d for %s, want 0", got, id)
		}
	}
}
