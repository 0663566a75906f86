// Package resolver walks a program's import graph and ensures every
// program an authorization needs is installed in the shared vm.Process
// registry before proving starts. The algorithm is an iterative two-pass
// depth-first walk over an explicit work stack — ported from the
// original prover's ensure_programs_available — rather than a recursive
// walk, so that a program cycle is caught as "already scheduled" instead
// of blowing the call stack.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/provable-labs/remote-prover/internal/fetcher"
	"github.com/provable-labs/remote-prover/internal/metrics"
	"github.com/provable-labs/remote-prover/internal/vm"
)

// Fetcher is the subset of *fetcher.Fetcher the resolver needs, so tests
// can supply a fake without standing up an HTTP server.
type Fetcher interface {
	FetchLatestEdition(ctx context.Context, id vm.ProgramID) (edition uint16, ok bool, err error)
	FetchProgram(ctx context.Context, id vm.ProgramID, edition uint16) (*vm.Program, error)
}

var _ Fetcher = (*fetcher.Fetcher)(nil)

// workItem is a stack frame: an import that still needs resolving
// (ready=false) or one whose own imports have all been installed and is
// now ready to be installed itself (ready=true).
type workItem struct {
	id    vm.ProgramID
	ready bool
}

// EnsureProgramsAvailable resolves and installs every program transitively
// imported by entryPrograms that proc does not already have loaded. It
// never re-fetches a program already present in proc (including
// credits.aleo, which is always pre-seeded), and never fetches the same
// program twice within a single call even if it is imported by more than
// one node in the graph.
func EnsureProgramsAvailable(ctx context.Context, proc *vm.Process, fetch Fetcher, entryPrograms []vm.ProgramID, enforceEditions bool) error {
	start := time.Now()
	outcome := "ok"
	defer func() { metrics.RecordResolution(outcome, time.Since(start).Milliseconds()) }()

	stack := make([]workItem, 0, len(entryPrograms))
	for _, id := range entryPrograms {
		stack = append(stack, workItem{id: id})
	}

	scheduled := make(map[vm.ProgramID]bool)
	fetched := make(map[vm.ProgramID]*vm.Program)
	editions := make(map[vm.ProgramID]uint16)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			outcome = "canceled"
			return err
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if proc.ContainsProgram(item.id) {
			continue
		}

		if item.ready {
			prog, ok := fetched[item.id]
			if !ok {
				outcome = "error"
				return fmt.Errorf("internal error: %s marked ready with no fetched source", item.id)
			}
			if enforceEditions {
				if err := proc.AddProgramWithEdition(prog, editions[item.id]); err != nil {
					outcome = "error"
					return fmt.Errorf("installing %s: %w", item.id, err)
				}
			} else {
				if err := proc.AddProgram(prog); err != nil {
					outcome = "error"
					return fmt.Errorf("installing %s: %w", item.id, err)
				}
			}
			continue
		}

		if scheduled[item.id] {
			// Already being fetched elsewhere on this stack; its
			// "ready" frame (or the install it triggers) will run
			// once its own dependents are satisfied. Re-pushing here
			// would loop forever on an import cycle.
			continue
		}
		scheduled[item.id] = true

		var edition uint16
		if enforceEditions {
			var found bool
			var err error
			edition, found, err = fetch.FetchLatestEdition(ctx, item.id)
			if err != nil {
				outcome = "error"
				return fmt.Errorf("resolving edition for %s: %w", item.id, err)
			}
			if !found {
				outcome = "error"
				return fmt.Errorf("program %s is not available on the configured network", item.id)
			}
		}

		prog, err := fetch.FetchProgram(ctx, item.id, edition)
		if err != nil {
			outcome = "error"
			return fmt.Errorf("fetching program %s: %w", item.id, err)
		}

		fetched[item.id] = prog
		editions[item.id] = edition

		stack = append(stack, workItem{id: item.id, ready: true})
		for i := len(prog.Imports) - 1; i >= 0; i-- {
			imp := prog.Imports[i]
			if imp == item.id {
				outcome = "error"
				return fmt.Errorf("program %s imports itself", item.id)
			}
			stack = append(stack, workItem{id: imp})
		}
	}

	return nil
}
