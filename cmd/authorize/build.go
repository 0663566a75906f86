package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/provable-labs/remote-prover/internal/authspec"
	"github.com/provable-labs/remote-prover/internal/cache"
	"github.com/provable-labs/remote-prover/internal/fetcher"
	"github.com/provable-labs/remote-prover/internal/vm"
)

// authorizationDoc mirrors vm's unexported authorizationWire shape. It is
// declared independently here rather than imported because cmd/authorize
// only ever writes this shape, never parses it back — the prover is the
// only reader, via vm.CanonicalizeAuthorizationPayload.
type authorizationDoc struct {
	Requests []vm.CallRequest `json:"requests"`
}

// proveRequestDoc is the document this tool prints to stdout: exactly the
// body internal/httpapi expects on POST /prove.
type proveRequestDoc struct {
	Authorization    json.RawMessage `json:"authorization"`
	FeeAuthorization json.RawMessage `json:"fee_authorization,omitempty"`
	PriorityFee      uint64          `json:"priority_fee,omitempty"`
	Broadcast        bool            `json:"broadcast"`
}

func buildCmd() *cobra.Command {
	var (
		specPath    string
		endpoint    string
		priorityFee uint64
		broadcast   bool
		output      string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a ProveRequest JSON document from a call spec",
		Long:  "Resolve the target program against an explorer, validate the requested function exists, and print a ProveRequest JSON document ready to POST to /prove",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := authspec.ParseFile(specPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			fetch := fetcher.New(nil, endpoint, cache.NewInMemoryCache(), 0)

			authorization, err := buildAuthorization(ctx, fetch, spec.Program, spec.Function, spec.Inputs, spec.Edition)
			if err != nil {
				return fmt.Errorf("building authorization: %w", err)
			}

			doc := proveRequestDoc{
				Authorization: authorization,
				PriorityFee:   priorityFee,
				Broadcast:     broadcast,
			}

			if spec.Fee != nil && spec.Fee.Authorize {
				feeFunction := "fee_public"
				if spec.Fee.Private {
					feeFunction = "fee_private"
				}
				feeInputs := []string{fmt.Sprintf("%du64", spec.Fee.AmountMicrocredits), "0u64"}
				feeAuthorization, err := buildCreditsAuthorization(feeFunction, feeInputs)
				if err != nil {
					return fmt.Errorf("building fee authorization: %w", err)
				}
				doc.FeeAuthorization = feeAuthorization
			}

			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling prove request: %w", err)
			}

			if output == "" || output == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			return os.WriteFile(output, append(out, '\n'), 0o600)
		},
	}

	cmd.Flags().StringVar(&specPath, "spec", "", "Path to a CallSpec YAML file (required)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "https://api.explorer.provable.com/v2/testnet", "Explorer REST base used to validate the program")
	cmd.Flags().Uint64Var(&priorityFee, "priority-fee", 0, "Priority fee in microcredits, added on top of any fee authorization")
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "Set broadcast=true in the printed ProveRequest")
	cmd.Flags().StringVar(&output, "out", "-", "Output path, or - for stdout")
	cmd.MarkFlagRequired("spec")

	return cmd
}

// buildAuthorization validates that program/function exist against the
// explorer (fetching the program's latest edition, or a pinned one) and
// returns the canonical authorization JSON for that single call. The
// reference VM has no real signing step, so "authorizing" a call is
// exactly constructing the CallRequest the prover already accepts.
func buildAuthorization(ctx context.Context, fetch *fetcher.Fetcher, programRaw, function string, inputs []string, pinnedEdition *uint16) (json.RawMessage, error) {
	programID, err := vm.ParseProgramID(programRaw)
	if err != nil {
		return nil, err
	}

	edition, err := resolveEdition(ctx, fetch, programID, pinnedEdition)
	if err != nil {
		return nil, err
	}

	program, err := fetch.FetchProgram(ctx, programID, edition)
	if err != nil {
		return nil, fmt.Errorf("fetching %s at edition %d: %w", programID, edition, err)
	}
	if !program.HasFunction(function) {
		return nil, fmt.Errorf("program %s has no function %q", programID, function)
	}

	doc := authorizationDoc{
		Requests: []vm.CallRequest{{
			ProgramID: programID,
			Function:  function,
			Inputs:    inputs,
		}},
	}
	return json.Marshal(doc)
}

// buildCreditsAuthorization builds the fee authorization against the
// built-in credits.aleo definition rather than fetching it from the
// explorer: every Process pre-loads credits.aleo (Invariant 3) and
// callers must never attempt to resolve it remotely.
func buildCreditsAuthorization(function string, inputs []string) (json.RawMessage, error) {
	credits, _ := vm.NewProcess().Get(vm.CreditsProgramID)
	if !credits.HasFunction(function) {
		return nil, fmt.Errorf("credits.aleo has no function %q", function)
	}
	doc := authorizationDoc{
		Requests: []vm.CallRequest{{
			ProgramID: vm.CreditsProgramID,
			Function:  function,
			Inputs:    inputs,
		}},
	}
	return json.Marshal(doc)
}

func resolveEdition(ctx context.Context, fetch *fetcher.Fetcher, id vm.ProgramID, pinned *uint16) (uint16, error) {
	if pinned != nil {
		return *pinned, nil
	}
	edition, ok, err := fetch.FetchLatestEdition(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("resolving latest edition of %s: %w", id, err)
	}
	if !ok {
		return 0, fmt.Errorf("explorer has no published edition of %s", id)
	}
	return edition, nil
}
