package httpapi

import (
	"context"
	"testing"

	"github.com/provable-labs/remote-prover/internal/prover"
)

func TestWorkerPoolRecoversPanic(t *testing.T) {
	pool := newWorkerPool(2, func(resolved *prover.Resolved, ctx contextLike) (*prover.Result, error) {
		panic("boom")
	})

	_, err := pool.submit(context.Background(), &prover.Resolved{})
	if err == nil {
		t.Fatal("expected an error from a panicking job")
	}
}

func TestWorkerPoolReturnsResult(t *testing.T) {
	want := &prover.Result{TransactionType: "execute"}
	pool := newWorkerPool(1, func(resolved *prover.Resolved, ctx contextLike) (*prover.Result, error) {
		return want, nil
	})

	got, err := pool.submit(context.Background(), &prover.Resolved{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got != want {
		t.Error("expected the exact result returned by the job function")
	}
}
