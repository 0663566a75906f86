package vm

import (
	"context"
	"testing"
)

func TestNewQueryLiteralDocument(t *testing.T) {
	q, err := NewQuery(`{"state_root":"root-abc","height":42}`, nil)
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	height, err := q.CurrentBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("CurrentBlockHeight: %v", err)
	}
	if height != 42 {
		t.Errorf("height = %d, want 42", height)
	}
	root, err := q.StateRoot(context.Background())
	if err != nil {
		t.Fatalf("StateRoot: %v", err)
	}
	if root != "root-abc" {
		t.Errorf("root = %s, want root-abc", root)
	}
}

func TestNewQueryRejectsGarbage(t *testing.T) {
	if _, err := NewQuery("not a url or json", nil); err == nil {
		t.Error("expected error for unparseable query endpoint")
	}
}

func TestNewQueryAcceptsHTTPURL(t *testing.T) {
	q, err := NewQuery("https://example.com/v1/testnet", nil)
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	if _, ok := q.(httpQuery); !ok {
		t.Errorf("expected httpQuery, got %T", q)
	}
}
