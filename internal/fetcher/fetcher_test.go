package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/provable-labs/remote-prover/internal/vm"
)

func TestBuildProgramURL(t *testing.T) {
	u, err := buildProgramURL("https://api.example.com/v1/testnet/", "token.aleo", "latest_edition")
	if err != nil {
		t.Fatalf("buildProgramURL: %v", err)
	}
	want := "https://api.example.com/v1/testnet/program/token.aleo/latest_edition"
	if u != want {
		t.Errorf("buildProgramURL = %s, want %s", u, want)
	}
}

func TestBuildProgramURLRejectsRelativeBase(t *testing.T) {
	if _, err := buildProgramURL("/v1/testnet", "token.aleo", "3"); err == nil {
		t.Error("expected error for a relative base URL")
	}
}

func TestSniffProgramBodyRaw(t *testing.T) {
	out, err := sniffProgramBody([]byte("program token.aleo;\n"))
	if err != nil {
		t.Fatalf("sniffProgramBody: %v", err)
	}
	if out != "program token.aleo;" {
		t.Errorf("got %q", out)
	}
}

func TestSniffProgramBodyEncodedString(t *testing.T) {
	out, err := sniffProgramBody([]byte(`"program token.aleo;\nfunction mint:\n"`))
	if err != nil {
		t.Fatalf("sniffProgramBody: %v", err)
	}
	if out == "" || out[0] == '"' {
		t.Errorf("expected decoded body, got %q", out)
	}
}

func TestFetchLatestEditionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(srv.Client(), srv.URL, nil, 0)
	_, ok, err := f.FetchLatestEdition(context.Background(), "ghost.aleo")
	if err != nil {
		t.Fatalf("FetchLatestEdition: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a 404 response")
	}
}

func TestFetchProgramParsesBody(t *testing.T) {
	const src = "program token.aleo;\n\nfunction mint_public:\n    input r0 as address;\n    input r1 as u64;\n    output r2 as boolean;\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(src))
	}))
	defer srv.Close()

	f := New(srv.Client(), srv.URL, nil, 0)
	prog, err := f.FetchProgram(context.Background(), "token.aleo", 1)
	if err != nil {
		t.Fatalf("FetchProgram: %v", err)
	}
	if prog.ID != vm.ProgramID("token.aleo") {
		t.Errorf("ID = %s, want token.aleo", prog.ID)
	}
	if !prog.HasFunction("mint_public") {
		t.Error("expected mint_public function")
	}
}
