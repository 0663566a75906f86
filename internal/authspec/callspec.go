// Package authspec parses the YAML input contract consumed by
// cmd/authorize: what program and function to authorize, what inputs to
// pass, and whether to also authorize an accompanying fee. This mirrors
// the teacher's internal/spec package, which reads a YAML FunctionSpec
// as the input contract for its own build tooling, applied here to the
// prover's authorization format instead of a function deployment.
package authspec

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FeeSpec describes whether and how to authorize an accompanying fee
// alongside the primary call.
type FeeSpec struct {
	Authorize          bool   `yaml:"authorize"`
	AmountMicrocredits uint64 `yaml:"amount_microcredits,omitempty"`
	Private            bool   `yaml:"private,omitempty"`
}

// CallSpec is the YAML document cmd/authorize reads: which program and
// function to authorize, with what inputs, under which key.
type CallSpec struct {
	Program       string   `yaml:"program"`
	Function      string   `yaml:"function"`
	Inputs        []string `yaml:"inputs"`
	Edition       *uint16  `yaml:"edition,omitempty"`
	Fee           *FeeSpec `yaml:"fee,omitempty"`
	PrivateKeyEnv string   `yaml:"private_key_env"`
}

// ParseFile reads and parses a CallSpec from a YAML file on disk.
func ParseFile(path string) (*CallSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spec file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a single CallSpec document from r.
func Parse(r io.Reader) (*CallSpec, error) {
	var spec CallSpec
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode call spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks that a CallSpec has everything cmd/authorize needs
// before it touches the network or reads a private key out of the
// environment.
func (s *CallSpec) Validate() error {
	if strings.TrimSpace(s.Program) == "" {
		return fmt.Errorf("program is required")
	}
	if strings.TrimSpace(s.Function) == "" {
		return fmt.Errorf("function is required")
	}
	if strings.TrimSpace(s.PrivateKeyEnv) == "" {
		return fmt.Errorf("private_key_env is required: the signing key is never accepted on the command line")
	}
	if s.Fee != nil && s.Fee.Authorize && s.Fee.AmountMicrocredits == 0 {
		return fmt.Errorf("fee.amount_microcredits must be set when fee.authorize is true")
	}
	return nil
}

// PrivateKey reads the signing key from the environment variable named
// by PrivateKeyEnv, the only way this tool accepts one.
func (s *CallSpec) PrivateKey() (string, error) {
	key := os.Getenv(s.PrivateKeyEnv)
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("environment variable %s is empty or unset", s.PrivateKeyEnv)
	}
	return key, nil
}

// ExampleYAML returns a sample CallSpec document, used by `authorize init`.
func ExampleYAML() string {
	return `# authorize.yaml
program: add_public.aleo
function: add_public
inputs:
  - 5u32
  - 7u32

# Optional accompanying fee authorization
fee:
  authorize: true
  amount_microcredits: 100000
  private: false

# Name of the environment variable holding the signing key. Never put the
# key itself in this file or on the command line.
private_key_env: ALEO_PRIVATE_KEY
`
}
