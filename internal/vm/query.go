package vm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Query supplies a Trace with the ledger context (current height and
// state root) it needs before proving: a real network query in
// production, a literal fixture in tests and offline tooling.
type Query interface {
	CurrentBlockHeight(ctx context.Context) (uint64, error)
	StateRoot(ctx context.Context) (string, error)
}

// literalDoc is the JSON shape accepted when a query endpoint is a literal
// document rather than an HTTP(S) URL: {"state_root": "...", "height": N}.
type literalDoc struct {
	StateRoot string `json:"state_root"`
	Height    uint64 `json:"height"`
}

type literalQuery struct {
	doc literalDoc
}

func (q literalQuery) CurrentBlockHeight(context.Context) (uint64, error) { return q.doc.Height, nil }
func (q literalQuery) StateRoot(context.Context) (string, error)          { return q.doc.StateRoot, nil }

type httpQuery struct {
	baseURL string
	client  *http.Client
}

func (q httpQuery) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	if err := q.getJSON(ctx, "/block/height/latest", &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (q httpQuery) StateRoot(ctx context.Context) (string, error) {
	var root string
	if err := q.getJSON(ctx, "/stateRoot/latest", &root); err != nil {
		return "", err
	}
	return root, nil
}

func (q httpQuery) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(q.baseURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("building query request: %w", err)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("querying %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query %s returned status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading query response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding query response from %s: %w", path, err)
	}
	return nil
}

// NewQuery builds a Query from a spec-supplied endpoint string. If
// endpoint parses as an absolute HTTP(S) URL it is treated as a live
// network query base; otherwise it is parsed as a literal JSON document
// of the form {"state_root": "...", "height": N}, which is how tests
// supply a fixed ledger view without a running node.
func NewQuery(endpoint string, client *http.Client) (Query, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("empty query endpoint")
	}

	if u, err := url.Parse(trimmed); err == nil && u.Scheme != "" && u.Host != "" {
		if client == nil {
			client = &http.Client{Timeout: 10 * time.Second}
		}
		return httpQuery{baseURL: trimmed, client: client}, nil
	}

	var doc literalDoc
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, fmt.Errorf("query endpoint is neither an absolute URL nor a literal state document: %w", err)
	}
	return literalQuery{doc: doc}, nil
}
