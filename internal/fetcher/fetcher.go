// Package fetcher retrieves program editions and source from the
// configured explorer REST endpoint, the way the original Rust prover's
// programs.rs and bin/authorize.rs RemoteFetcher do: resolve the latest
// edition (if the caller didn't pin one), then fetch the program body at
// that edition, sniffing whether the response body is raw program text or
// a JSON-encoded string of it.
//
// Concurrent identical fetches are deduplicated with
// golang.org/x/sync/singleflight, the pattern the teacher repo uses for
// collapsing concurrent identical pool lookups: if two /prove requests
// resolve the same uncached program at the same time, only one HTTP
// round trip is made.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/provable-labs/remote-prover/internal/cache"
	"github.com/provable-labs/remote-prover/internal/logging"
	"github.com/provable-labs/remote-prover/internal/metrics"
	"github.com/provable-labs/remote-prover/internal/vm"
)

// ErrNotFound is returned when the explorer has no edition (or no source
// at a requested edition) for a program.
var ErrNotFound = fmt.Errorf("fetcher: program not found")

// Fetcher resolves program editions and source over HTTP, backed by an
// optional Cache to avoid re-fetching programs this instance (or a sibling
// instance sharing a Redis cache) has already seen.
type Fetcher struct {
	client  *http.Client
	baseURL string
	cache   cache.Cache
	cacheTTL time.Duration
	group   singleflight.Group
}

// New builds a Fetcher. cache may be nil, in which case every fetch goes
// to the network (still deduplicated via singleflight within this
// process).
func New(client *http.Client, baseURL string, c cache.Cache, cacheTTL time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{client: client, baseURL: baseURL, cache: c, cacheTTL: cacheTTL}
}

// FetchLatestEdition resolves the latest published edition of id. ok is
// false (with a nil error) if the explorer has no record of the program
// at all — the caller (resolver) treats that as "not reachable", not as a
// transport failure.
func (f *Fetcher) FetchLatestEdition(ctx context.Context, id vm.ProgramID) (edition uint16, ok bool, err error) {
	start := time.Now()
	key := "edition:" + string(id)

	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		u, buildErr := buildProgramURL(f.baseURL, id, "latest_edition")
		if buildErr != nil {
			return nil, buildErr
		}
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		resp, doErr := f.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return editionResult{found: false}, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching latest edition for %s: status %d", id, resp.StatusCode)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if readErr != nil {
			return nil, readErr
		}
		n, parseErr := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 16)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing edition response for %s: %w", id, parseErr)
		}
		return editionResult{found: true, edition: uint16(n)}, nil
	})

	outcome := "ok"
	defer func() { metrics.RecordProgramFetch("edition_"+outcome, time.Since(start).Milliseconds()) }()

	if err != nil {
		outcome = "error"
		return 0, false, fmt.Errorf("fetching latest edition for %s: %w", id, err)
	}
	result := v.(editionResult)
	if !result.found {
		outcome = "not_found"
		return 0, false, nil
	}
	return result.edition, true, nil
}

type editionResult struct {
	found   bool
	edition uint16
}

// FetchProgram retrieves and parses the program source for id at the
// given edition. It consults the cache first and populates it on a
// network hit.
func (f *Fetcher) FetchProgram(ctx context.Context, id vm.ProgramID, edition uint16) (*vm.Program, error) {
	start := time.Now()
	cacheKey := fmt.Sprintf("fetch:%s:%s:%d", f.baseURL, id, edition)

	if f.cache != nil {
		if body, err := f.cache.Get(ctx, cacheKey); err == nil {
			metrics.RecordProgramCacheResult(true)
			prog, parseErr := vm.ParseProgram(string(body))
			if parseErr == nil {
				return prog, nil
			}
			logging.Op().Warn("cached program failed to parse, re-fetching", "program_id", id, "error", parseErr)
		} else if err != cache.ErrNotFound {
			logging.Op().Warn("program cache lookup failed", "program_id", id, "error", err)
		} else {
			metrics.RecordProgramCacheResult(false)
		}
	}

	key := fmt.Sprintf("source:%s:%d", id, edition)
	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		u, buildErr := buildProgramURL(f.baseURL, id, strconv.FormatUint(uint64(edition), 10))
		if buildErr != nil {
			return nil, buildErr
		}
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		resp, doErr := f.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching program %s: status %d", id, resp.StatusCode)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return nil, readErr
		}
		return sniffProgramBody(body)
	})

	outcome := "ok"
	defer func() { metrics.RecordProgramFetch("source_"+outcome, time.Since(start).Milliseconds()) }()

	if err != nil {
		if err == ErrNotFound {
			outcome = "not_found"
		} else {
			outcome = "error"
		}
		return nil, err
	}

	source := v.(string)
	prog, parseErr := vm.ParseProgram(source)
	if parseErr != nil {
		outcome = "parse_error"
		return nil, fmt.Errorf("parsing fetched program %s: %w", id, parseErr)
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, cacheKey, []byte(source), f.cacheTTL); err != nil {
			logging.Op().Warn("failed to populate program cache", "program_id", id, "error", err)
		}
	}

	return prog, nil
}

// sniffProgramBody decides whether a fetched body is raw program source or
// a JSON-encoded string wrapping it, matching the heuristic the original
// Rust fetcher and authorize tool both use: trim whitespace, and if the
// first remaining byte is a double quote, decode it as a JSON string.
func sniffProgramBody(body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", fmt.Errorf("empty program body")
	}
	if trimmed[0] == '"' {
		var decoded string
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return "", fmt.Errorf("body looked JSON-encoded but did not decode: %w", err)
		}
		return decoded, nil
	}
	return trimmed, nil
}

// buildProgramURL constructs the URL for fetching a program's source or
// latest edition: base + "/program/" + id + "/" + suffix ("latest_edition"
// or a numeric edition). A trailing empty path segment on base (from a
// trailing slash) is dropped before appending, mirroring the original
// build_program_url's pop_if_empty behavior.
func buildProgramURL(base string, id vm.ProgramID, suffix string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", base, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q is not absolute", base)
	}

	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(segments) > 0 && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	segments = append(segments, "program", string(id), suffix)

	u.Path = "/" + strings.Join(segments, "/")
	return u.String(), nil
}
