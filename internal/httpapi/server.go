// Package httpapi exposes the prover's HTTP surface: GET / for liveness,
// POST /prove for the proving pipeline, and GET /metrics for Prometheus
// scraping. It owns the admission semaphore gating concurrent proofs and
// the worker pool that runs the CPU-bound half of each request.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/provable-labs/remote-prover/internal/config"
	"github.com/provable-labs/remote-prover/internal/metrics"
	"github.com/provable-labs/remote-prover/internal/observability"
	"github.com/provable-labs/remote-prover/internal/prover"
)

const maxBodyBytes = 10 << 20 // 10MB, mirrors the teacher gateway's body limit

// Server owns the bounded worker pool and admission semaphore guarding
// the prover Engine, and implements http.Handler directly in the
// teacher's plain-switch style rather than a third-party router — the
// route set is small and fixed.
type Server struct {
	engine     *prover.Engine
	cfg        *config.ProverConfig
	httpClient *http.Client
	pool       *workerPool

	permits chan struct{}
	queued  int64
	inUse   int64
}

// New builds a Server around an Engine, sized from cfg.MaxConcurrentProofs.
func New(engine *prover.Engine, cfg *config.ProverConfig) *Server {
	n := cfg.MaxConcurrentProofs
	if n < 1 {
		n = 1
	}
	s := &Server{
		engine:     engine,
		cfg:        cfg,
		httpClient: cfg.HTTPClient,
		permits:    make(chan struct{}, n),
	}
	s.pool = newWorkerPool(n, func(resolved *prover.Resolved, ctx contextLike) (*prover.Result, error) {
		c, ok := ctx.(context.Context)
		if !ok {
			c = context.Background()
		}
		return s.engine.Prove(c, resolved)
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		s.handleHealth(w, r)
	case r.URL.Path == "/metrics" && r.Method == http.MethodGet:
		metrics.PrometheusHandler().ServeHTTP(w, r)
	case r.URL.Path == "/prove" && r.Method == http.MethodPost:
		observability.TracingHandler("prove", s.handleProve)(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// proveRequestBody is the wire shape of an inbound /prove body. Broadcast
// is a pointer so an omitted field can be told apart from an explicit
// false: omitting it defaults to attempting broadcast.
type proveRequestBody struct {
	Authorization    json.RawMessage `json:"authorization"`
	FeeAuthorization json.RawMessage `json:"fee_authorization,omitempty"`
	PriorityFee      uint64          `json:"priority_fee,omitempty"`
	Broadcast        *bool           `json:"broadcast,omitempty"`
}

func (s *Server) handleProve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordProveRequest(status, time.Since(start).Milliseconds())
	}()

	body, err := decodeProveRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := prover.Request{
		Authorization:    body.Authorization,
		FeeAuthorization: body.FeeAuthorization,
		PriorityFee:      body.PriorityFee,
	}

	// Resolution is network-bound (fetching remote program sources): it
	// must run before the admission semaphore is acquired so a slow
	// explorer response never occupies a proving slot.
	resolved, err := s.engine.Resolve(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := s.proveWithAdmission(r.Context(), resolved)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	shouldBroadcast := body.Broadcast == nil || *body.Broadcast

	resp := buildProveResponse(s.cfg.Network, result)
	if shouldBroadcast {
		resp.Broadcast = s.broadcast(r.Context(), result.Transaction)
	} else {
		resp.Broadcast = BroadcastReport{Requested: false}
	}

	status = "success"
	writeJSON(w, http.StatusOK, resp)
}

// proveWithAdmission acquires one permit from the bounded semaphore,
// dispatches the CPU-bound proving phase onto the worker pool, and
// releases the permit once it returns.
func (s *Server) proveWithAdmission(ctx context.Context, resolved *prover.Resolved) (*prover.Result, error) {
	atomic.AddInt64(&s.queued, 1)
	metrics.SetAdmissionGauges(int(atomic.LoadInt64(&s.queued)), int(atomic.LoadInt64(&s.inUse)))

	select {
	case s.permits <- struct{}{}:
	case <-ctx.Done():
		atomic.AddInt64(&s.queued, -1)
		metrics.RecordAdmission("rejected")
		return nil, ctx.Err()
	}

	atomic.AddInt64(&s.queued, -1)
	atomic.AddInt64(&s.inUse, 1)
	metrics.RecordAdmission("acquired")
	metrics.SetAdmissionGauges(int(atomic.LoadInt64(&s.queued)), int(atomic.LoadInt64(&s.inUse)))

	defer func() {
		<-s.permits
		atomic.AddInt64(&s.inUse, -1)
		metrics.SetAdmissionGauges(int(atomic.LoadInt64(&s.queued)), int(atomic.LoadInt64(&s.inUse)))
	}()

	return s.pool.submit(ctx, resolved)
}

func decodeProveRequest(w http.ResponseWriter, r *http.Request) (*proveRequestBody, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	var body proveRequestBody
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed request body: %w", err)
	}
	if len(body.Authorization) == 0 {
		return nil, errors.New("authorization is required")
	}
	return &body, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"status":  "error",
		"message": message,
	})
}
