package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/provable-labs/remote-prover/internal/logging"
	"github.com/provable-labs/remote-prover/internal/metrics"
	"github.com/provable-labs/remote-prover/internal/vm"
)

// responsePreviewLimit truncates the explorer's broadcast response body
// (and, symmetrically, the outgoing payload preview) before it's echoed
// back in the /prove response, so a large or misbehaving explorer never
// inflates the client-facing payload.
const responsePreviewLimit = 256

// BroadcastReport describes whether broadcast was requested and, if so,
// how it went. A failed broadcast is reported inline here; it never
// turns a successful proof into an HTTP error.
type BroadcastReport struct {
	Requested      bool   `json:"requested"`
	Endpoint       string `json:"endpoint,omitempty"`
	Status         int    `json:"status,omitempty"`
	Success        bool   `json:"success,omitempty"`
	Response       string `json:"response,omitempty"`
	Error          string `json:"error,omitempty"`
	PayloadPreview string `json:"payload_preview,omitempty"`
}

// broadcast POSTs the proven transaction to the configured network's
// broadcast endpoint. Any failure — dial error, non-2xx status, a body
// the explorer refuses — is captured in the report rather than returned
// as an error, matching the pipeline's rule that broadcast outcome never
// escalates to a request failure.
func (s *Server) broadcast(ctx context.Context, txn *vm.Transaction) BroadcastReport {
	endpoint := s.cfg.EffectiveBroadcastEndpoint()
	report := BroadcastReport{Requested: true, Endpoint: endpoint}

	payload, err := json.Marshal(txn)
	if err != nil {
		report.Error = fmt.Sprintf("marshaling transaction: %v", err)
		metrics.RecordBroadcast("failure")
		return report
	}
	report.PayloadPreview = truncate(string(payload), responsePreviewLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		report.Error = fmt.Sprintf("building broadcast request: %v", err)
		metrics.RecordBroadcast("failure")
		return report
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		report.Error = fmt.Sprintf("broadcast request failed: %v", err)
		metrics.RecordBroadcast("failure")
		logging.Op().Warn("transaction broadcast failed", "endpoint", endpoint, "error", err)
		return report
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	report.Status = resp.StatusCode
	report.Response = truncate(string(body), responsePreviewLimit)
	report.Success = resp.StatusCode >= 200 && resp.StatusCode < 300

	if report.Success {
		metrics.RecordBroadcast("success")
	} else {
		metrics.RecordBroadcast("failure")
		logging.Op().Warn("explorer rejected broadcast", "endpoint", endpoint, "status", resp.StatusCode)
	}

	return report
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
