package httpapi

import (
	"encoding/json"

	"github.com/provable-labs/remote-prover/internal/network"
	"github.com/provable-labs/remote-prover/internal/prover"
)

// proveResponse is the full wire shape of a successful /prove response.
type proveResponse struct {
	Status             string          `json:"status"`
	Network            string          `json:"network"`
	TransactionID      string          `json:"transaction_id"`
	TransactionType    string          `json:"transaction_type"`
	ExecutionID        string          `json:"execution_id"`
	Transaction        json.RawMessage `json:"transaction"`
	TransactionPayload string          `json:"transaction_payload"`
	Summary            prover.Summary  `json:"summary"`
	Fee                json.RawMessage `json:"fee,omitempty"`
	Broadcast          BroadcastReport `json:"broadcast"`
}

// buildProveResponse assembles the wire response from a prover.Result.
// The transaction is marshaled once and reused both as the structured
// "transaction" field and, as a string, as "transaction_payload" — the
// exact bytes that would be POSTed to the explorer on broadcast.
func buildProveResponse(net network.Network, result *prover.Result) proveResponse {
	txnBytes, err := json.Marshal(result.Transaction)
	if err != nil {
		// Transaction.MarshalJSON never fails for a value built by
		// vm.FromExecution; fall back to an empty object rather than
		// letting a marshal error surface as a broken response body.
		txnBytes = []byte("{}")
	}

	resp := proveResponse{
		Status:             "success",
		Network:            net.String(),
		TransactionID:      result.Transaction.ID,
		TransactionType:    result.TransactionType,
		ExecutionID:        result.ExecutionID,
		Transaction:        json.RawMessage(txnBytes),
		TransactionPayload: string(txnBytes),
		Summary:            result.Summary,
	}

	if result.Transaction.Fee != nil {
		feeBytes, err := json.Marshal(result.Transaction.Fee)
		if err == nil {
			resp.Fee = json.RawMessage(feeBytes)
		}
	}

	return resp
}
