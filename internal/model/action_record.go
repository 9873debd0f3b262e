package model

// Action statuses.
const (
	ActionConfirmed = "confirmed"
	ActionReverted  = "reverted"
	ActionTimeout   = "timeout"
	ActionFailed    = "failed"
)

// ActionRecord is the ledger entry for one submitted mutating call.
type ActionRecord struct {
	Unit        string `json:"unit"`
	Kind        string `json:"kind"`
	Contract    string `json:"contract"`
	Method      string `json:"method"`
	Args        string `json:"args"`
	Role        string `json:"role"`
	Signer      string `json:"signer"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	RecordedAt  string `json:"recorded_at"`
}
