package model

// AssetStatus is the engine's view of an asset's lifecycle state. The
// remote inventory owns the authoritative value; this enum only exists
// so the coordinator can reason about transitions uniformly.
type AssetStatus string

const (
	AssetAvailable  AssetStatus = "AVAILABLE"
	AssetCheckedOut AssetStatus = "CHECKED_OUT"
	AssetUnknown    AssetStatus = "UNKNOWN"
)

// AssetState is a read-through snapshot of a remote asset record. It is
// never persisted locally; every decision re-reads it from the remote
// API because the snapshot can go stale at any moment.
type AssetState struct {
	ID         uint64      `json:"id"`
	Tag        string      `json:"asset_tag"`
	Name       string      `json:"name"`
	Status     AssetStatus `json:"status"`
	HolderID   uint64      `json:"holder_id,omitempty"`
	HolderName string      `json:"holder_name,omitempty"`
}

// Operation enumerates the state-changing asset actions the engine
// executes against the remote inventory.
type Operation string

const (
	OpCheckout Operation = "CHECKOUT"
	OpCheckin  Operation = "CHECKIN"
	OpTransfer Operation = "TRANSFER"
)

// OperationRequest describes one asset transaction. It is constructed
// per request and never stored; the remote inventory is the durable
// record of what actually happened.
type OperationRequest struct {
	Operation Operation
	AssetTag  string
	ActorID   uint64
	TargetID  uint64 // transfer destination subject
	Override  bool   // elevated-privilege path, audited distinctly
	Note      string
}
