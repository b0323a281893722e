// Package types contains common types used across the application
package types

// ReconciledEvent is one line of pipeline output: the merged event identity
// plus the reconciled timestamp and (possibly corrected) trigger type.
type ReconciledEvent struct {
	EventID     uint64 `json:"event_id"`
	TelescopeID uint16 `json:"telescope_id"`
	TimestampNS int64  `json:"timestamp_ns"`
	Valid       bool   `json:"valid"`
	TriggerType uint8  `json:"trigger_type"`
	Jump        bool   `json:"jump,omitempty"`
}
