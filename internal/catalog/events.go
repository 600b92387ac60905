package catalog

import "time"

// LifecycleKind enumerates product lifecycle events.
type LifecycleKind string

const (
	// LifecycleSoftDeleted marks a reversible removal.
	LifecycleSoftDeleted LifecycleKind = "soft-deleted"
	// LifecycleRestored marks a soft delete being undone.
	LifecycleRestored LifecycleKind = "restored"
	// LifecycleHardDeleted marks a permanent removal.
	LifecycleHardDeleted LifecycleKind = "hard-deleted"
	// LifecycleForceDeleted marks a removal that also destroyed audit history.
	LifecycleForceDeleted LifecycleKind = "force-deleted"
)

// ProductLifecycleEvent is published after a lifecycle transition commits so
// projection layers refresh without polling store state.
type ProductLifecycleEvent struct {
	ProductID       string        `json:"productId"`
	Kind            LifecycleKind `json:"kind"`
	StockAtDeletion float64       `json:"stockAtDeletion,omitempty"`
	OccurredAt      time.Time     `json:"occurredAt"`
}
