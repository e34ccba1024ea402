package types

import "github.com/google/uuid"

// DecisionID correlates every record produced by one evaluation run.
// UUIDv7 so that decision ids sort by creation time in downstream stores.
type DecisionID string

// NewDecisionID generates a UUIDv7 decision identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewDecisionID() DecisionID {
	return DecisionID(uuid.Must(uuid.NewV7()).String())
}
