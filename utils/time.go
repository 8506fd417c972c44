// Package utils holds small helpers shared across the commission engine.
package utils

import "time"

// UTCNow is the single clock used for timestamps written to the ledger and audit trail.
func UTCNow() time.Time {
	return time.Now().UTC()
}

func ToPtr[T any](v T) *T {
	return &v
}
