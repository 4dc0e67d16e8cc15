package model

import "time"

// Lock represents a lease on a contended resource, e.g. "scrape:<shopID>"
type Lock struct {
	Key       string    `json:"key" bson:"key"`
	LockedBy  string    `json:"locked_by" bson:"locked_by"`   // Worker identifier (hostname), diagnostic only
	CreatedAt time.Time `json:"created_at" bson:"created_at"` // First acquisition
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"` // Lease expiration (TTL)
}

// Live reports whether the lease is still valid at now
func (l *Lock) Live(now time.Time) bool {
	return l.ExpiresAt.After(now)
}
