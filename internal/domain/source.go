package domain

import "time"

// SourceHealth reflects whether a feed is still worth polling.
type SourceHealth string

const (
	SourceActive   SourceHealth = "active"
	SourceInactive SourceHealth = "inactive"
	SourceErrored  SourceHealth = "error"
)

// Source is a single upstream feed. Sources are deactivated after repeated
// consecutive failures but never deleted automatically.
type Source struct {
	ID                string
	Name              string
	FeedURL           string
	Priority          int
	Health            SourceHealth
	ConsecutiveErrors int
	LastSuccessAt     time.Time
}
