package store

import (
	"context"
	"time"
)

// ActivityKind labels a membership change.
type ActivityKind string

const (
	ActivityJoined ActivityKind = "joined"
	ActivityLeft   ActivityKind = "left"
)

// Activity is one recorded membership change for a project session.
// Only joins and leaves are recorded; edit payloads are never stored.
type Activity struct {
	ID         int64
	ProjectID  string
	ClientID   string
	User       string
	Kind       ActivityKind
	OccurredAt time.Time
}

// Store persists session activity.
type Store interface {
	// RecordActivity appends one membership change.
	RecordActivity(ctx context.Context, act Activity) error
	// RecentActivity returns the latest changes for a project, newest
	// first, at most limit entries.
	RecentActivity(ctx context.Context, projectID string, limit int) ([]Activity, error)
	// Close releases the underlying resources.
	Close() error
}
