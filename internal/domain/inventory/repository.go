package inventory

import (
	"context"
)

// Repository persists whole snapshots at a caller-chosen location.
//
// Load returns an empty snapshot and a nil error when nothing has been stored at path yet,
// and an error wrapping ErrDecode when the stored data cannot be turned into a valid Snapshot.
type Repository interface {
	Load(ctx context.Context, path string) (Snapshot, error)
	Save(ctx context.Context, path string, snap Snapshot) error
}

// IDGenerator produces unique identifiers for activity entries.
type IDGenerator interface {
	NewID() string
}
