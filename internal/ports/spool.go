package ports

import "github.com/adiarra14/fleetsdkapp-sub001/internal/domain"

// SpoolEntryID identifies a record in the durable event spool.
type SpoolEntryID uint64

// EventSpool is the on-disk overflow for events that could not be persisted
// while storage was unreachable. Entries survive restarts; Commit advances a
// watermark so recovery never replays an event into the store twice.
type EventSpool interface {
	Append(event *domain.DeviceEvent) (SpoolEntryID, error)
	Iterate(from SpoolEntryID, fn func(id SpoolEntryID, event *domain.DeviceEvent) error) error
	Commit(upto SpoolEntryID) error
	Stats() SpoolStats
}

// SpoolStats exposes spool bookkeeping for observability and recovery.
type SpoolStats struct {
	OldestUncommitted SpoolEntryID
	LatestAppended    SpoolEntryID
	SizeBytes         int64
}
