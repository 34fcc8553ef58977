package ports

import "time"

// RescuePolicy bounds the persistence retry path: how much can sit in memory,
// how much on disk, and how often recovery tries the store again.
type RescuePolicy struct {
	QueueCapacity     int
	MaxSpoolSizeBytes int64
	FlushInterval     time.Duration
	FlushBatchSize    int
}

// RelayPolicy drives the periodic relay loop.
type RelayPolicy struct {
	Enabled            bool
	BatchSize          int
	ProcessingInterval time.Duration
	RetryAttempts      int
	RetryBaseDelay     time.Duration
}
