package backend

import (
	"time"
)

type RemovalOptions struct {
	FinishedBefore time.Time

	BatchSize int
}

var DefaultRemovalOptions = RemovalOptions{
	FinishedBefore: time.Now(),
	BatchSize:      100,
}

type RemovalOption func(o *RemovalOptions)

func RemoveFinishedBefore(t time.Time) RemovalOption {
	return func(o *RemovalOptions) {
		o.FinishedBefore = t
	}
}

func RemoveBatchSize(batchSize int) RemovalOption {
	return func(o *RemovalOptions) {
		o.BatchSize = batchSize
	}
}

// ApplyRemovalOptions resolves removal options relative to now.
func ApplyRemovalOptions(now time.Time, opts ...RemovalOption) RemovalOptions {
	ro := DefaultRemovalOptions
	ro.FinishedBefore = now

	for _, opt := range opts {
		opt(&ro)
	}

	if ro.BatchSize <= 0 {
		ro.BatchSize = DefaultRemovalOptions.BatchSize
	}

	return ro
}
