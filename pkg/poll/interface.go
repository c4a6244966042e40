package poll

import (
	"context"
	"time"
)

type PollerConfig struct {
	Interval time.Duration
	// RunImmediately runs the fetch once at start instead of waiting a full interval.
	RunImmediately bool
}

type MetaFunc struct {
	FetchFunc
	PollerConfig
}

// Poller runs registered functions on their own intervals.
type Poller interface {
	// Start launches one loop per registered function
	Start(ctx context.Context) error
	// Stop gracefully stops the poller and waits for running fetches
	Stop() error
	// RegisterFetchFunc adds a named periodic function; call before Start
	RegisterFetchFunc(name string, fetchFunc FetchFunc, config PollerConfig)
}

// FetchFunc is one periodic unit of work.
type FetchFunc func(ctx context.Context) error
