// Package queue is the durable heartbeat job queue: at most one unprocessed
// job per server, FIFO claims under a time-bounded lease.
package queue

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNoJob           = errors.New("no eligible job")
	ErrLeaseLost       = errors.New("lease no longer held")
	ErrEnqueueConflict = errors.New("enqueue conflict not resolved")
	ErrJobNotFound     = errors.New("job not found")
	ErrNotFlagged      = errors.New("job is not flagged")
)

const (
	maxEnqueueAttempts = 5
	maxClaimAttempts   = 3
)

type Queue struct {
	DB           *gorm.DB
	LeaseTimeout time.Duration
	Now          func() time.Time
}

func New(db *gorm.DB, leaseTimeout time.Duration) *Queue {
	return &Queue{DB: db, LeaseTimeout: leaseTimeout, Now: time.Now}
}

// WithDB returns a copy bound to db, typically an open transaction.
func (q *Queue) WithDB(db *gorm.DB) *Queue {
	c := *q
	c.DB = db
	return &c
}

func (q *Queue) now() time.Time {
	return q.Now().UTC()
}
