package repository

import (
	"sync"
	"time"
)

// State is the agent's delivery bookkeeping, kept in memory only.
type State struct {
	LastNonce           int64
	LastSentAt          *time.Time
	LastError           string
	Sent                int64
	Failed              int64
	ConsecutiveFailures int
}

type Repository struct {
	state State
	mutex sync.Mutex
}

// NewRepository creates a new repository instance
func NewRepository() IRepository {
	return &Repository{}
}

// NextNonce uses the wall clock in nanoseconds so nonces keep increasing
// across agent restarts, and never repeats within one process even if the
// clock steps back.
func (r *Repository) NextNonce(now time.Time) int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := now.UnixNano()
	if n <= r.state.LastNonce {
		n = r.state.LastNonce + 1
	}
	r.state.LastNonce = n
	return n
}

func (r *Repository) RecordSuccess(at time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	at = at.UTC()
	r.state.LastSentAt = &at
	r.state.LastError = ""
	r.state.Sent++
	r.state.ConsecutiveFailures = 0
}

func (r *Repository) RecordFailure(err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err != nil {
		r.state.LastError = err.Error()
	}
	r.state.Failed++
	r.state.ConsecutiveFailures++
}

func (r *Repository) State() State {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := r.state
	if s.LastSentAt != nil {
		t := *s.LastSentAt
		s.LastSentAt = &t
	}
	return s
}
