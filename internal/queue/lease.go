package queue

import "time"

// Lease is a worker's time-bounded claim on one job.
type Lease struct {
	JobID     string
	ServerID  string
	Holder    string
	ClaimedAt time.Time
	ExpiresAt time.Time
	Attempts  int
}

// Expired matches the claim predicate: another worker may take the job once
// now is strictly after ExpiresAt.
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
