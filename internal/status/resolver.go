// Package status derives a server's liveness and confidence tier from the
// time it was last seen.
package status

import (
	"time"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
)

// Thresholds configure Resolve. YellowMultiplier scales Grace to the upper
// bound of the yellow tier.
type Thresholds struct {
	Grace            time.Duration
	YellowMultiplier float64
}

type Result struct {
	Status     models.ServerStatus
	Confidence models.Confidence
}

// Resolve is pure: same inputs, same result. A last-seen time in the future
// counts as zero elapsed.
func Resolve(lastSeenAt *time.Time, now time.Time, th Thresholds) Result {
	if lastSeenAt == nil {
		return Result{Status: models.StatusUnknown, Confidence: models.ConfidenceRed}
	}

	elapsed := now.Sub(*lastSeenAt)
	if elapsed < 0 {
		elapsed = 0
	}

	res := Result{Status: models.StatusOffline, Confidence: models.ConfidenceRed}
	if elapsed <= th.Grace {
		res.Status = models.StatusOnline
		res.Confidence = models.ConfidenceGreen
	} else if elapsed <= th.yellowBound() {
		res.Confidence = models.ConfidenceYellow
	}
	return res
}

func (th Thresholds) yellowBound() time.Duration {
	m := th.YellowMultiplier
	if m < 1 {
		m = 1
	}
	return time.Duration(float64(th.Grace) * m)
}

// NextChange returns how long until Resolve's output can change for the given
// last-seen time, or false when it never will (already red or unknown).
func NextChange(lastSeenAt *time.Time, now time.Time, th Thresholds) (time.Duration, bool) {
	if lastSeenAt == nil {
		return 0, false
	}
	elapsed := now.Sub(*lastSeenAt)
	if elapsed < 0 {
		elapsed = 0
	}
	switch {
	case elapsed <= th.Grace:
		return th.Grace - elapsed, true
	case elapsed <= th.yellowBound():
		return th.yellowBound() - elapsed, true
	default:
		return 0, false
	}
}

// ForCluster picks a cluster's thresholds, falling back to defaults for unset
// values. A nil cluster gets the defaults.
func ForCluster(c *models.Cluster, defaults config.StatusConfig) Thresholds {
	th := Thresholds{Grace: defaults.DefaultGrace, YellowMultiplier: defaults.DefaultConfidenceMultiplier}
	if c == nil {
		return th
	}
	if c.GraceSeconds > 0 {
		th.Grace = time.Duration(c.GraceSeconds) * time.Second
	}
	if c.ConfidenceMultiplier >= 1 {
		th.YellowMultiplier = c.ConfidenceMultiplier
	}
	return th
}
