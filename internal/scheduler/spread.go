package scheduler

import (
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

// Intervals longer than this still get at most this much first-run jitter.
const maxStartupSpread = 30 * time.Second

// jitteredStart behaves like its inner schedule except that nothing fires
// before firstAt.
type jitteredStart struct {
	inner   cron.Schedule
	firstAt time.Time
}

func (j *jitteredStart) Next(t time.Time) time.Time {
	if t.Before(j.firstAt) {
		return j.firstAt
	}
	return j.inner.Next(t)
}

// intervalWithSpread returns an every-d schedule whose first tick lands
// somewhere in [now+d, now+d+min(d, maxStartupSpread)). The jitter is
// returned for logging. cron.Every works in whole seconds, so the jitter
// does too; otherwise later ticks would drop the fraction.
func intervalWithSpread(d time.Duration, now time.Time, rng *rand.Rand) (cron.Schedule, time.Duration) {
	every := cron.Every(d)
	secs := int64(min(d, maxStartupSpread) / time.Second)
	if rng == nil || secs <= 0 {
		return every, 0
	}
	offset := time.Duration(rng.Int63n(secs)) * time.Second
	return &jitteredStart{inner: every, firstAt: now.Add(d).Add(offset)}, offset
}
