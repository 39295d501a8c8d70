package recurring

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// Interval is a cron.Schedule firing every d. Unlike cron.Every it keeps
// sub-second precision.
type Interval time.Duration

func (d Interval) Next(t time.Time) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return t.Add(time.Duration(d))
}

// spreadSchedule overrides the first firing of base, then delegates.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

var spreadSeq uint64

// Spread returns an Interval schedule whose first firing is pushed back by a
// random jitter in [0, min(every, 30s)), so many jobs started together do
// not fire in lockstep. tag seeds the jitter. The chosen jitter is returned.
func Spread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := Interval(every)
	spreadMax := min(every, maxStartupSpread)
	if spreadMax <= 0 {
		return base, 0
	}

	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	rng := rand.New(rand.NewSource(seed))
	jitter := time.Duration(rng.Int63n(int64(spreadMax)))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
