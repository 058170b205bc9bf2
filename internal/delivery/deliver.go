package delivery

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"livecast/internal/logging"
)

// Jitter bounds the random pause before each delivered file, in whole
// seconds. Consecutive pauses differ by more than Gap. Max 0 disables it.
type Jitter struct {
	Min int
	Max int
	Gap int
}

// DefaultJitter returns the 1-10s range with a 4s gap.
func DefaultJitter() Jitter {
	return Jitter{Min: 1, Max: 10, Gap: 4}
}

// Deliverer announces finished artifacts to overlay clients one at a time.
type Deliverer struct {
	pub    Publisher
	jitter Jitter

	mu    sync.Mutex
	rng   *rand.Rand
	last  int
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeliverer creates a deliverer publishing to pub.
func NewDeliverer(pub Publisher, jitter Jitter) *Deliverer {
	if jitter.Min < 0 {
		jitter.Min = 0
	}
	return &Deliverer{
		pub:    pub,
		jitter: jitter,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6c69766563617374)),
		last:   -1,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deliver publishes each non-empty file as an artifact event, pausing a
// random jittered delay before each one.
func (d *Deliverer) Deliver(ctx context.Context, files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if delay := d.nextDelay(); delay > 0 {
			if err := d.sleep(ctx, delay); err != nil {
				return err
			}
		}
		name := filepath.Base(f)
		d.pub.Publish(Event{Type: EventArtifact, Name: name, URL: ArtifactURL(f)})
		logging.Delivery("Delivered %s", name)
	}
	return nil
}

// nextDelay draws the next pause. The gap is ignored when some previous
// value would leave no candidate far enough from it.
func (d *Deliverer) nextDelay() time.Duration {
	j := d.jitter
	if j.Max <= 0 || j.Max < j.Min {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	span := j.Max - j.Min + 1
	honorGap := j.Gap > 0 && span/2 > j.Gap
	for {
		n := j.Min + d.rng.IntN(span)
		if d.last < 0 || !honorGap || abs(n-d.last) > j.Gap {
			d.last = n
			return time.Duration(n) * time.Second
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
