package common

import (
	"context"
	"errors"
	"log"
	"time"
)

const (
	superviseInitialBackoff = 500 * time.Millisecond
	superviseMaxBackoff     = 30 * time.Second
)

// Supervise runs a collector until ctx is cancelled, restarting it with
// exponential backoff when it fails. A run that lasted longer than the
// backoff cap resets the backoff, so a collector that worked for a while and
// then lost its facility retries quickly again.
func Supervise(ctx context.Context, c Collector, out chan<- Observation, onRestart func(name string)) {
	backoff := superviseInitialBackoff
	for {
		started := time.Now()
		err := c.Run(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// Collectors are infinite; a nil return without cancellation means
			// the facility closed under us. Treat like a failure.
			err = ErrUnavailable
		}
		if errors.Is(err, ErrUnavailable) {
			log.Printf("collector %s unavailable, retrying in %s: %v", c.Name(), backoff, err)
		} else {
			log.Printf("collector %s failed, retrying in %s: %v", c.Name(), backoff, err)
		}
		if onRestart != nil {
			onRestart(c.Name())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if time.Since(started) > superviseMaxBackoff {
			backoff = superviseInitialBackoff
		} else if backoff *= 2; backoff > superviseMaxBackoff {
			backoff = superviseMaxBackoff
		}
	}
}
