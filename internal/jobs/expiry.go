package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Expirer transitions every moment whose expiry has passed and reports how
// many it touched. *service.MomentService satisfies it.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// ExpiryJob runs the moment expiry sweep on a fixed interval.
type ExpiryJob struct {
	expirer  Expirer
	interval time.Duration
	timeout  time.Duration

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewExpiryJob(expirer Expirer, interval time.Duration) *ExpiryJob {
	return &ExpiryJob{
		expirer:  expirer,
		interval: interval,
		timeout:  30 * time.Second,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (j *ExpiryJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("expiry job started")
}

// Stop ends the loop and waits for an in-progress sweep to finish.
func (j *ExpiryJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		<-j.stopped
		log.Info().Msg("expiry job stopped")
	})
}

func (j *ExpiryJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *ExpiryJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.RunOnce(ctx)
}

// RunOnce performs a single sweep. A failed sweep is logged and retried on
// the next tick.
func (j *ExpiryJob) RunOnce(ctx context.Context) (int, error) {
	count, err := j.expirer.ExpireDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to expire moments")
		return 0, err
	}
	if count > 0 {
		log.Info().Int("count", count).Msg("expired moments")
	}
	return count, nil
}
