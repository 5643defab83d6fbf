package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ExpiredDeleter removes rows past their expiry and reports how many went.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob periodically purges expired OAuth states.
type CleanupJob struct {
	states   ExpiredDeleter
	interval time.Duration
	done     chan struct{}
}

func NewCleanupJob(states ExpiredDeleter, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		states:   states,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "oauth states", j.states.DeleteExpired)
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
