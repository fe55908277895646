package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/service"
)

// Scheduler owns the periodic jobs that keep the engine converging: exam
// lifecycle scans, answer sync, mass-submission drain, and key sweeps.
// Every job runs in singleton mode so a slow tick never overlaps itself.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       *config.Config
	status    *service.StatusService
	sync      *service.SyncService
	submit    *service.SubmitService
	log       zerolog.Logger
}

// New creates a scheduler wired to the engine services.
func New(cfg *config.Config, status *service.StatusService, sync *service.SyncService,
	submit *service.SubmitService, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		cfg:       cfg,
		status:    status,
		sync:      sync,
		submit:    submit,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers all jobs and runs the scheduler asynchronously.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context) error
	}{
		{"exam_status_scan", s.cfg.StatusScanInterval, s.status.ApplyTimeTransitions},
		{"answer_sync", s.cfg.SyncInterval, s.sync.SyncDirtySets},
		{"submit_drain", s.cfg.SubmitDrainInterval, s.submit.DrainQueues},
		{"submit_queue_init", s.cfg.SubmitInitInterval, s.submit.InitQueues},
		{"dirty_key_sweep", s.cfg.CleanupInterval, s.sync.CleanupStaleDirtyKeys},
		{"submit_queue_sweep", s.cfg.CleanupInterval, s.submit.CleanupQueues},
	}

	for _, job := range jobs {
		job := job
		_, err := s.scheduler.Every(job.interval).SingletonMode().Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), job.interval)
			defer cancel()

			started := time.Now()
			if err := job.run(ctx); err != nil {
				s.log.Error().Err(err).Str("job", job.name).Msg("Scheduled job failed")
				return
			}
			s.log.Debug().Str("job", job.name).Dur("took", time.Since(started)).Msg("Scheduled job done")
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	s.log.Info().Int("jobs", len(jobs)).Msg("Scheduler started")
	return nil
}

// Stop waits for running jobs and halts the scheduler.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.log.Info().Msg("Scheduler stopped")
}
