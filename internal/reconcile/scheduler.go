package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner executes a pass. Reconciler implements it.
type Runner interface {
	Run(ctx context.Context, kind Kind, now time.Time) (Result, error)
}

// Scheduler triggers the passes on cron specs. It only adds convenience: the
// same stateless Run entry point serves manual triggers.
type Scheduler struct {
	log     *slog.Logger
	cron    *cron.Cron
	runner  Runner
	specs   map[Kind]string
	timeout time.Duration
}

// NewScheduler creates a scheduler for the given standard five-field cron specs.
// An empty spec disables that pass.
func NewScheduler(log *slog.Logger, runner Runner, overdueSpec, retentionSpec string, timeout time.Duration) *Scheduler {
	return &Scheduler{
		log:    log,
		cron:   cron.New(),
		runner: runner,
		specs: map[Kind]string{
			KindOverdueSweep:     overdueSpec,
			KindRetentionCleanup: retentionSpec,
		},
		timeout: timeout,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	for kind, spec := range s.specs {
		if spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(spec, func() { s.RunNow(kind) }); err != nil {
			return fmt.Errorf("error scheduling %s job: %w", kind, err)
		}
		s.log.Info("Reconcile job scheduled", "kind", kind, "spec", spec)
	}

	s.cron.Start()

	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Reconcile scheduler stopped")
}

// RunNow executes one pass synchronously and logs its result.
func (s *Scheduler) RunNow(kind Kind) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.log.InfoContext(ctx, "Running scheduled reconcile", "kind", kind)
	result, err := s.runner.Run(ctx, kind, time.Now())
	if err != nil {
		s.log.ErrorContext(ctx, "Scheduled reconcile failed", "kind", kind, "affected", result.Affected, "error", err)
		return
	}
	s.log.InfoContext(ctx, "Scheduled reconcile completed",
		"kind", kind, "affected", result.Affected, "skipped", result.Skipped)
}
