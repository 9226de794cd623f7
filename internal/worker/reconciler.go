package worker

import (
	"context" // Job context
	"time"    // Intervals

	"github.com/go-co-op/gocron/v2" // Job scheduler
	"github.com/sirupsen/logrus"    // Logging library

	"contest_ledger/internal/ledger" // Reconciliation report
)

// Registrations completes fee collections that never got a player row
type Registrations interface {
	ReconcileRegistrations(ctx context.Context) (ledger.ReconcileReport, error)
}

// Reconciler runs the registration repair on a fixed interval
type Reconciler struct {
	target   Registrations
	interval time.Duration
	timeout  time.Duration
	log      *logrus.Logger
	sched    gocron.Scheduler
}

// NewReconciler builds a reconciler running every interval
func NewReconciler(target Registrations, interval time.Duration, log *logrus.Logger) *Reconciler {
	return &Reconciler{target: target, interval: interval, timeout: interval, log: log}
}

// RunOnce performs a single reconciliation pass
func (r *Reconciler) RunOnce(ctx context.Context) (ledger.ReconcileReport, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	report, err := r.target.ReconcileRegistrations(ctx)
	if err != nil {
		r.log.WithError(err).Error("[Reconciler] pass failed")
		return report, err
	}
	if report.Orphans > 0 {
		r.log.WithFields(logrus.Fields{
			"orphans":   report.Orphans,
			"completed": report.Completed,
			"skipped":   report.Skipped,
			"failed":    report.Failed,
		}).Warn("[Reconciler] orphaned fee collections found")
	}
	return report, nil
}

// Start schedules the job; the first pass runs immediately
func (r *Reconciler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			_, _ = r.RunOnce(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	r.sched = sched
	sched.Start()
	r.log.WithField("interval", r.interval.String()).Info("[Reconciler] started")
	return nil
}

// Stop waits for a running pass and stops the scheduler
func (r *Reconciler) Stop() error {
	if r.sched == nil {
		return nil
	}
	return r.sched.Shutdown()
}
