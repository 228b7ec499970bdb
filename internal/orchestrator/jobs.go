package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trader/internal/config"
	"trader/internal/service"
)

// Job is a scheduled unit of work. The set is closed: only the variants in
// this file implement it.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	job()
}

// OrchestratorTickJob runs one orchestrator tick.
type OrchestratorTickJob struct {
	Orchestrator *Orchestrator
}

func (OrchestratorTickJob) Name() string { return "orchestrator_tick" }
func (OrchestratorTickJob) job()         {}

func (j OrchestratorTickJob) Run(ctx context.Context) error {
	return j.Orchestrator.Tick(ctx)
}

// OrderReconcileJob resolves SUBMITTED trades against the gateway, leaving
// ambiguous ones for the final cleanup.
type OrderReconcileJob struct {
	Reconciler Cleaner
	Flags      *service.SystemSettingsService
	Logger     *zap.Logger
}

func (OrderReconcileJob) Name() string { return "order_reconcile" }
func (OrderReconcileJob) job()         {}

func (j OrderReconcileJob) Run(ctx context.Context) error {
	if j.Reconciler == nil {
		return nil
	}
	if j.Flags != nil && !j.Flags.IsEnabled(ctx, service.FeatureOrderReconcile, true) {
		return nil
	}
	res, err := j.Reconciler.Run(ctx, false)
	if err != nil {
		return err
	}
	if j.Logger != nil && res.Checked > 0 {
		j.Logger.Debug("order reconcile done",
			zap.Int("checked", res.Checked),
			zap.Int("filled", res.Filled),
			zap.Int("cancelled", res.Cancelled),
			zap.Int("errored", res.Errored),
			zap.Int("recovered", res.Recovered),
			zap.Int("skipped", res.Skipped),
		)
	}
	return nil
}

// FinalCleanupJob is the end-of-day pass that cancels orders the gateway no
// longer knows about.
type FinalCleanupJob struct {
	Reconciler Cleaner
	Logger     *zap.Logger
}

func (FinalCleanupJob) Name() string { return "final_cleanup" }
func (FinalCleanupJob) job()         {}

func (j FinalCleanupJob) Run(ctx context.Context) error {
	if j.Reconciler == nil {
		return nil
	}
	res, err := j.Reconciler.Run(ctx, true)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("final cleanup done",
			zap.Int("checked", res.Checked),
			zap.Int("filled", res.Filled),
			zap.Int("cancelled", res.Cancelled),
		)
	}
	return nil
}

// SnapshotJob records the daily snapshot. It backs up the post-market
// handler when the orchestrator tick missed the phase entry.
type SnapshotJob struct {
	Orchestrator *Orchestrator
	Flags        *service.SystemSettingsService
}

func (SnapshotJob) Name() string { return "daily_snapshot" }
func (SnapshotJob) job()         {}

func (j SnapshotJob) Run(ctx context.Context) error {
	if j.Flags != nil && !j.Flags.IsEnabled(ctx, service.FeatureDailySnapshot, true) {
		return nil
	}
	_, err := j.Orchestrator.RecordDailySnapshot(ctx)
	return err
}

// Scheduler is satisfied by *cronrunner.Runner.
type Scheduler interface {
	AddJob(name, spec string, run func(context.Context) error) error
}

type ScheduledJob struct {
	Spec string
	Job  Job
}

// Plan pairs each job with its cron spec. Jobs with an empty spec are left
// out.
func Plan(cfg config.CronConfig, jobs ...Job) []ScheduledJob {
	out := make([]ScheduledJob, 0, len(jobs))
	for _, j := range jobs {
		var spec string
		switch j.(type) {
		case OrchestratorTickJob:
			spec = cfg.OrchestratorTick
		case OrderReconcileJob:
			spec = cfg.OrderReconcile
		case FinalCleanupJob:
			spec = cfg.FinalCleanup
		case SnapshotJob:
			spec = cfg.Snapshot
		}
		if spec == "" {
			continue
		}
		out = append(out, ScheduledJob{Spec: spec, Job: j})
	}
	return out
}

func Schedule(s Scheduler, cfg config.CronConfig, jobs ...Job) error {
	for _, sj := range Plan(cfg, jobs...) {
		if err := s.AddJob(sj.Job.Name(), sj.Spec, sj.Job.Run); err != nil {
			return fmt.Errorf("schedule %s (%s): %w", sj.Job.Name(), sj.Spec, err)
		}
	}
	return nil
}
