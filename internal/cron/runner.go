package cronrunner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type FailureReporter interface {
	Report(component string, err error) bool
}

type Runner struct {
	cron     *cron.Cron
	logger   *zap.Logger
	baseCtx  context.Context
	failures FailureReporter

	mu      sync.Mutex
	running map[string]bool
}

// New builds a seconds-resolution runner. Specs are evaluated in the given
// location; an empty or unknown timezone falls back to UTC.
func New(logger *zap.Logger, baseCtx context.Context, timezone string) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	loc := time.UTC
	if tz := strings.TrimSpace(timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else if logger != nil {
			logger.Warn("cron timezone invalid, using UTC", zap.String("timezone", tz), zap.Error(err))
		}
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger:  logger,
		baseCtx: baseCtx,
		running: map[string]bool{},
	}
}

// SetFailureReporter routes job errors to r as well as the log.
func (r *Runner) SetFailureReporter(f FailureReporter) {
	r.failures = f
}

// AddJob registers run under name. A firing that finds the previous run of
// the same job still going is skipped.
func (r *Runner) AddJob(name, spec string, run func(context.Context) error) error {
	_, err := r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		if !r.acquire(name) {
			if r.logger != nil {
				r.logger.Debug("job still running, skipped", zap.String("job", name))
			}
			return
		}
		defer r.release(name)
		r.execute(name, run)
	})
	if err == nil && r.logger != nil {
		r.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	}
	return err
}

func (r *Runner) execute(name string, run func(context.Context) error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil && r.logger != nil {
			r.logger.Error("job panicked", zap.String("job", name), zap.Any("panic", p))
		}
	}()
	err := run(r.baseCtx)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
		}
		if r.failures != nil {
			r.failures.Report("job:"+name, err)
		}
		return
	}
	if r.logger != nil {
		r.logger.Debug("job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

func (r *Runner) acquire(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) release(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
}

func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started", zap.Int("entries", len(r.cron.Entries())))
	}
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
