package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.uber.org/zap"
)

// ErrSweepInProgress is returned when a sweep is requested while another one runs.
var ErrSweepInProgress = errors.New("a sweep is already in progress")

// Manager schedules sweeps and makes sure at most one runs at a time.
type Manager struct {
	config     *config.Config
	logger     *zap.Logger
	reconciler *Reconciler
	scheduler  *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	running  atomic.Bool
	inflight sync.WaitGroup

	mu   sync.RWMutex
	last *Report
}

func NewManager(cfg *config.Config, logger *zap.Logger, reconciler *Reconciler) *Manager {
	cl := &cronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:     cfg,
		logger:     logger,
		reconciler: reconciler,
		scheduler: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

type sweepJob struct {
	manager *Manager
}

func (j sweepJob) Run() {
	if _, err := j.manager.RunOnce(j.manager.ctx); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			j.manager.logger.Info("Skipping scheduled sweep, previous sweep still running")
			return
		}
		j.manager.logger.Error("Scheduled sweep failed", zap.Error(err))
	}
}

// ConfigureSchedule validates the sweep schedule and registers the job.
func (m *Manager) ConfigureSchedule() error {
	if ok, err := config.ParseCronSchedule(m.config.Sweep.Schedule); !ok {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}

	if _, err := m.scheduler.AddJob(m.config.Sweep.Schedule, sweepJob{manager: m}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	m.logger.Info("Sweep schedule configured",
		zap.String("schedule", m.config.Sweep.Schedule),
		zap.Strings("buckets", m.config.Sweep.Buckets),
		zap.Duration("grace_period", m.config.Sweep.GracePeriod),
		zap.Bool("dry_run", m.config.Sweep.DryRun),
	)

	return nil
}

// Start starts the scheduler.
func (m *Manager) Start() {
	m.scheduler.Start()
}

// RunOnce sweeps the configured buckets synchronously.
func (m *Manager) RunOnce(ctx context.Context) (*Report, error) {
	return m.RunBuckets(ctx, m.config.Sweep.Buckets)
}

// RunBuckets sweeps the given buckets synchronously.
func (m *Manager) RunBuckets(ctx context.Context, buckets []string) (*Report, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	m.inflight.Add(1)
	defer m.inflight.Done()

	return m.run(ctx, buckets), nil
}

// Trigger starts a sweep of the configured buckets in the background.
func (m *Manager) Trigger() error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	m.inflight.Add(1)

	go func() {
		defer m.inflight.Done()
		m.run(m.ctx, m.config.Sweep.Buckets)
	}()
	return nil
}

// run expects the running flag to be held and releases it.
func (m *Manager) run(ctx context.Context, buckets []string) *Report {
	defer m.running.Store(false)

	report := m.reconciler.Sweep(ctx, buckets)

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()

	return report
}

// Running reports whether a sweep is in progress.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// LastReport returns the most recent completed sweep, or nil.
func (m *Manager) LastReport() *Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Stop stops the scheduler and waits for a running sweep. When ctx expires
// first the sweep is cancelled.
func (m *Manager) Stop(ctx context.Context) error {
	jobs := m.scheduler.Stop()

	done := make(chan struct{})
	go func() {
		<-jobs.Done()
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		m.logger.Warn("Sweep still running at shutdown, cancelling")
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
