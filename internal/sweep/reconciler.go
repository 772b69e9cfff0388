package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.lumeweb.com/blob-janitor/internal/references"
	"go.lumeweb.com/blob-janitor/internal/storage"
	"go.uber.org/zap"
)

// Per-object decisions, used as metric labels.
const (
	DecisionReferenced  = "referenced"
	DecisionYoung       = "young"
	DecisionUnparseable = "unparseable"
	DecisionCandidate   = "candidate"
	DecisionDeleted     = "deleted"
)

// BucketSweepResult summarizes one bucket pass.
type BucketSweepResult struct {
	Bucket             string        `json:"bucket"`
	Scanned            int           `json:"scanned"`
	Referenced         int           `json:"referenced"`
	Deleted            int           `json:"deleted"`
	Candidates         []string      `json:"candidates,omitempty"`
	SkippedYoung       int           `json:"skipped_young"`
	SkippedUnparseable int           `json:"skipped_unparseable"`
	DryRun             bool          `json:"dry_run"`
	Err                error         `json:"-"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
}

// Outcome is "success" or "failed".
func (r BucketSweepResult) Outcome() string {
	if r.Err != nil {
		return "failed"
	}
	return "success"
}

func (r BucketSweepResult) MarshalJSON() ([]byte, error) {
	type plain BucketSweepResult
	out := struct {
		plain
		Outcome string `json:"outcome"`
		Error   string `json:"error,omitempty"`
	}{plain: plain(r), Outcome: r.Outcome()}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Report is one sweep across all requested buckets.
type Report struct {
	RunID     string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	Finished  time.Time           `json:"finished"`
	DryRun    bool                `json:"dry_run"`
	Buckets   []BucketSweepResult `json:"buckets"`
}

// Deleted is the number of objects removed across all buckets.
func (r *Report) Deleted() int {
	total := 0
	for _, b := range r.Buckets {
		total += b.Deleted
	}
	return total
}

// Failed returns the buckets whose pass ended with an error.
func (r *Report) Failed() []string {
	var failed []string
	for _, b := range r.Buckets {
		if b.Err != nil {
			failed = append(failed, b.Bucket)
		}
	}
	return failed
}

// Decision is the outcome of Plan for one bucket listing.
type Decision struct {
	Candidates         []string
	Referenced         int
	SkippedYoung       int
	SkippedUnparseable []string
}

// BareName returns the part of a URL or path after the last slash.
func BareName(s string) string {
	return s[strings.LastIndex(s, "/")+1:]
}

// ReferencedNames reduces reference URLs to their bare names. Blank names are dropped.
func ReferencedNames(urls []string) map[string]struct{} {
	names := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		name := BareName(strings.TrimSpace(u))
		if name == "" {
			continue
		}
		names[name] = struct{}{}
	}
	return names
}

// Plan decides which objects may be deleted. An object is a candidate only when
// its bare name is unreferenced and its creation time is known and at least
// grace before now. Candidates keep listing order and appear once.
func Plan(objects []storage.StorageObject, referenced map[string]struct{}, now time.Time, grace time.Duration) Decision {
	var d Decision
	seen := make(map[string]bool, len(objects))

	for _, obj := range objects {
		if _, ok := referenced[BareName(obj.Path)]; ok {
			d.Referenced++
			continue
		}

		createdAt, err := obj.CreatedTime()
		if err != nil {
			d.SkippedUnparseable = append(d.SkippedUnparseable, obj.Path)
			continue
		}

		if now.Sub(createdAt) < grace {
			d.SkippedYoung++
			continue
		}

		if seen[obj.Path] {
			continue
		}
		seen[obj.Path] = true
		d.Candidates = append(d.Candidates, obj.Path)
	}

	return d
}

// ProviderLookup resolves the reference provider for a bucket.
type ProviderLookup interface {
	Provider(bucket string) (references.Provider, error)
}

// Recorder receives sweep outcomes, typically for metrics.
type Recorder interface {
	ObserveBucket(result BucketSweepResult)
	ObserveReport(report *Report)
}

type Option func(*Reconciler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// Reconciler deletes stored objects that no database row references.
type Reconciler struct {
	store     storage.Client
	providers ProviderLookup
	grace     time.Duration
	dryRun    bool
	logger    *zap.Logger
	now       func() time.Time
	recorder  Recorder
}

func NewReconciler(cfg *config.Config, store storage.Client, providers ProviderLookup, logger *zap.Logger, opts ...Option) *Reconciler {
	grace := cfg.Sweep.GracePeriod
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}

	r := &Reconciler{
		store:     store,
		providers: providers,
		grace:     grace,
		dryRun:    cfg.Sweep.DryRun,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep processes buckets in order. A failure in one bucket never stops the others.
func (r *Reconciler) Sweep(ctx context.Context, buckets []string) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		DryRun:    r.dryRun,
	}
	logger := r.logger.With(zap.String("run_id", report.RunID))

	logger.Info("Starting orphan sweep",
		zap.Strings("buckets", buckets),
		zap.Duration("grace_period", r.grace),
		zap.Bool("dry_run", r.dryRun),
	)

	for _, bucket := range buckets {
		result := r.sweepBucket(ctx, bucket, logger)
		report.Buckets = append(report.Buckets, result)
		if r.recorder != nil {
			r.recorder.ObserveBucket(result)
		}
	}

	report.Finished = r.now()
	if r.recorder != nil {
		r.recorder.ObserveReport(report)
	}

	logger.Info("Orphan sweep finished",
		zap.Int("deleted", report.Deleted()),
		zap.Strings("failed_buckets", report.Failed()),
		zap.Duration("duration", report.Finished.Sub(report.StartedAt)),
	)

	return report
}

// SweepBucket runs a single bucket pass outside of a full sweep.
func (r *Reconciler) SweepBucket(ctx context.Context, bucket string) BucketSweepResult {
	return r.sweepBucket(ctx, bucket, r.logger)
}

func (r *Reconciler) sweepBucket(ctx context.Context, bucket string, logger *zap.Logger) (result BucketSweepResult) {
	logger = logger.With(zap.String("bucket", bucket))
	result = BucketSweepResult{
		Bucket:    bucket,
		DryRun:    r.dryRun,
		StartedAt: r.now(),
	}

	defer func() {
		if p := recover(); p != nil {
			result.Err = fmt.Errorf("panic during sweep of bucket %s: %v", bucket, p)
			logger.Error("Bucket sweep panicked",
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
		}
		result.Duration = r.now().Sub(result.StartedAt)
		logBucketSummary(logger, result)
	}()

	provider, err := r.providers.Provider(bucket)
	if err != nil {
		result.Err = err
		return result
	}

	urls, err := provider.ReferencedURLs(ctx)
	if err != nil {
		result.Err = fmt.Errorf("failed to load references: %w", err)
		return result
	}
	referenced := ReferencedNames(urls)

	objects := r.store.ListAllRecursive(ctx, bucket, "")
	result.Scanned = len(objects)

	decision := Plan(objects, referenced, r.now(), r.grace)
	result.Referenced = decision.Referenced
	result.SkippedYoung = decision.SkippedYoung
	result.SkippedUnparseable = len(decision.SkippedUnparseable)
	result.Candidates = decision.Candidates

	for _, path := range decision.SkippedUnparseable {
		logger.Warn("Keeping object with missing or unparseable creation time", zap.String("path", path))
	}

	if len(decision.Candidates) == 0 || r.dryRun {
		return result
	}

	if err := r.store.DeleteObjects(ctx, bucket, decision.Candidates); err != nil {
		result.Err = err
		return result
	}
	result.Deleted = len(decision.Candidates)

	return result
}

func logBucketSummary(logger *zap.Logger, result BucketSweepResult) {
	fields := []zap.Field{
		zap.Int("scanned", result.Scanned),
		zap.Int("referenced", result.Referenced),
		zap.Int("skipped_young", result.SkippedYoung),
		zap.Int("skipped_unparseable", result.SkippedUnparseable),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("deleted", result.Deleted),
		zap.Bool("dry_run", result.DryRun),
		zap.Duration("duration", result.Duration),
	}

	if result.Err != nil {
		logger.Error("Bucket sweep failed", append(fields, zap.Error(result.Err))...)
		return
	}
	logger.Info("Bucket sweep completed", fields...)
}
