package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/repositories"
	"github.com/songo-inc/songo-engine/pkg/workqueue"
)

// auditSweepInterval is how often the janitor checks for prunable entries.
const auditSweepInterval = 24 * time.Hour

// AuditJanitor prunes refresh audit entries older than the retention window.
// A retention of zero disables pruning and keeps the trail forever.
type AuditJanitor interface {
	// Sweep enqueues one cleanup pass. Returns false when a pass is still
	// pending or running, or when pruning is disabled.
	Sweep(ctx context.Context) bool

	// Start launches the background sweep loop.
	Start(ctx context.Context)

	// Stop halts the sweep loop and waits for it to exit.
	Stop()
}

type auditJanitor struct {
	audits    repositories.RefreshAuditRepository
	queue     *workqueue.Queue
	retention time.Duration
	logger    *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewAuditJanitor creates a janitor that feeds the given queue.
func NewAuditJanitor(
	audits repositories.RefreshAuditRepository,
	queue *workqueue.Queue,
	retention time.Duration,
	logger *zap.Logger,
) AuditJanitor {
	return &auditJanitor{
		audits:    audits,
		queue:     queue,
		retention: retention,
		logger:    logger.Named("audit_janitor"),
		stop:      make(chan struct{}),
	}
}

func (j *auditJanitor) Sweep(ctx context.Context) bool {
	if j.retention <= 0 {
		return false
	}
	return j.queue.Enqueue(newAuditCleanupTask(j.audits, j.retention, j.logger))
}

func (j *auditJanitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		j.logger.Info("audit retention disabled, janitor not started")
		return
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(auditSweepInterval)
		defer ticker.Stop()

		j.logger.Info("janitor started",
			zap.Duration("retention", j.retention),
			zap.Duration("sweep_interval", auditSweepInterval))

		for {
			select {
			case <-j.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()
}

func (j *auditJanitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	j.wg.Wait()
}

// auditCleanupTask adapts one retention pass to the work queue. The fixed key
// keeps at most one pass in flight.
type auditCleanupTask struct {
	workqueue.BaseTask
	audits    repositories.RefreshAuditRepository
	retention time.Duration
	logger    *zap.Logger
}

func newAuditCleanupTask(audits repositories.RefreshAuditRepository, retention time.Duration, logger *zap.Logger) *auditCleanupTask {
	return &auditCleanupTask{
		BaseTask: workqueue.NewBaseTask(
			"audit cleanup",
			"audit-cleanup",
			workqueue.KindData,
		),
		audits:    audits,
		retention: retention,
		logger:    logger,
	}
}

func (t *auditCleanupTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	cutoff := time.Now().Add(-t.retention)
	removed, err := t.audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune audit entries: %w", err)
	}
	if removed > 0 {
		t.logger.Info("pruned audit entries",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff))
	}
	return nil
}

var _ AuditJanitor = (*auditJanitor)(nil)
var _ workqueue.Task = (*auditCleanupTask)(nil)
