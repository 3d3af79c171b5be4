package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/repositories"
	"github.com/songo-inc/songo-engine/pkg/workqueue"
)

// RefreshScheduler periodically scans for due data sources and enqueues a
// refresh task for each. Enqueueing is idempotent per data source: a source
// whose refresh is still pending or running is not enqueued again.
type RefreshScheduler interface {
	// Tick runs one scan at the given instant and returns how many refresh
	// tasks were enqueued.
	Tick(ctx context.Context, now time.Time) (int, error)

	// Start launches the background ticker loop.
	Start(ctx context.Context)

	// Stop halts the ticker loop and waits for it to exit. Tasks already
	// handed to the queue keep running.
	Stop()
}

type refreshScheduler struct {
	dataSources  repositories.DataSourceRepository
	executor     RefreshExecutor
	queue        *workqueue.Queue
	tickInterval time.Duration
	logger       *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewRefreshScheduler creates a scheduler that feeds the given queue.
func NewRefreshScheduler(
	dataSources repositories.DataSourceRepository,
	executor RefreshExecutor,
	queue *workqueue.Queue,
	tickInterval time.Duration,
	logger *zap.Logger,
) RefreshScheduler {
	return &refreshScheduler{
		dataSources:  dataSources,
		executor:     executor,
		queue:        queue,
		tickInterval: tickInterval,
		logger:       logger.Named("refresh_scheduler"),
		stop:         make(chan struct{}),
	}
}

func (s *refreshScheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := s.dataSources.ListDueForRefresh(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due data sources: %w", err)
	}

	enqueued := 0
	for _, ds := range due {
		if s.queue.Enqueue(newRefreshTask(ds.ID, ds.Name, s.executor)) {
			enqueued++
		}
	}

	if len(due) > 0 {
		s.logger.Debug("scheduler tick",
			zap.Int("due", len(due)),
			zap.Int("enqueued", enqueued))
	}

	return enqueued, nil
}

func (s *refreshScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		s.logger.Info("scheduler started",
			zap.Duration("tick_interval", s.tickInterval))

		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if _, err := s.Tick(ctx, now); err != nil {
					s.logger.Error("scheduler tick failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *refreshScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// refreshTask adapts one executor run to the work queue.
type refreshTask struct {
	workqueue.BaseTask
	dataSourceID uuid.UUID
	executor     RefreshExecutor
}

func newRefreshTask(dataSourceID uuid.UUID, name string, executor RefreshExecutor) *refreshTask {
	return &refreshTask{
		BaseTask: workqueue.NewBaseTask(
			fmt.Sprintf("refresh %s", name),
			fmt.Sprintf("refresh:%s", dataSourceID),
			workqueue.KindData,
		),
		dataSourceID: dataSourceID,
		executor:     executor,
	}
}

func (t *refreshTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	return t.executor.Run(ctx, t.dataSourceID)
}

var _ RefreshScheduler = (*refreshScheduler)(nil)
var _ workqueue.Task = (*refreshTask)(nil)
