package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/config"
	"github.com/songo-inc/songo-engine/pkg/crypto"
	"github.com/songo-inc/songo-engine/pkg/logging"
	"github.com/songo-inc/songo-engine/pkg/models"
	"github.com/songo-inc/songo-engine/pkg/repositories"
	"github.com/songo-inc/songo-engine/pkg/retry"
	"github.com/songo-inc/songo-engine/pkg/source"
)

// RefreshExecutor runs one refresh for a data source: fetch the upstream
// snapshot, reconcile it into storage, and record the outcome.
type RefreshExecutor interface {
	// Run refreshes one data source. At most one run per data source is in
	// flight at a time; a run that loses the lock is recorded as skipped and
	// returns nil.
	Run(ctx context.Context, dataSourceID uuid.UUID) error

	// RecoverStaleRunning fails data sources left in the running state by a
	// previous process. Call once at startup before the scheduler starts.
	RecoverStaleRunning(ctx context.Context) error
}

type refreshExecutor struct {
	dataSources   repositories.DataSourceRepository
	connections   repositories.ConnectionRepository
	records       repositories.SyncedRecordRepository
	audits        repositories.RefreshAuditRepository
	encryptor     *crypto.CredentialEncryptor
	clientFactory source.Factory
	sourceCfg     config.SourceConfig
	retryCfg      *retry.Config
	fetchTimeout  time.Duration
	locks         *LockArena
	logger        *zap.Logger
}

// NewRefreshExecutor creates a refresh executor.
func NewRefreshExecutor(
	dataSources repositories.DataSourceRepository,
	connections repositories.ConnectionRepository,
	records repositories.SyncedRecordRepository,
	audits repositories.RefreshAuditRepository,
	encryptor *crypto.CredentialEncryptor,
	clientFactory source.Factory,
	sourceCfg config.SourceConfig,
	refreshCfg config.RefreshConfig,
	logger *zap.Logger,
) RefreshExecutor {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = refreshCfg.MaxRetries

	return &refreshExecutor{
		dataSources:   dataSources,
		connections:   connections,
		records:       records,
		audits:        audits,
		encryptor:     encryptor,
		clientFactory: clientFactory,
		sourceCfg:     sourceCfg,
		retryCfg:      retryCfg,
		fetchTimeout:  refreshCfg.FetchTimeout,
		locks:         NewLockArena(),
		logger:        logger.Named("refresh_executor"),
	}
}

func (e *refreshExecutor) Run(ctx context.Context, dataSourceID uuid.UUID) error {
	start := time.Now()

	if !e.locks.TryLock(dataSourceID.String()) {
		e.logger.Warn("refresh already in flight, skipping",
			zap.String("data_source_id", dataSourceID.String()))
		e.audit(ctx, &models.RefreshAuditEntry{
			DataSourceID: dataSourceID,
			StartTime:    start,
			EndTime:      &start,
			Outcome:      models.AuditOutcomeSkippedLockHeld,
		})
		return nil
	}
	defer e.locks.Unlock(dataSourceID.String())

	ds, err := e.dataSources.GetByID(ctx, dataSourceID)
	if err != nil {
		return fmt.Errorf("load data source: %w", err)
	}

	ok, err := e.dataSources.MarkRunning(ctx, dataSourceID)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if !ok {
		// Another process holds the row. The in-process lock does not cover
		// multi-process deployments, the status column does.
		e.logger.Warn("data source already running in another process, skipping",
			zap.String("data_source_id", dataSourceID.String()))
		e.audit(ctx, &models.RefreshAuditEntry{
			DataSourceID: dataSourceID,
			StartTime:    start,
			EndTime:      &start,
			Outcome:      models.AuditOutcomeSkippedLockHeld,
		})
		return nil
	}

	counts, err := e.fetchAndReconcile(ctx, ds)
	end := time.Now()

	if err != nil {
		sanitized := logging.SanitizeError(err)
		if markErr := e.dataSources.MarkFailed(ctx, dataSourceID, sanitized); markErr != nil {
			e.logger.Error("failed to record refresh failure",
				zap.String("data_source_id", dataSourceID.String()),
				zap.Error(markErr))
		}
		e.audit(ctx, &models.RefreshAuditEntry{
			DataSourceID: dataSourceID,
			StartTime:    start,
			EndTime:      &end,
			Outcome:      models.AuditOutcomeFailure,
			ErrorDetail:  sanitized,
		})
		e.logger.Error("refresh failed",
			zap.String("data_source_id", dataSourceID.String()),
			zap.String("data_source", ds.Name),
			zap.Duration("elapsed", end.Sub(start)),
			zap.Error(err))
		return err
	}

	// last_refresh is the run's start time so the next interval is measured
	// from when fetching began, not when it finished.
	if err := e.dataSources.MarkSucceeded(ctx, dataSourceID, start); err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}

	e.audit(ctx, &models.RefreshAuditEntry{
		DataSourceID:    dataSourceID,
		StartTime:       start,
		EndTime:         &end,
		Outcome:         models.AuditOutcomeSuccess,
		RecordsFetched:  counts.Fetched,
		RecordsInserted: counts.Inserted,
		RecordsUpdated:  counts.Updated,
		RecordsRemoved:  counts.Removed,
	})

	e.logger.Info("refresh succeeded",
		zap.String("data_source_id", dataSourceID.String()),
		zap.String("data_source", ds.Name),
		zap.Int("fetched", counts.Fetched),
		zap.Int("inserted", counts.Inserted),
		zap.Int("updated", counts.Updated),
		zap.Int("removed", counts.Removed),
		zap.Duration("elapsed", end.Sub(start)))

	return nil
}

func (e *refreshExecutor) fetchAndReconcile(ctx context.Context, ds *models.DataSource) (models.ReconcileCounts, error) {
	var counts models.ReconcileCounts

	conn, err := e.connections.GetByID(ctx, ds.ConnectionID)
	if err != nil {
		return counts, fmt.Errorf("load connection: %w", err)
	}
	if !conn.Active {
		return counts, apperrors.ErrConnectionInactive
	}

	encrypted, err := e.connections.GetCredentials(ctx, conn.ID)
	if err != nil {
		return counts, fmt.Errorf("load credentials: %w", err)
	}
	token, err := e.encryptor.Decrypt(encrypted)
	if err != nil {
		return counts, fmt.Errorf("decrypt credentials: %w", err)
	}

	client := e.clientFactory(source.ClientConfig{
		BaseURL:   e.sourceCfg.BaseURL,
		AccountID: conn.AccountID,
		Token:     token,
		Timeout:   e.sourceCfg.Timeout,
	})

	descriptor := source.NewQueryDescriptor(ds, e.sourceCfg.MaxRecords)

	var fetched []source.Record
	err = retry.DoIfRetryable(ctx, e.retryCfg, func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()

		var fetchErr error
		fetched, fetchErr = client.Fetch(fetchCtx, descriptor)
		return fetchErr
	})
	if err != nil {
		return counts, fmt.Errorf("fetch records: %w", err)
	}

	snapshot := make([]models.SyncedRecord, 0, len(fetched))
	for _, rec := range fetched {
		externalID := rec.ExternalID()
		if externalID == "" {
			e.logger.Warn("skipping record without external id",
				zap.String("data_source_id", ds.ID.String()))
			continue
		}
		snapshot = append(snapshot, models.SyncedRecord{
			DataSourceID: ds.ID,
			ExternalID:   externalID,
			Fields:       rec,
		})
	}

	counts, err = e.records.ReconcileSnapshot(ctx, ds.ID, snapshot)
	if err != nil {
		return counts, fmt.Errorf("reconcile snapshot: %w", err)
	}
	counts.Fetched = len(fetched)

	return counts, nil
}

func (e *refreshExecutor) RecoverStaleRunning(ctx context.Context) error {
	ids, err := e.dataSources.ResetStaleRunning(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, id := range ids {
		e.audit(ctx, &models.RefreshAuditEntry{
			DataSourceID: id,
			StartTime:    now,
			EndTime:      &now,
			Outcome:      models.AuditOutcomeFailure,
			ErrorDetail:  "refresh interrupted by restart",
		})
	}

	if len(ids) > 0 {
		e.logger.Warn("recovered data sources stuck in running state",
			zap.Int("count", len(ids)))
	}
	return nil
}

// audit appends an audit entry. Audit failures are logged and swallowed so
// they never mask the refresh outcome.
func (e *refreshExecutor) audit(ctx context.Context, entry *models.RefreshAuditEntry) {
	if err := e.audits.Create(ctx, entry); err != nil {
		e.logger.Error("failed to write audit entry",
			zap.String("data_source_id", entry.DataSourceID.String()),
			zap.String("outcome", string(entry.Outcome)),
			zap.Error(err))
	}
}

var _ RefreshExecutor = (*refreshExecutor)(nil)
