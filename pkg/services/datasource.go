package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/models"
	"github.com/songo-inc/songo-engine/pkg/repositories"
	"github.com/songo-inc/songo-engine/pkg/workqueue"
)

// DataSourceService manages data source definitions and manual refresh
// triggers.
type DataSourceService interface {
	// Create defines a new data source on an existing connection.
	Create(ctx context.Context, ds *models.DataSource) (*models.DataSource, error)

	// Get retrieves a data source.
	Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error)

	// List retrieves all data sources.
	List(ctx context.Context) ([]*models.DataSource, error)

	// ListByConnection retrieves a connection's data sources.
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.DataSource, error)

	// Update modifies a data source definition.
	Update(ctx context.Context, ds *models.DataSource) (*models.DataSource, error)

	// Delete removes a data source and its snapshot.
	Delete(ctx context.Context, id uuid.UUID) error

	// TriggerRefresh schedules an immediate refresh regardless of the
	// interval. Returns false when a refresh for this source is already
	// pending or running.
	TriggerRefresh(ctx context.Context, id uuid.UUID) (bool, error)

	// GetRecords retrieves the synced snapshot for a data source.
	GetRecords(ctx context.Context, id uuid.UUID) ([]*models.SyncedRecord, error)

	// GetAuditTrail retrieves recent refresh audit entries, newest first.
	GetAuditTrail(ctx context.Context, id uuid.UUID, limit int) ([]*models.RefreshAuditEntry, error)

	// NextDueAt reports when the data source next becomes due, or nil when
	// auto-refresh is off. A nil time with a true flag means due now.
	NextDueAt(ctx context.Context, id uuid.UUID) (*time.Time, error)
}

type dataSourceService struct {
	dataSources repositories.DataSourceRepository
	connections repositories.ConnectionRepository
	records     repositories.SyncedRecordRepository
	audits      repositories.RefreshAuditRepository
	executor    RefreshExecutor
	queue       *workqueue.Queue
	logger      *zap.Logger
}

// NewDataSourceService creates a data source service.
func NewDataSourceService(
	dataSources repositories.DataSourceRepository,
	connections repositories.ConnectionRepository,
	records repositories.SyncedRecordRepository,
	audits repositories.RefreshAuditRepository,
	executor RefreshExecutor,
	queue *workqueue.Queue,
	logger *zap.Logger,
) DataSourceService {
	return &dataSourceService{
		dataSources: dataSources,
		connections: connections,
		records:     records,
		audits:      audits,
		executor:    executor,
		queue:       queue,
		logger:      logger.Named("datasources"),
	}
}

func (s *dataSourceService) Create(ctx context.Context, ds *models.DataSource) (*models.DataSource, error) {
	if strings.TrimSpace(ds.Name) == "" {
		return nil, fmt.Errorf("data source name must not be empty")
	}
	if strings.TrimSpace(ds.RecordType) == "" {
		return nil, fmt.Errorf("record type must not be empty")
	}

	// The connection must exist; an inactive one is allowed, the source just
	// will not refresh until it is reactivated.
	if _, err := s.connections.GetByID(ctx, ds.ConnectionID); err != nil {
		return nil, fmt.Errorf("resolve connection: %w", err)
	}

	ds.RefreshStatus = models.RefreshStatusIdle
	ds.LastRefresh = nil
	if err := s.dataSources.Create(ctx, ds); err != nil {
		return nil, err
	}

	s.logger.Info("data source created",
		zap.String("data_source_id", ds.ID.String()),
		zap.String("name", ds.Name),
		zap.String("record_type", ds.RecordType))

	return ds, nil
}

func (s *dataSourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	return s.dataSources.GetByID(ctx, id)
}

func (s *dataSourceService) List(ctx context.Context) ([]*models.DataSource, error) {
	return s.dataSources.List(ctx)
}

func (s *dataSourceService) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.DataSource, error) {
	return s.dataSources.ListByConnection(ctx, connectionID)
}

func (s *dataSourceService) Update(ctx context.Context, ds *models.DataSource) (*models.DataSource, error) {
	if strings.TrimSpace(ds.Name) == "" {
		return nil, fmt.Errorf("data source name must not be empty")
	}
	if strings.TrimSpace(ds.RecordType) == "" {
		return nil, fmt.Errorf("record type must not be empty")
	}

	if err := s.dataSources.Update(ctx, ds); err != nil {
		return nil, err
	}
	return s.dataSources.GetByID(ctx, ds.ID)
}

func (s *dataSourceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.dataSources.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("data source deleted", zap.String("data_source_id", id.String()))
	return nil
}

func (s *dataSourceService) TriggerRefresh(ctx context.Context, id uuid.UUID) (bool, error) {
	ds, err := s.dataSources.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	enqueued := s.queue.Enqueue(newRefreshTask(ds.ID, ds.Name, s.executor))
	if !enqueued {
		s.logger.Info("refresh already scheduled",
			zap.String("data_source_id", id.String()))
	}
	return enqueued, nil
}

func (s *dataSourceService) GetRecords(ctx context.Context, id uuid.UUID) ([]*models.SyncedRecord, error) {
	if _, err := s.dataSources.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.records.ListByDataSource(ctx, id)
}

func (s *dataSourceService) GetAuditTrail(ctx context.Context, id uuid.UUID, limit int) ([]*models.RefreshAuditEntry, error) {
	if _, err := s.dataSources.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.audits.ListByDataSource(ctx, id, limit)
}

func (s *dataSourceService) NextDueAt(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	ds, err := s.dataSources.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ds.AutoRefresh {
		return nil, nil
	}

	conn, err := s.connections.GetByID(ctx, ds.ConnectionID)
	if err != nil {
		return nil, err
	}

	if ds.LastRefresh == nil {
		now := time.Now()
		return &now, nil
	}
	due := ds.LastRefresh.Add(conn.RefreshInterval)
	return &due, nil
}

var _ DataSourceService = (*dataSourceService)(nil)
