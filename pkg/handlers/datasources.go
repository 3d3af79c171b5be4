package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/models"
	"github.com/songo-inc/songo-engine/pkg/services"
)

// ListDataSourcesResponse wraps the array for frontend compatibility.
type ListDataSourcesResponse struct {
	DataSources []*models.DataSource `json:"data_sources"`
}

// CreateDataSourceRequest for POST body.
type CreateDataSourceRequest struct {
	ConnectionID string                   `json:"connection_id"`
	Name         string                   `json:"name"`
	RecordType   string                   `json:"record_type"`
	Fields       []string                 `json:"fields"`
	Filters      []models.FilterPredicate `json:"filters"`
	AutoRefresh  bool                     `json:"auto_refresh"`
}

// UpdateDataSourceRequest for PUT body. The connection binding is immutable.
type UpdateDataSourceRequest struct {
	Name        string                   `json:"name"`
	RecordType  string                   `json:"record_type"`
	Fields      []string                 `json:"fields"`
	Filters     []models.FilterPredicate `json:"filters"`
	AutoRefresh bool                     `json:"auto_refresh"`
}

// TriggerRefreshResponse for manual refresh result. Enqueued is false when a
// refresh for this source is already pending or running.
type TriggerRefreshResponse struct {
	Enqueued bool `json:"enqueued"`
}

// ListRecordsResponse wraps the synced snapshot.
type ListRecordsResponse struct {
	Records []*models.SyncedRecord `json:"records"`
	Count   int                    `json:"count"`
}

// ListAuditResponse wraps the refresh audit trail, newest first.
type ListAuditResponse struct {
	Entries []*models.RefreshAuditEntry `json:"entries"`
}

// DataSourcesHandler handles data source HTTP requests.
type DataSourcesHandler struct {
	dataSourceService services.DataSourceService
	logger            *zap.Logger
}

// NewDataSourcesHandler creates a new data sources handler.
func NewDataSourcesHandler(dataSourceService services.DataSourceService, logger *zap.Logger) *DataSourcesHandler {
	return &DataSourcesHandler{
		dataSourceService: dataSourceService,
		logger:            logger,
	}
}

// RegisterRoutes registers the data sources handler's routes on the given mux.
func (h *DataSourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasources", h.List)
	mux.HandleFunc("POST /api/datasources", h.Create)
	mux.HandleFunc("GET /api/datasources/{id}", h.Get)
	mux.HandleFunc("PUT /api/datasources/{id}", h.Update)
	mux.HandleFunc("DELETE /api/datasources/{id}", h.Delete)
	mux.HandleFunc("POST /api/datasources/{id}/refresh", h.TriggerRefresh)
	mux.HandleFunc("GET /api/datasources/{id}/records", h.ListRecords)
	mux.HandleFunc("GET /api/datasources/{id}/audit", h.ListAudit)
}

func (h *DataSourcesHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_data_source_id", "Invalid data source ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /api/datasources. An optional connection_id query
// parameter restricts the result to one connection.
func (h *DataSourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		sources []*models.DataSource
		err     error
	)
	if connStr := r.URL.Query().Get("connection_id"); connStr != "" {
		connectionID, parseErr := uuid.Parse(connStr)
		if parseErr != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_connection_id", "Invalid connection ID format"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		sources, err = h.dataSourceService.ListByConnection(r.Context(), connectionID)
	} else {
		sources, err = h.dataSourceService.List(r.Context())
	}
	if err != nil {
		h.logger.Error("Failed to list data sources", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list data sources"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if sources == nil {
		sources = []*models.DataSource{}
	}
	if err := WriteJSON(w, http.StatusOK, ListDataSourcesResponse{DataSources: sources}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/datasources.
func (h *DataSourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	connectionID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_connection_id", "Invalid connection ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ds := &models.DataSource{
		ConnectionID: connectionID,
		Name:         req.Name,
		RecordType:   req.RecordType,
		Fields:       req.Fields,
		Filters:      req.Filters,
		AutoRefresh:  req.AutoRefresh,
	}

	created, err := h.dataSourceService.Create(r.Context(), ds)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "connection_not_found", "Connection not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to create data source", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_data_source", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, created); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/datasources/{id}.
func (h *DataSourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	ds, err := h.dataSourceService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "data_source_not_found", "Data source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get data source", zap.String("data_source_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get data source"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ds); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/datasources/{id}.
func (h *DataSourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req UpdateDataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ds := &models.DataSource{
		ID:          id,
		Name:        req.Name,
		RecordType:  req.RecordType,
		Fields:      req.Fields,
		Filters:     req.Filters,
		AutoRefresh: req.AutoRefresh,
	}

	updated, err := h.dataSourceService.Update(r.Context(), ds)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "data_source_not_found", "Data source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to update data source", zap.String("data_source_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_data_source", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, updated); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/datasources/{id}.
func (h *DataSourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.dataSourceService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "data_source_not_found", "Data source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to delete data source", zap.String("data_source_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to delete data source"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerRefresh handles POST /api/datasources/{id}/refresh.
// Schedules an immediate refresh and returns without waiting for it.
func (h *DataSourcesHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	enqueued, err := h.dataSourceService.TriggerRefresh(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "data_source_not_found", "Data source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to trigger refresh", zap.String("data_source_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to trigger refresh"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, TriggerRefreshResponse{Enqueued: enqueued}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListRecords handles GET /api/datasources/{id}/records.
func (h *DataSourcesHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	records, err := h.dataSourceService.GetRecords(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "data_source_not_found", "Data source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to list records", zap.String("data_source_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list records"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if records == nil {
		records = []*models.SyncedRecord{}
	}
	if err := WriteJSON(w, http.StatusOK, ListRecordsResponse{Records: records, Count: len(records)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListAudit handles GET /api/datasources/{id}/audit.
// An optional limit query parameter caps the number of entries returned.
func (h *DataSourcesHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Limit must be a non-negative integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	entries, err := h.dataSourceService.GetAuditTrail(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "data_source_not_found", "Data source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to list audit entries", zap.String("data_source_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list audit entries"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if entries == nil {
		entries = []*models.RefreshAuditEntry{}
	}
	if err := WriteJSON(w, http.StatusOK, ListAuditResponse{Entries: entries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
