package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/models"
	"github.com/songo-inc/songo-engine/pkg/services"
)

// ConnectionResponse is the API shape of a source connection. Credentials are
// always redacted; intervals are expressed in seconds.
type ConnectionResponse struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	AccountID              string `json:"account_id"`
	Credentials            string `json:"credentials"`
	Active                 bool   `json:"active"`
	AutoRefresh            bool   `json:"auto_refresh"`
	RefreshIntervalSeconds int64  `json:"refresh_interval_seconds"`
	Description            string `json:"description,omitempty"`
	CreatedAt              string `json:"created_at"`
	UpdatedAt              string `json:"updated_at"`
}

func toConnectionResponse(c *models.SourceConnection) ConnectionResponse {
	return ConnectionResponse{
		ID:                     c.ID.String(),
		Name:                   c.Name,
		AccountID:              c.AccountID,
		Credentials:            models.RedactedCredentials,
		Active:                 c.Active,
		AutoRefresh:            c.AutoRefresh,
		RefreshIntervalSeconds: int64(c.RefreshInterval / time.Second),
		Description:            c.Description,
		CreatedAt:              c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:              c.UpdatedAt.Format(time.RFC3339),
	}
}

// ListConnectionsResponse wraps the array for frontend compatibility.
type ListConnectionsResponse struct {
	Connections []ConnectionResponse `json:"connections"`
}

// CreateConnectionRequest for POST body. Credentials appear here and nowhere
// else in the API.
type CreateConnectionRequest struct {
	Name                   string `json:"name"`
	AccountID              string `json:"account_id"`
	Credentials            string `json:"credentials"`
	AutoRefresh            bool   `json:"auto_refresh"`
	RefreshIntervalSeconds int64  `json:"refresh_interval_seconds"`
	Description            string `json:"description"`
}

// UpdateConnectionRequest for PUT body. Credentials are updated through the
// dedicated credentials endpoint, never here.
type UpdateConnectionRequest struct {
	Name                   string `json:"name"`
	AutoRefresh            bool   `json:"auto_refresh"`
	RefreshIntervalSeconds int64  `json:"refresh_interval_seconds"`
	Description            string `json:"description"`
}

// UpdateCredentialsRequest for PUT credentials body.
type UpdateCredentialsRequest struct {
	Credentials string `json:"credentials"`
}

// TestConnectionResponse for connection test result.
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConnectionsHandler handles source connection HTTP requests.
type ConnectionsHandler struct {
	connectionService services.ConnectionService
	logger            *zap.Logger
}

// NewConnectionsHandler creates a new connections handler.
func NewConnectionsHandler(connectionService services.ConnectionService, logger *zap.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{
		connectionService: connectionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the connections handler's routes on the given mux.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/connections", h.List)
	mux.HandleFunc("POST /api/connections", h.Create)
	mux.HandleFunc("GET /api/connections/{id}", h.Get)
	mux.HandleFunc("PUT /api/connections/{id}", h.Update)
	mux.HandleFunc("DELETE /api/connections/{id}", h.Delete)
	mux.HandleFunc("PUT /api/connections/{id}/credentials", h.UpdateCredentials)
	mux.HandleFunc("POST /api/connections/{id}/activate", h.Activate)
	mux.HandleFunc("POST /api/connections/{id}/deactivate", h.Deactivate)
	mux.HandleFunc("POST /api/connections/{id}/test", h.TestConnection)
}

func (h *ConnectionsHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_connection_id", "Invalid connection ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /api/connections.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connectionService.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list connections", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list connections"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ListConnectionsResponse{
		Connections: make([]ConnectionResponse, len(conns)),
	}
	for i, c := range conns {
		response.Connections[i] = toConnectionResponse(c)
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/connections.
func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	conn := &models.SourceConnection{
		Name:            req.Name,
		AccountID:       req.AccountID,
		AutoRefresh:     req.AutoRefresh,
		RefreshInterval: time.Duration(req.RefreshIntervalSeconds) * time.Second,
		Description:     req.Description,
	}

	created, err := h.connectionService.Create(r.Context(), conn, req.Credentials)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			if err := ErrorResponse(w, http.StatusConflict, "connection_exists", "A connection with this name already exists"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to create connection", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_connection", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, toConnectionResponse(created)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/connections/{id}.
func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	conn, err := h.connectionService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "connection_not_found", "Connection not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get connection", zap.String("connection_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get connection"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, toConnectionResponse(conn)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/connections/{id}.
func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req UpdateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	conn := &models.SourceConnection{
		ID:              id,
		Name:            req.Name,
		AutoRefresh:     req.AutoRefresh,
		RefreshInterval: time.Duration(req.RefreshIntervalSeconds) * time.Second,
		Description:     req.Description,
	}

	updated, err := h.connectionService.Update(r.Context(), conn)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "connection_not_found", "Connection not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to update connection", zap.String("connection_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_connection", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, toConnectionResponse(updated)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/connections/{id}.
// Connections still referenced by data sources cannot be deleted.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.connectionService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrConnectionReferenced) {
			if err := ErrorResponse(w, http.StatusConflict, "connection_referenced", "Connection is still used by data sources; deactivate it instead"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "connection_not_found", "Connection not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to delete connection", zap.String("connection_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to delete connection"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateCredentials handles PUT /api/connections/{id}/credentials.
func (h *ConnectionsHandler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req UpdateCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.Credentials == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_credentials", "Credentials are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.connectionService.UpdateCredentials(r.Context(), id, req.Credentials); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "connection_not_found", "Connection not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to update credentials", zap.String("connection_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to update credentials"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /api/connections/{id}/activate.
func (h *ConnectionsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /api/connections/{id}/deactivate.
func (h *ConnectionsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *ConnectionsHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var err error
	if active {
		err = h.connectionService.Activate(r.Context(), id)
	} else {
		err = h.connectionService.Deactivate(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "connection_not_found", "Connection not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to change connection state", zap.String("connection_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to change connection state"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TestConnection handles POST /api/connections/{id}/test.
// Verifies the stored credentials against the record API. Never fails the
// request on an unreachable upstream; the result goes in the body.
func (h *ConnectionsHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	response := TestConnectionResponse{Success: true, Message: "Connection successful"}
	if err := h.connectionService.TestConnection(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "connection_not_found", "Connection not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		response = TestConnectionResponse{Success: false, Message: err.Error()}
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
