package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/models"
)

func newConnectionsMux(svc *mockConnectionService) *http.ServeMux {
	mux := http.NewServeMux()
	NewConnectionsHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestConnectionsHandler_Create(t *testing.T) {
	var gotCredentials string
	svc := &mockConnectionService{
		CreateFunc: func(ctx context.Context, conn *models.SourceConnection, credentials string) (*models.SourceConnection, error) {
			gotCredentials = credentials
			conn.ID = uuid.New()
			conn.Credentials = models.RedactedCredentials
			return conn, nil
		},
	}
	mux := newConnectionsMux(svc)

	body := `{"name":"prod","account_id":"acct-1","credentials":"secret-token","refresh_interval_seconds":900,"auto_refresh":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if gotCredentials != "secret-token" {
		t.Errorf("expected credentials to reach the service, got %q", gotCredentials)
	}

	var resp ConnectionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Credentials != models.RedactedCredentials {
		t.Errorf("expected redacted credentials in response, got %q", resp.Credentials)
	}
	if resp.RefreshIntervalSeconds != 900 {
		t.Errorf("expected refresh_interval_seconds 900, got %d", resp.RefreshIntervalSeconds)
	}
}

func TestConnectionsHandler_Create_Conflict(t *testing.T) {
	svc := &mockConnectionService{
		CreateFunc: func(ctx context.Context, conn *models.SourceConnection, credentials string) (*models.SourceConnection, error) {
			return nil, apperrors.ErrConflict
		},
	}
	mux := newConnectionsMux(svc)

	body := `{"name":"prod","account_id":"acct-1","credentials":"tok"}`
	req := httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestConnectionsHandler_Get_NeverLeaksCredentials(t *testing.T) {
	id := uuid.New()
	svc := &mockConnectionService{
		GetFunc: func(ctx context.Context, gotID uuid.UUID) (*models.SourceConnection, error) {
			return &models.SourceConnection{
				ID:              id,
				Name:            "prod",
				AccountID:       "acct-1",
				Credentials:     models.RedactedCredentials,
				Active:          true,
				RefreshInterval: 30 * time.Minute,
			}, nil
		},
	}
	mux := newConnectionsMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/connections/"+id.String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("response must not contain credential material")
	}

	var resp ConnectionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Credentials != models.RedactedCredentials {
		t.Errorf("expected redacted credentials, got %q", resp.Credentials)
	}
	if resp.RefreshIntervalSeconds != 1800 {
		t.Errorf("expected refresh_interval_seconds 1800, got %d", resp.RefreshIntervalSeconds)
	}
}

func TestConnectionsHandler_Get_NotFound(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/connections/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestConnectionsHandler_Get_InvalidID(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/connections/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestConnectionsHandler_Delete_Referenced(t *testing.T) {
	svc := &mockConnectionService{
		DeleteFunc: func(ctx context.Context, id uuid.UUID) error {
			return apperrors.ErrConnectionReferenced
		},
	}
	mux := newConnectionsMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/connections/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestConnectionsHandler_UpdateCredentials(t *testing.T) {
	var got string
	svc := &mockConnectionService{
		UpdateCredentialsFunc: func(ctx context.Context, id uuid.UUID, credentials string) error {
			got = credentials
			return nil
		},
	}
	mux := newConnectionsMux(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/connections/"+uuid.NewString()+"/credentials",
		strings.NewReader(`{"credentials":"rotated"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if got != "rotated" {
		t.Errorf("expected credentials 'rotated', got %q", got)
	}
}

func TestConnectionsHandler_UpdateCredentials_Missing(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodPut, "/api/connections/"+uuid.NewString()+"/credentials",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestConnectionsHandler_TestConnection_FailureInBody(t *testing.T) {
	svc := &mockConnectionService{
		GetFunc: func(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error) {
			return &models.SourceConnection{ID: id}, nil
		},
		TestConnectionFunc: func(ctx context.Context, id uuid.UUID) error {
			return context.DeadlineExceeded
		},
	}
	mux := newConnectionsMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/connections/"+uuid.NewString()+"/test", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp TestConnectionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success {
		t.Error("expected success=false for failed connection test")
	}
}

func TestConnectionsHandler_DeactivateActivate(t *testing.T) {
	var deactivated, activated bool
	svc := &mockConnectionService{
		DeactivateFunc: func(ctx context.Context, id uuid.UUID) error {
			deactivated = true
			return nil
		},
		ActivateFunc: func(ctx context.Context, id uuid.UUID) error {
			activated = true
			return nil
		},
	}
	mux := newConnectionsMux(svc)
	id := uuid.NewString()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections/"+id+"/deactivate", nil))
	if rec.Code != http.StatusNoContent || !deactivated {
		t.Errorf("deactivate: expected %d and service call, got %d (called=%v)", http.StatusNoContent, rec.Code, deactivated)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections/"+id+"/activate", nil))
	if rec.Code != http.StatusNoContent || !activated {
		t.Errorf("activate: expected %d and service call, got %d (called=%v)", http.StatusNoContent, rec.Code, activated)
	}
}
