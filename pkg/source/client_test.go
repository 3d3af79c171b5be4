package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/models"
)

func TestNormalizeRecordType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"customers", "customer"},
		{"Customer", "customer"},
		{"  Invoices ", "invoice"},
		{"people", "person"},
		{"order", "order"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRecordType(tt.in), "input %q", tt.in)
	}
}

func TestNewQueryDescriptor(t *testing.T) {
	ds := &models.DataSource{
		RecordType: "Customers",
		Fields:     []string{"id", "name"},
		Filters: []models.FilterPredicate{
			{Field: "region", Operator: "eq", Value: "emea"},
		},
	}

	q := NewQueryDescriptor(ds, 500)

	assert.Equal(t, "customer", q.RecordType)
	assert.Equal(t, []string{"id", "name"}, q.Fields)
	assert.Len(t, q.Filters, 1)
	assert.Equal(t, 500, q.Limit)
}

func TestRecordExternalID(t *testing.T) {
	assert.Equal(t, "abc-1", Record{"id": "abc-1"}.ExternalID())
	// json.Unmarshal into map[string]any delivers numeric ids as float64.
	assert.Equal(t, "12345", Record{"id": float64(12345)}.ExternalID())
	assert.Equal(t, "12345.5", Record{"id": float64(12345.5)}.ExternalID())
	assert.Equal(t, "9007199254740993", Record{"id": json.Number("9007199254740993")}.ExternalID())
	assert.Equal(t, "42", Record{"id": 42}.ExternalID())
	assert.Equal(t, "43", Record{"id": int64(43)}.ExternalID())
	assert.Equal(t, "", Record{"id": true}.ExternalID())
	assert.Equal(t, "", Record{"name": "x"}.ExternalID())
}

func TestHTTPClient_FetchNumericIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records": [{"id": 12345, "name": "first"}]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: srv.URL, AccountID: "a", Token: "t"}, zap.NewNop())

	records, err := client.Fetch(context.Background(), QueryDescriptor{RecordType: "customer"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "12345", records[0].ExternalID())
}

func TestHTTPClient_Fetch(t *testing.T) {
	var gotAuth string
	var gotQuery QueryDescriptor

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))

		json.NewEncoder(w).Encode(fetchResponse{Records: []Record{
			{"id": "r1", "name": "first"},
			{"id": "r2", "name": "second"},
		}})
	}))
	defer srv.Close()

	client := NewHTTPClient(ClientConfig{
		BaseURL:   srv.URL,
		AccountID: "acct-1",
		Token:     "secret-token",
		Timeout:   5 * time.Second,
	}, zap.NewNop())

	records, err := client.Fetch(context.Background(), QueryDescriptor{RecordType: "customer", Limit: 10})
	require.NoError(t, err)

	assert.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].ExternalID())
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "customer", gotQuery.RecordType)
}

func TestHTTPClient_FetchErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantType      ErrorType
		wantRetryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrorTypeAuth, false},
		{"bad request", http.StatusBadRequest, ErrorTypeBadQuery, false},
		{"rate limited", http.StatusTooManyRequests, ErrorTypeRateLimit, true},
		{"server error", http.StatusInternalServerError, ErrorTypeEndpoint, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewHTTPClient(ClientConfig{BaseURL: srv.URL, AccountID: "a", Token: "t"}, zap.NewNop())

			_, err := client.Fetch(context.Background(), QueryDescriptor{RecordType: "customer"})
			require.Error(t, err)

			var srcErr *Error
			require.True(t, errors.As(err, &srcErr))
			assert.Equal(t, tt.wantType, srcErr.Type)
			assert.Equal(t, tt.wantRetryable, srcErr.Retryable)
			assert.Equal(t, tt.status, srcErr.StatusCode)
		})
	}
}

func TestHTTPClient_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: srv.URL, AccountID: "acct-1", Token: "t"}, zap.NewNop())
	assert.NoError(t, client.TestConnection(context.Background()))
}

func TestClassifyError_Transient(t *testing.T) {
	err := ClassifyError(errors.New("dial tcp: connection refused"))
	assert.Equal(t, ErrorTypeEndpoint, err.Type)
	assert.True(t, err.Retryable)
	assert.True(t, IsRetryable(err))
}

func TestClassifyError_PassThrough(t *testing.T) {
	orig := NewError(ErrorTypeAuth, "bad credentials", false, nil)
	got := ClassifyError(orig)
	assert.Same(t, orig, got)
	assert.False(t, IsRetryable(got))
}
