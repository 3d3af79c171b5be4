// Package source provides the client for the external record/query API that
// data sources are synchronized from.
package source

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/songo-inc/songo-engine/pkg/models"
)

// QueryDescriptor describes one fetch against the record API: which record
// type, which fields to project, and a structured filter predicate. Filters
// are never raw query text.
type QueryDescriptor struct {
	RecordType string                   `json:"record_type"`
	Fields     []string                 `json:"fields,omitempty"`
	Filters    []models.FilterPredicate `json:"filters,omitempty"`
	Limit      int                      `json:"limit,omitempty"`
}

// NewQueryDescriptor builds a descriptor from a data source definition.
// Record types are normalized to their lowercase singular form, which is what
// the record API expects ("customers" and "Customer" both become "customer").
func NewQueryDescriptor(ds *models.DataSource, maxRecords int) QueryDescriptor {
	return QueryDescriptor{
		RecordType: NormalizeRecordType(ds.RecordType),
		Fields:     ds.Fields,
		Filters:    ds.Filters,
		Limit:      maxRecords,
	}
}

// NormalizeRecordType lowercases and singularizes a record type name.
func NormalizeRecordType(recordType string) string {
	return inflection.Singular(strings.ToLower(strings.TrimSpace(recordType)))
}

// Record is one row returned by the record API. The "id" field is the
// external system's stable identifier (the natural key).
type Record map[string]any

// ExternalID extracts the natural key of a record. The record API serves ids
// as strings or JSON numbers depending on the record type; numeric ids are
// formatted in plain decimal, never exponent notation. Returns empty string
// when the record has no usable identifier.
func (r Record) ExternalID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
