package models

import (
	"time"

	"github.com/google/uuid"
)

// RedactedCredentials is the placeholder returned on every read path instead
// of credential material. Credentials are write-only from the API's
// perspective.
const RedactedCredentials = "[REDACTED]"

// SourceConnection holds identity and credentials for one external record-API
// account. Credential material is encrypted at rest by the service layer and
// never returned in plaintext.
type SourceConnection struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AccountID string    `json:"account_id"`
	// Credentials carries the opaque secret on write paths only. Read paths
	// populate it with RedactedCredentials.
	Credentials     string        `json:"credentials,omitempty"`
	Active          bool          `json:"active"`
	AutoRefresh     bool          `json:"auto_refresh"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	Description     string        `json:"description,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Redacted returns a copy safe for API responses.
func (c *SourceConnection) Redacted() *SourceConnection {
	out := *c
	out.Credentials = RedactedCredentials
	return &out
}
