package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Client fetches records from the external record API on behalf of one
// source connection.
type Client interface {
	// Fetch executes a query descriptor and returns the matching records.
	Fetch(ctx context.Context, query QueryDescriptor) ([]Record, error)
	// TestConnection verifies that the credentials and account are usable.
	TestConnection(ctx context.Context) error
}

// ClientConfig holds the per-connection settings for an HTTP record API client.
type ClientConfig struct {
	BaseURL   string
	AccountID string
	// Token is the decrypted credential for this connection.
	Token   string
	Timeout time.Duration
}

// Factory builds a Client for a given connection. The refresh executor uses
// this to construct clients after decrypting credentials.
type Factory func(cfg ClientConfig) Client

type httpClient struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a record API client backed by HTTP.
func NewHTTPClient(cfg ClientConfig, logger *zap.Logger) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("source"),
	}
}

type fetchResponse struct {
	Records []Record `json:"records"`
}

func (c *httpClient) Fetch(ctx context.Context, query QueryDescriptor) ([]Record, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, NewError(ErrorTypeBadQuery, "failed to encode query descriptor", false, err)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/records/query", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(ErrorTypeBadQuery, "failed to build request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, ClassifyStatus(resp.StatusCode, string(b))
	}

	var parsed fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, NewError(ErrorTypeEndpoint, "failed to decode record API response", true, err)
	}

	c.logger.Debug("fetched records",
		zap.String("record_type", query.RecordType),
		zap.Int("count", len(parsed.Records)),
		zap.Duration("duration", time.Since(start)))

	return parsed.Records, nil
}

func (c *httpClient) TestConnection(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/accounts/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return NewError(ErrorTypeBadQuery, "failed to build request", false, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ClassifyStatus(resp.StatusCode, string(b))
	}
	return nil
}
