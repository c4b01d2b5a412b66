package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/domain"
)

// License is the short-lived response of a DRM license exchange.
type License struct {
	ManifestURL string    `json:"manifest_url"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LicenseClient exchanges opaque asset ids for stream licenses at the
// provider's license endpoint.
type LicenseClient struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

// NewLicenseClient creates a license client for the configured endpoint.
func NewLicenseClient(cfg config.LicenseConfig, userAgent string) *LicenseClient {
	return &LicenseClient{
		endpoint:  cfg.Endpoint,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type licenseRequest struct {
	AssetID string `json:"asset_id"`
}

// Exchange trades an asset id for a license. Expired or invalid caller
// tokens surface as domain.ErrAuthExpired so the orchestrator can
// re-authenticate instead of blindly retrying.
func (c *LicenseClient) Exchange(ctx context.Context, assetID, authToken string) (*License, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("license endpoint not configured")
	}

	body, err := json.Marshal(licenseRequest{AssetID: assetID})
	if err != nil {
		return nil, fmt.Errorf("marshal license request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}

	var lic License
	if err := json.NewDecoder(resp.Body).Decode(&lic); err != nil {
		return nil, fmt.Errorf("decode license: %w", err)
	}
	if lic.ManifestURL == "" || lic.Token == "" {
		return nil, fmt.Errorf("license response missing manifest URL or token")
	}
	if !lic.ExpiresAt.IsZero() && time.Now().After(lic.ExpiresAt) {
		return nil, fmt.Errorf("license already expired: %w", domain.ErrAuthExpired)
	}

	return &lic, nil
}
