package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
)

// Source supplies progress reports to the dashboard.
type Source interface {
	Progress(ctx context.Context) (campaign.Report, error)
	// Describe names the source in the dashboard header and error view.
	Describe() string
}

// Client reads progress from a running clustereval server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// Describe returns the server URL.
func (c *Client) Describe() string { return c.baseURL }

// Progress fetches GET /api/v1/progress.
func (c *Client) Progress(ctx context.Context) (campaign.Report, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/progress")
	if err != nil {
		return campaign.Report{}, fmt.Errorf("invalid base URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return campaign.Report{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return campaign.Report{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return campaign.Report{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var report campaign.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return campaign.Report{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return report, nil
}

// StoreSource reads progress straight from a progress store, for
// monitoring without a server.
type StoreSource struct {
	campaign *campaign.Campaign
	store    progress.Store
	name     string
}

// NewStoreSource creates a source over store. name is shown in the header.
func NewStoreSource(c *campaign.Campaign, store progress.Store, name string) *StoreSource {
	return &StoreSource{campaign: c, store: store, name: name}
}

// Describe returns the configured name.
func (s *StoreSource) Describe() string { return s.name }

// Progress loads every evaluation and reports against the campaign.
// Unlike the session path, a store failure is returned so the dashboard
// can show it.
func (s *StoreSource) Progress(ctx context.Context) (campaign.Report, error) {
	all, err := s.store.LoadAll(ctx)
	if err != nil {
		return campaign.Report{}, err
	}
	return s.campaign.Progress(all), nil
}
