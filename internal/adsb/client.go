package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yegors/adsb-tracker/internal/metrics"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

// Source names reported in stats and metrics
const (
	SourceLocal    = "local"
	SourcePlayback = "playback"
)

// Client polls a live dump1090/tar1090 aircraft.json endpoint
type Client struct {
	httpClient *http.Client
	sourceURL  string
	logger     *logger.Logger
}

// NewClient creates a new live feed client
func NewClient(sourceURL string, timeout time.Duration, loggerObj *logger.Logger) *Client {
	return &Client{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: loggerObj.Named("adsb-cli"),
	}
}

// Name returns the data source name
func (c *Client) Name() string {
	return SourceLocal
}

// FetchData fetches one snapshot from the live source
func (c *Client) FetchData(ctx context.Context) (*RawAircraftData, error) {
	start := time.Now()
	data, err := c.fetch(ctx)
	metrics.FeedFetchDuration.WithLabelValues(SourceLocal).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FeedFetchesTotal.WithLabelValues(SourceLocal, "error").Inc()
		return nil, err
	}
	metrics.FeedFetchesTotal.WithLabelValues(SourceLocal, "ok").Inc()
	return data, nil
}

func (c *Client) fetch(ctx context.Context) (*RawAircraftData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching local ADS-B data",
		logger.String("url", c.sourceURL),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var data RawAircraftData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	c.logger.Debug("Successfully fetched local ADS-B data",
		logger.Int("aircraft_count", len(data.Aircraft)),
		logger.Int("message_count", data.Messages),
	)

	return &data, nil
}
