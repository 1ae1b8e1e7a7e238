// Package geocode adapts the external geocoding service: it resolves
// free-text location queries into GeoJSON features with normalized
// three-letter country codes. Failures here are dependency failures,
// never validation errors — the document's own data is not at fault.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/geojson"
	"github.com/epiwatch/casestore/internal/metrics"
)

// Config holds the geocoder client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client is an HTTP adapter for the geocoding service.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewClient creates a geocoder client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// candidate is the geocoding service's wire shape for one result.
type candidate struct {
	Geometry struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"geometry"`
	Country string         `json:"country"`
	Name    string         `json:"name"`
	Extra   map[string]any `json:"properties"`
}

// Locate resolves a free-text query into candidate features. Zero
// candidates is a dependency failure, not an empty success.
func (c *Client) Locate(ctx context.Context, query string) (feats []geojson.Feature, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.GeocodeRequestsTotal.WithLabelValues(status).Inc()
		metrics.GeocodeRequestDuration.Observe(time.Since(start).Seconds())
	}()
	return c.locate(ctx, query)
}

func (c *Client) locate(ctx context.Context, query string) ([]geojson.Feature, error) {
	u := fmt.Sprintf("%s/geocode?q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w: %w", query, domain.ErrDependencyFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode %q: status %d: %w", query, resp.StatusCode, domain.ErrDependencyFailed)
	}

	var candidates []candidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return nil, fmt.Errorf("geocode %q: decode: %w: %w", query, domain.ErrDependencyFailed, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("geocode %q: no candidates: %w", query, domain.ErrDependencyFailed)
	}

	features := make([]geojson.Feature, 0, len(candidates))
	for _, cand := range candidates {
		country, err := NormalizeCountry(cand.Country)
		if err != nil {
			return nil, err
		}
		props := map[string]any{"country": country}
		if cand.Name != "" {
			props["name"] = cand.Name
		}
		for k, v := range cand.Extra {
			if _, taken := props[k]; !taken {
				props[k] = v
			}
		}
		features = append(features, geojson.Feature{
			Type:       geojson.FeatureType,
			Geometry:   geojson.NewPoint(cand.Geometry.Latitude, cand.Geometry.Longitude),
			Properties: props,
		})
	}

	c.logger.Debug("geocoded query",
		zap.String("query", query),
		zap.Int("candidates", len(features)),
	)
	return features, nil
}
