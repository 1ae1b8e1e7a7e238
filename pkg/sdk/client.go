package casestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/caserecord"
	"github.com/epiwatch/casestore/internal/domain/filter"
	"github.com/epiwatch/casestore/internal/domain/geojson"
	"github.com/epiwatch/casestore/internal/domain/schema"
	"github.com/epiwatch/casestore/internal/geocode"
	"github.com/epiwatch/casestore/internal/store"
	storeMemory "github.com/epiwatch/casestore/internal/store/memory"
	storeMongo "github.com/epiwatch/casestore/internal/store/mongo"
	casesuc "github.com/epiwatch/casestore/internal/usecase/cases"
)

// Client is the casestore SDK entry point.
type Client struct {
	reg   *schema.Registry
	svc   *casesuc.Service
	mongo *storeMongo.Store
}

// New creates a Client and connects to the configured backend.
// The provided context bounds the initial connection attempt.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		geocoderTimeout: 5 * time.Second,
		logger:          zap.NewNop(),
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	reg := schema.NewRegistry()

	var (
		st    store.Store
		mongo *storeMongo.Store
	)
	switch cfg.driver {
	case "memory":
		st = storeMemory.New(reg)
	case "mongodb":
		mg, err := storeMongo.New(ctx, storeMongo.Config{
			URI:        cfg.mongoURI,
			Database:   cfg.mongoDatabase,
			Collection: cfg.mongoCollection,
		}, reg, cfg.logger)
		if err != nil {
			return nil, fmt.Errorf("casestore: connect mongodb: %w", err)
		}
		st, mongo = mg, mg
	default:
		return nil, errors.New("casestore: storage backend required (use WithMemory or WithMongo)")
	}

	var geocoder casesuc.Geocoder = noopGeocoder{}
	if cfg.geocoderURL != "" {
		geocoder = geocode.NewClient(&geocode.Config{
			BaseURL: cfg.geocoderURL,
			Timeout: cfg.geocoderTimeout,
			Logger:  cfg.logger,
		})
	}

	svc := casesuc.New(st, reg, geocoder, cfg.logger)
	if cfg.defaultPageSize > 0 || cfg.maxPageSize > 0 {
		svc = svc.WithPagination(cfg.defaultPageSize, cfg.maxPageSize)
	}

	return &Client{reg: reg, svc: svc, mongo: mongo}, nil
}

// Close releases backend resources.
func (c *Client) Close(ctx context.Context) error {
	if c.mongo == nil {
		return nil
	}
	if err := c.mongo.Close(ctx); err != nil {
		return fmt.Errorf("casestore: close: %w", err)
	}
	return nil
}

// Ping checks backend connectivity. Always succeeds for the memory driver.
func (c *Client) Ping(ctx context.Context) error {
	if c.mongo == nil {
		return nil
	}
	if err := c.mongo.Ping(ctx); err != nil {
		return fmt.Errorf("casestore: ping: %w", err)
	}
	return nil
}

// Cases returns the case operations service.
func (c *Client) Cases() *CaseService {
	return &CaseService{svc: c.svc}
}

// Schema returns the custom field registration service.
func (c *Client) Schema() *SchemaService {
	return &SchemaService{svc: c.svc}
}

// CaseService exposes case lifecycle operations.
type CaseService struct {
	svc *casesuc.Service
}

// Create validates a raw case payload, resolves its location query if
// any, and stores it. Returns the stored case with its identifier set.
func (s *CaseService) Create(ctx context.Context, raw map[string]any) (*caserecord.Case, error) {
	return s.svc.Create(ctx, raw)
}

// List returns one page of cases matching the filter.
func (s *CaseService) List(ctx context.Context, f filter.Filter, page, pageSize int64) (store.CasePage, error) {
	return s.svc.List(ctx, f, page, pageSize)
}

// Count returns the number of cases matching the filter.
func (s *CaseService) Count(ctx context.Context, f filter.Filter) (int64, error) {
	return s.svc.Count(ctx, f)
}

// Update applies a partial payload to the case with the given id.
func (s *CaseService) Update(ctx context.Context, id string, raw map[string]any) error {
	return s.svc.Update(ctx, id, raw)
}

// Delete removes a case by id.
func (s *CaseService) Delete(ctx context.Context, id string) error {
	return s.svc.Delete(ctx, id)
}

// BatchUpsert inserts or replaces many cases, matching on case-reference
// identity. Per-entry failures are reported in the outcome, not as an error.
func (s *CaseService) BatchUpsert(ctx context.Context, raws []map[string]any) (store.UpsertOutcome, error) {
	return s.svc.BatchUpsert(ctx, raws)
}

// ExportCSV streams matching non-excluded cases as CSV to w.
func (s *CaseService) ExportCSV(ctx context.Context, f filter.Filter, w io.Writer) error {
	return s.svc.ExportCSV(ctx, f, w)
}

// ExportKey returns the deterministic cache key for a filter's export.
func (s *CaseService) ExportKey(f filter.Filter) string {
	return s.svc.ExportKey(f)
}

// SchemaService registers and lists custom case fields.
type SchemaService struct {
	svc *casesuc.Service
}

// RegisterField adds a custom field ("string", "date" or "integer") to
// the live schema. It is usable by every subsequent operation at once.
func (s *SchemaService) RegisterField(name, fieldType string) (schema.Field, error) {
	return s.svc.RegisterField(name, schema.Type(fieldType))
}

// Fields lists registered custom fields in registration order.
func (s *SchemaService) Fields() []schema.Field {
	return s.svc.Fields()
}

// noopGeocoder fails every lookup (used when no geocoder is configured).
type noopGeocoder struct{}

func (noopGeocoder) Locate(context.Context, string) ([]geojson.Feature, error) {
	return nil, fmt.Errorf(
		"casestore: geocoder not configured (use WithGeocoder): %w", domain.ErrDependencyFailed)
}
