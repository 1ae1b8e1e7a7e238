package casestore

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver string // "memory" or "mongodb"

	mongoURI        string
	mongoDatabase   string
	mongoCollection string

	geocoderURL     string
	geocoderTimeout time.Duration

	defaultPageSize int64
	maxPageSize     int64

	logger *zap.Logger
}

// WithMemory keeps all cases in process memory. Data does not survive
// the client; intended for tests and prototypes.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
	})
}

// WithMongo stores cases durably in the given MongoDB collection.
func WithMongo(uri, database, collection string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "mongodb"
		c.mongoURI = uri
		c.mongoDatabase = database
		c.mongoCollection = collection
	})
}

// WithGeocoder sets the location service used to resolve free-text
// location queries. Without it, creating a case that carries a location
// query fails with ErrDependencyFailed.
func WithGeocoder(baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.geocoderURL = baseURL
	})
}

// WithGeocoderTimeout overrides the geocoder request timeout (default 5s).
func WithGeocoderTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.geocoderTimeout = d
	})
}

// WithPagination sets the default and maximum page size for listings.
func WithPagination(defaultPageSize, maxPageSize int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultPageSize = defaultPageSize
		c.maxPageSize = maxPageSize
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
