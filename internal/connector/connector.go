// Package connector brings up the data backends selected by DB_TYPE and only
// then hands control to the HTTP server. If any required backend cannot be
// reached the server is never started.
package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patric-chuzhbe/userapi/internal/config"
	"github.com/patric-chuzhbe/userapi/internal/db/memorystorage"
	"github.com/patric-chuzhbe/userapi/internal/db/mongodb"
	"github.com/patric-chuzhbe/userapi/internal/db/postgresdb"
	"github.com/patric-chuzhbe/userapi/internal/db/storage"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
)

// ErrMissingConfig is returned when a backend required by the mode has no
// connection parameters. No connection is attempted in that case.
var ErrMissingConfig = errors.New("missing backend connection parameters")

// Backend status values reported by Backends.Status.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// RelationalDialer opens the PostgreSQL backend.
type RelationalDialer func(ctx context.Context, dsn string, timeout time.Duration) (storage.Backend, error)

// DocumentDialer opens the MongoDB backend.
type DocumentDialer func(ctx context.Context, uri, database string, timeout time.Duration) (storage.Backend, error)

// MemoryDialer opens the in-process backend.
type MemoryDialer func(snapshotFile string) (storage.Backend, error)

// ServeFunc runs the server with the connected backends and blocks until it
// stops.
type ServeFunc func(ctx context.Context, backends *Backends) error

// Backends are the connections opened for the current mode.
type Backends struct {
	Mode       models.BackendMode
	Relational storage.Backend
	Document   storage.Backend
	Memory     storage.Backend
}

// Primary is the backend holding users. With both relational and document
// backends connected users live in the document store.
func (b *Backends) Primary() storage.Backend {
	switch {
	case b.Document != nil:
		return b.Document
	case b.Relational != nil:
		return b.Relational
	default:
		return b.Memory
	}
}

func (b *Backends) named() map[string]storage.Backend {
	result := map[string]storage.Backend{}
	if b.Relational != nil {
		result[string(models.BackendModeRelational)] = b.Relational
	}
	if b.Document != nil {
		result[string(models.BackendModeDocument)] = b.Document
	}
	if b.Memory != nil {
		result[string(models.BackendModeMemory)] = b.Memory
	}

	return result
}

// Status pings every connected backend.
func (b *Backends) Status(ctx context.Context) map[string]string {
	result := map[string]string{}
	for name, backend := range b.named() {
		if err := backend.Ping(ctx); err != nil {
			logger.Log.Warnw("backend ping failed", "backend", name, "error", err)
			result[name] = StatusDown
			continue
		}
		result[name] = StatusUp
	}

	return result
}

// Close closes the backends in reverse connection order.
func (b *Backends) Close() error {
	var errs []error
	for _, backend := range []storage.Backend{b.Memory, b.Document, b.Relational} {
		if backend == nil {
			continue
		}
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Connector sequences backend startup.
type Connector struct {
	cfg            *config.Config
	mode           models.BackendMode
	dialRelational RelationalDialer
	dialDocument   DocumentDialer
	dialMemory     MemoryDialer
}

// Option configures New.
type Option func(*Connector)

func WithRelationalDialer(dialer RelationalDialer) Option {
	return func(c *Connector) {
		c.dialRelational = dialer
	}
}

func WithDocumentDialer(dialer DocumentDialer) Option {
	return func(c *Connector) {
		c.dialDocument = dialer
	}
}

func WithMemoryDialer(dialer MemoryDialer) Option {
	return func(c *Connector) {
		c.dialMemory = dialer
	}
}

func New(cfg *config.Config, opts ...Option) *Connector {
	c := &Connector{
		cfg:            cfg,
		mode:           models.ParseBackendMode(cfg.DBType),
		dialRelational: dialPostgres,
		dialDocument:   dialMongo,
		dialMemory:     dialMemory,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Mode is the backend mode parsed from the configuration.
func (c *Connector) Mode() models.BackendMode {
	return c.mode
}

// Run connects the backends of the mode one after another and calls serve
// once all of them are up. In mode none it logs a warning and returns nil
// without serving. The backends are closed when serve returns.
func (c *Connector) Run(ctx context.Context, serve ServeFunc) (err error) {
	if c.mode == models.BackendModeNone {
		logger.Log.Warnw(
			"No database connected, web server will not start!",
			"DB_TYPE", c.cfg.DBType,
		)
		return nil
	}

	params, err := c.resolveParams()
	if err != nil {
		return err
	}

	backends, err := c.connect(ctx, params)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backends.Close(); closeErr != nil {
			logger.Log.Errorw("closing backends", "error", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}()

	return serve(ctx, backends)
}

type connectionParams struct {
	dsn           string
	mongoURI      string
	mongoDatabase string
}

func (c *Connector) resolveParams() (connectionParams, error) {
	var (
		params connectionParams
		err    error
	)

	if c.mode.NeedsRelational() {
		params.dsn, err = c.cfg.RelationalDSN()
		if err != nil {
			return params, fmt.Errorf("%w: %w", ErrMissingConfig, err)
		}
	}

	if c.mode.NeedsDocument() {
		params.mongoURI, params.mongoDatabase, err = c.cfg.DocumentURI()
		if err != nil {
			return params, fmt.Errorf("%w: %w", ErrMissingConfig, err)
		}
	}

	return params, nil
}

func (c *Connector) connect(ctx context.Context, params connectionParams) (*Backends, error) {
	backends := &Backends{Mode: c.mode}
	timeout := c.cfg.DBConnectionTimeout

	fail := func(err error) (*Backends, error) {
		if closeErr := backends.Close(); closeErr != nil {
			logger.Log.Errorw("closing backends after failed startup", "error", closeErr)
		}
		return nil, err
	}

	if c.mode == models.BackendModeMemory {
		backend, err := c.dialMemory(c.cfg.FileStoragePath)
		if err != nil {
			return fail(fmt.Errorf("in internal/connector/connector.go/connect(): error while `c.dialMemory()` calling: %w", err))
		}
		backends.Memory = backend
		logger.Log.Infoln("memory backend ready")
	}

	if c.mode.NeedsRelational() {
		backend, err := dialWithTimeout(ctx, timeout, func(ctx context.Context) (storage.Backend, error) {
			return c.dialRelational(ctx, params.dsn, timeout)
		})
		if err != nil {
			return fail(fmt.Errorf("in internal/connector/connector.go/connect(): error while `c.dialRelational()` calling: %w", err))
		}
		backends.Relational = backend
		logger.Log.Infoln("PostgreSQL connected")
	}

	if c.mode.NeedsDocument() {
		backend, err := dialWithTimeout(ctx, timeout, func(ctx context.Context) (storage.Backend, error) {
			return c.dialDocument(ctx, params.mongoURI, params.mongoDatabase, timeout)
		})
		if err != nil {
			return fail(fmt.Errorf("in internal/connector/connector.go/connect(): error while `c.dialDocument()` calling: %w", err))
		}
		backends.Document = backend
		logger.Log.Infoln("MongoDB connected")
	}

	return backends, nil
}

func dialWithTimeout(
	ctx context.Context,
	timeout time.Duration,
	dial func(ctx context.Context) (storage.Backend, error),
) (storage.Backend, error) {
	if timeout <= 0 {
		return dial(ctx)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return dial(ctxWithTimeout)
}

func dialPostgres(ctx context.Context, dsn string, timeout time.Duration) (storage.Backend, error) {
	return postgresdb.New(ctx, dsn, timeout)
}

func dialMongo(ctx context.Context, uri, database string, timeout time.Duration) (storage.Backend, error) {
	return mongodb.New(ctx, uri, database, timeout)
}

func dialMemory(snapshotFile string) (storage.Backend, error) {
	return memorystorage.New(snapshotFile)
}
