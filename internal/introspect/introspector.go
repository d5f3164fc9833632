package introspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"schoolhub/internal/cache"
	"schoolhub/internal/diff"
	"schoolhub/internal/metrics"
	"schoolhub/internal/tenant"
)

// DefaultExpectedTables is the baseline every tenant schema should carry.
var DefaultExpectedTables = []string{
	"schools",
	"users",
	"students",
	"teachers",
	"classes",
	"enrollments",
	"attendance_records",
	"grades",
	"fee_invoices",
	"payments",
}

// Catalog is the read-only metadata source. *db.Catalog satisfies it.
type Catalog interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
	SchemaExists(ctx context.Context, schema string) (bool, error)
	CountTables(ctx context.Context, schema string) (int, error)
}

type SchemaInfo struct {
	SchemaName     string   `json:"schema_name"`
	Tables         []string `json:"tables"`
	TableCount     int      `json:"table_count"`
	ExpectedTables []string `json:"expected_tables"`
	MissingTables  []string `json:"missing_tables"`
}

// Complete reports whether no expected table is missing.
func (s SchemaInfo) Complete() bool { return len(s.MissingTables) == 0 }

// QueryError wraps a catalog failure with the operation and schema involved.
type QueryError struct {
	Op     string
	Schema string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Schema, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

type Introspector struct {
	catalog  Catalog
	expected []string
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Introspector)

func WithExpectedTables(tables []string) Option {
	return func(i *Introspector) { i.expected = append([]string(nil), tables...) }
}

// WithCache caches positive SchemaExists answers for ttl.
// WithCache caches positive existence answers for ttl. A non-positive ttl
// leaves the introspector uncached.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(i *Introspector) {
		if ttl <= 0 {
			return
		}
		i.cache = c
		i.cacheTTL = ttl
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Introspector) { i.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Introspector) { i.metrics = m }
}

func New(catalog Catalog, opts ...Option) *Introspector {
	i := &Introspector{
		catalog:  catalog,
		expected: append([]string(nil), DefaultExpectedTables...),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Introspector) ExpectedTables() []string {
	return append([]string(nil), i.expected...)
}

// InspectSchema lists the base tables of schema and compares them with the
// expected baseline. A schema that does not exist yields an empty table list
// with every expected table missing.
func (i *Introspector) InspectSchema(ctx context.Context, schema string) (SchemaInfo, error) {
	if err := tenant.AssertValidSchemaName(schema); err != nil {
		return SchemaInfo{}, err
	}
	tables, err := i.catalog.ListTables(ctx, schema)
	if err != nil {
		i.metrics.ObserveIntrospectionError("inspect")
		return SchemaInfo{}, &QueryError{Op: "inspect schema", Schema: schema, Err: err}
	}
	if tables == nil {
		tables = []string{}
	}
	return SchemaInfo{
		SchemaName:     schema,
		Tables:         tables,
		TableCount:     len(tables),
		ExpectedTables: i.ExpectedTables(),
		MissingTables:  diff.MissingTables(i.expected, tables),
	}, nil
}

// SchemaExists answers false for invalid names and when the lookup fails.
func (i *Introspector) SchemaExists(ctx context.Context, schema string) bool {
	if err := tenant.AssertValidSchemaName(schema); err != nil {
		return false
	}
	key := "schema_exists:" + schema
	if i.cache != nil {
		if _, err := i.cache.Get(ctx, key); err == nil {
			return true
		} else if !errors.Is(err, cache.ErrMiss) {
			i.logger.Warn("schema cache read failed", "schema", schema, "error", err)
		}
	}

	exists, err := i.catalog.SchemaExists(ctx, schema)
	if err != nil {
		i.metrics.ObserveIntrospectionError("exists")
		i.logger.Error("schema existence check failed", "schema", schema, "error", err)
		return false
	}
	if exists && i.cache != nil {
		if err := i.cache.Set(ctx, key, "1", i.cacheTTL); err != nil {
			i.logger.Warn("schema cache write failed", "schema", schema, "error", err)
		}
	}
	return exists
}

// TableCount answers 0 for invalid names and when the count fails.
func (i *Introspector) TableCount(ctx context.Context, schema string) int {
	if err := tenant.AssertValidSchemaName(schema); err != nil {
		return 0
	}
	n, err := i.catalog.CountTables(ctx, schema)
	if err != nil {
		i.metrics.ObserveIntrospectionError("count")
		i.logger.Error("table count failed", "schema", schema, "error", err)
		return 0
	}
	return n
}

// InspectAll inspects schemas with at most concurrency lookups in flight.
// Results keep the input order; the first failure cancels the rest.
func (i *Introspector) InspectAll(ctx context.Context, schemas []string, concurrency int) ([]SchemaInfo, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([]SchemaInfo, len(schemas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for idx, schema := range schemas {
		idx, schema := idx, schema
		g.Go(func() error {
			info, err := i.InspectSchema(gctx, schema)
			if err != nil {
				return err
			}
			results[idx] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
