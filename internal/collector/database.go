package collector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/vitalis-app/exporter/internal/models"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// dialect describes how one database engine is probed.
type dialect struct {
	sqlDriver string
	prefix    string
	descs     []models.Desc
	validate  func(dsn string) error
	status    func(ctx context.Context, db *sql.DB) (map[string]float64, error)
}

var dialects = map[string]dialect{
	DriverMySQL: {
		sqlDriver: "mysql",
		prefix:    "mysql",
		descs: []models.Desc{
			{Name: "mysql_up", Help: "MySQL server status", Kind: models.Gauge},
			{Name: "mysql_connections", Help: "Current MySQL connections", Kind: models.Gauge},
			{Name: "mysql_queries_total", Help: "Total MySQL queries", Kind: models.Counter},
		},
		validate: func(dsn string) error {
			_, err := mysql.ParseDSN(dsn)
			return err
		},
		status: mysqlStatus,
	},
	DriverPostgres: {
		sqlDriver: "pgx",
		prefix:    "postgres",
		descs: []models.Desc{
			{Name: "postgres_up", Help: "PostgreSQL server status", Kind: models.Gauge},
			{Name: "postgres_connections", Help: "Current PostgreSQL backends", Kind: models.Gauge},
			{Name: "postgres_transactions_total", Help: "Total committed and rolled back transactions", Kind: models.Counter},
		},
		validate: func(dsn string) error {
			_, err := pgx.ParseConfig(dsn)
			return err
		},
		status: postgresStatus,
	},
}

// ValidateDSN checks that driver is supported and that a non-empty dsn
// parses for it.
func ValidateDSN(driver, dsn string) error {
	d, ok := dialects[driver]
	if !ok {
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		return nil
	}
	if err := d.validate(dsn); err != nil {
		return fmt.Errorf("invalid %s dsn: %w", driver, err)
	}
	return nil
}

// dbProbe is the subset of a database connection the collector needs.
type dbProbe interface {
	PingContext(ctx context.Context) error
	Status(ctx context.Context) (map[string]float64, error)
	Close() error
}

type sqlProbe struct {
	*sql.DB
	status func(ctx context.Context, db *sql.DB) (map[string]float64, error)
}

func (p sqlProbe) Status(ctx context.Context) (map[string]float64, error) {
	return p.status(ctx, p.DB)
}

// DatabaseCollector reports liveness, connection count and a throughput
// counter for a MySQL or PostgreSQL server.
type DatabaseCollector struct {
	dialect dialect
	dsn     string
	open    func() (dbProbe, error)

	mu    sync.Mutex
	probe dbProbe
}

// NewDatabaseCollector creates a collector for driver ("mysql" or "postgres").
// The DSN is validated up front; an empty DSN is accepted and reported as
// not configured on every collection.
func NewDatabaseCollector(driver, dsn string) (*DatabaseCollector, error) {
	if err := ValidateDSN(driver, dsn); err != nil {
		return nil, err
	}
	d := dialects[driver]
	c := &DatabaseCollector{dialect: d, dsn: dsn}
	c.open = func() (dbProbe, error) {
		db, err := sql.Open(d.sqlDriver, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(2)
		db.SetMaxIdleConns(1)
		db.SetConnMaxIdleTime(5 * time.Minute)
		return sqlProbe{DB: db, status: d.status}, nil
	}
	return c, nil
}

// Name returns the collector identifier.
func (c *DatabaseCollector) Name() string { return "database" }

// Describe returns the families of the configured engine.
func (c *DatabaseCollector) Describe() []models.Desc { return c.dialect.descs }

// IsAvailable returns true.
func (c *DatabaseCollector) IsAvailable() bool { return true }

// Collect pings the server. An unreachable server yields only <prefix>_up 0.
func (c *DatabaseCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	if c.dsn == "" {
		return nil, NewError(KindNotConfigured, "no database dsn configured")
	}
	p, err := c.connection()
	if err != nil {
		return nil, WrapError(KindNotConfigured, "open database", err)
	}

	up := c.dialect.prefix + "_up"
	if err := p.PingContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []models.Sample{models.NewSample(up, 0, nil)}, nil
	}

	status, err := p.Status(ctx)
	if err != nil {
		return nil, WrapError(KindUnreachable, "query server status", err)
	}
	samples := []models.Sample{models.NewSample(up, 1, nil)}
	for _, d := range c.dialect.descs {
		if v, ok := status[d.Name]; ok {
			samples = append(samples, models.NewSample(d.Name, v, nil))
		}
	}
	return samples, nil
}

// Close releases the connection pool.
func (c *DatabaseCollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probe == nil {
		return nil
	}
	err := c.probe.Close()
	c.probe = nil
	return err
}

func (c *DatabaseCollector) connection() (dbProbe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probe != nil {
		return c.probe, nil
	}
	p, err := c.open()
	if err != nil {
		return nil, err
	}
	c.probe = p
	return p, nil
}

func mysqlStatus(ctx context.Context, db *sql.DB) (map[string]float64, error) {
	rows, err := db.QueryContext(ctx,
		"SHOW GLOBAL STATUS WHERE Variable_name IN ('Threads_connected', 'Queries')")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64, 2)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		switch name {
		case "Threads_connected":
			out["mysql_connections"] = v
		case "Queries":
			out["mysql_queries_total"] = v
		}
	}
	return out, rows.Err()
}

func postgresStatus(ctx context.Context, db *sql.DB) (map[string]float64, error) {
	var conns, xacts float64
	err := db.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM pg_stat_activity WHERE backend_type = 'client backend'),
		(SELECT COALESCE(sum(xact_commit + xact_rollback), 0) FROM pg_stat_database)`).Scan(&conns, &xacts)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"postgres_connections":        conns,
		"postgres_transactions_total": xacts,
	}, nil
}
