// database/db.go - optional Postgres run journal
package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"orchctl/common"
)

// Journal writes one row per finished run. It is only opened when a DSN
// is configured.
type Journal struct {
	pool *pgxpool.Pool
	log  *common.Logger
}

// OpenJournal connects, pings and migrates. A journal that cannot be
// opened is an error for the caller to log; runs do not depend on it.
func OpenJournal(ctx context.Context, dsn string, log *common.Logger) (*Journal, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal dsn: %w", err)
	}
	// one short-lived CLI process
	cfg.MaxConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	log.Debugf("journal: connected to Postgres (max_conns=%d)", cfg.MaxConns)

	if err := runMigrations(connectCtx, pool, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal migrations: %w", err)
	}
	return &Journal{pool: pool, log: log}, nil
}

func (j *Journal) Close() {
	if j != nil && j.pool != nil {
		j.pool.Close()
	}
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	name    string
}

// pendingMigrations lists files like 001_init.sql newer than current,
// in version order.
func pendingMigrations(current int) ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var list []migration
	for _, e := range entries {
		n := e.Name()
		if !strings.HasSuffix(n, ".sql") {
			continue
		}
		base, _, _ := strings.Cut(n, "_")
		v, err := strconv.Atoi(base)
		if err != nil || v <= 0 {
			continue
		}
		if v > current {
			list = append(list, migration{version: v, name: n})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].version < list[j].version })
	return list, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, log *common.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version int PRIMARY KEY)`); err != nil {
		return err
	}
	var current int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version),0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	list, err := pendingMigrations(current)
	if err != nil {
		return err
	}
	for _, m := range list {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + m.name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, m.version); err != nil {
			return err
		}
		log.Infof("journal: applied migration %s", m.name)
	}
	return tx.Commit(ctx)
}
