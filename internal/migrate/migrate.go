// Package migrate applies the embedded Postgres schema. The SQLite backend
// creates its own tables on open and does not use it.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/example/hhbot/internal/db"
)

//go:embed *.sql
var fs embed.FS

// lockKey is the advisory lock held while a migration is applied, so two
// servers starting together do not race on the same file.
const lockKey int64 = 0x6868626f74 // "hhbot"

// Migration is one embedded file and when it was applied, if ever.
type Migration struct {
	Name      string
	AppliedAt *time.Time
}

func (m Migration) Applied() bool { return m.AppliedAt != nil }

// Files returns the embedded migration names in apply order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

const createTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Up applies every pending migration, each in its own transaction, and
// returns the names it applied.
func Up(ctx context.Context, d *db.DB, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	files, err := Files()
	if err != nil {
		return nil, err
	}
	if err := d.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []string
	for _, f := range files {
		b, err := fs.ReadFile(f)
		if err != nil {
			return applied, err
		}
		var ran bool
		err = d.InTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
				return err
			}
			var done bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, f).Scan(&done); err != nil {
				return err
			}
			if done {
				return nil
			}
			if _, err := tx.Exec(ctx, string(b)); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, f); err != nil {
				return err
			}
			ran = true
			return nil
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", f, err)
		}
		if ran {
			log.Info("migration applied", zap.String("version", f))
			applied = append(applied, f)
		}
	}
	return applied, nil
}

// Status lists every embedded migration with its apply time.
func Status(ctx context.Context, d *db.DB) ([]Migration, error) {
	files, err := Files()
	if err != nil {
		return nil, err
	}
	if err := d.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := d.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := map[string]time.Time{}
	for rows.Next() {
		var (
			v  string
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		done[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return merge(files, done), nil
}

// merge pairs files with their apply times. Versions recorded in the
// database but no longer embedded are left out.
func merge(files []string, done map[string]time.Time) []Migration {
	out := make([]Migration, len(files))
	for i, f := range files {
		out[i].Name = f
		if at, ok := done[f]; ok {
			out[i].AppliedAt = &at
		}
	}
	return out
}
