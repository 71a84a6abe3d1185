// Package migrations evolves the client's local SQLite schema through an
// ordered list of steps keyed by version. goose records which versions have
// been applied; each step runs in its own transaction, receives the schema
// version the database had before this upgrade started, and must be safe to
// run again.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/pressly/goose/v3"
)

// ErrUpgradeFailed is fatal for the caller: the local store cannot be used.
// Versions committed before the failing step stay applied.
var ErrUpgradeFailed = errors.New("local store upgrade failed")

// Step is one schema version.
type Step struct {
	Version int64
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx, prior int64, log logging.Logger) error
}

// Run applies the built-in steps and returns the resulting version.
func Run(ctx context.Context, db *sql.DB, log logging.Logger) (int64, error) {
	return RunSteps(ctx, db, Steps(), log)
}

// RunSteps applies steps in version order. Already-applied versions are
// skipped by goose.
func RunSteps(ctx context.Context, db *sql.DB, steps []Step, log logging.Logger) (int64, error) {
	log = log.With("module", "migrations")

	var prior int64
	gm := make([]*goose.Migration, 0, len(steps))
	for _, s := range steps {
		s := s
		up := &goose.GoFunc{RunTx: func(ctx context.Context, tx *sql.Tx) error {
			log.Info(ctx, "applying schema step", "version", s.Version, "name", s.Name, "prior", prior)
			return s.Up(ctx, tx, prior, log)
		}}
		gm = append(gm, goose.NewGoMigration(s.Version, up, nil))
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, nil,
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(gm...),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpgradeFailed, err)
	}

	prior, err = provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: read version: %w", ErrUpgradeFailed, err)
	}

	if _, err := provider.Up(ctx); err != nil {
		log.Error(ctx, "schema upgrade failed", "prior", prior, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrUpgradeFailed, err)
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: read version: %w", ErrUpgradeFailed, err)
	}
	if current != prior {
		log.Info(ctx, "schema upgraded", "from", prior, "to", current)
	}
	return current, nil
}
