package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Steps returns the schema history in version order.
func Steps() []Step {
	return []Step{
		{Version: 1, Name: "create stores", Up: createStores},
		{Version: 2, Name: "external id indexes", Up: createIndexes},
		{Version: 3, Name: "backfill paper rating", Up: backfillField("papers", "rating", nil)},
		{Version: 4, Name: "backfill collection paper ids", Up: backfillField("collections", "paperIds", []any{})},
	}
}

func createStores(ctx context.Context, tx *sql.Tx, _ int64, log logging.Logger) error {
	stmts := map[string]string{
		"metadata": `CREATE TABLE metadata (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`,
		"papers": `CREATE TABLE papers (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			doc        TEXT NOT NULL CHECK (json_valid(doc)),
			doi        TEXT,
			arxiv_id   TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		"collections": `CREATE TABLE collections (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			doc        TEXT NOT NULL CHECK (json_valid(doc)),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		"annotations": `CREATE TABLE annotations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			doc        TEXT NOT NULL CHECK (json_valid(doc)),
			paper_id   INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, name := range []string{"metadata", "papers", "collections", "annotations"} {
		exists, err := tableExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if exists {
			log.Info(ctx, "store already exists", "store", name)
			continue
		}
		if _, err := tx.ExecContext(ctx, stmts[name]); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil
}

func createIndexes(ctx context.Context, tx *sql.Tx, _ int64, _ logging.Logger) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi COLLATE NOCASE)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_arxiv_id ON papers(arxiv_id COLLATE NOCASE)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_paper_id ON annotations(paper_id)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// backfillField adds field with value to every row of table that lacks it.
// Rows are rewritten one by one; a failing row is logged and skipped so the
// remaining rows are still upgraded.
func backfillField(table, field string, value any) func(context.Context, *sql.Tx, int64, logging.Logger) error {
	return func(ctx context.Context, tx *sql.Tx, prior int64, log logging.Logger) error {
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT id, doc FROM %s`, table))
		if err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}

		type row struct {
			id  int64
			doc string
		}
		var pending []row
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.id, &r.doc); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan %s: %w", table, err)
			}
			if gjson.Get(r.doc, field).Exists() {
				continue
			}
			pending = append(pending, r)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		update := fmt.Sprintf(`UPDATE %s SET doc = ? WHERE id = ?`, table)
		fixed := 0
		for _, r := range pending {
			doc, err := sjson.Set(r.doc, field, value)
			if err != nil {
				log.Warn(ctx, "backfill skipped row", "store", table, "id", r.id, "error", err)
				continue
			}
			if _, err := tx.ExecContext(ctx, update, doc, r.id); err != nil {
				log.Warn(ctx, "backfill skipped row", "store", table, "id", r.id, "error", err)
				continue
			}
			fixed++
		}

		log.Info(ctx, "backfill done", "store", table, "field", field, "from_version", prior,
			"rows", fixed, "skipped", len(pending)-fixed)
		return nil
	}
}

func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n > 0, nil
}
