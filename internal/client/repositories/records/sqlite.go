package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/models"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/dmitrijs2005/papershelf/internal/dbx"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/dmitrijs2005/papershelf/internal/timex"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type SQLiteRepository struct {
	db  *sql.DB
	log logging.Logger
	now func() time.Time
}

func NewSQLiteRepository(db *sql.DB, log logging.Logger) *SQLiteRepository {
	return &SQLiteRepository{db: db, log: log.With("module", "records"), now: time.Now}
}

// table maps an entity to its SQL table. Only known entities reach the SQL
// text, so the Sprintf calls below are not injectable.
func table(e api.Entity) (string, error) {
	switch e {
	case api.Papers, api.Collections, api.Annotations:
		return string(e), nil
	}
	return "", &StorageError{Kind: KindInvalidData, Op: "resolve", Err: fmt.Errorf("unknown entity %q", e)}
}

func (r *SQLiteRepository) Add(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error) {
	if err := models.Validate(e, rec); err != nil {
		return nil, err
	}
	t, err := table(e)
	if err != nil {
		return nil, err
	}

	out := rec.Clone()
	delete(out, models.FieldID)
	models.ApplyDefaults(e, out)
	ts := timex.FormatTimestamp(r.now())
	out[models.FieldCreatedAt] = ts
	out[models.FieldUpdatedAt] = ts

	doc, err := encodeDoc(out)
	if err != nil {
		return nil, &StorageError{Kind: KindInvalidData, Op: "add", Err: err}
	}

	cols, vals := indexColumns(e, doc)
	cols = append(cols, "doc", "created_at", "updated_at")
	vals = append(vals, string(doc), ts, ts)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
		t, strings.Join(cols, ", "), placeholders(len(cols)))

	var id int64
	if err := r.db.QueryRowContext(ctx, query, vals...).Scan(&id); err != nil {
		return nil, classify("add", err)
	}

	out[models.FieldID] = id
	return out, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, e api.Entity) ([]api.Record, error) {
	t, err := table(e)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, doc FROM %s ORDER BY id`, t))
	if err != nil {
		return nil, classify("get all", err)
	}
	defer rows.Close()

	out := []api.Record{}
	for rows.Next() {
		var id int64
		var doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, classify("get all", err)
		}
		rec, err := decodeDoc(id, doc)
		if err != nil {
			return nil, classify("get all", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get all", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, e api.Entity, id int64) (api.Record, error) {
	return r.getByID(ctx, r.db, e, id)
}

func (r *SQLiteRepository) getByID(ctx context.Context, db dbx.DBTX, e api.Entity, id int64) (api.Record, error) {
	t, err := table(e)
	if err != nil {
		return nil, err
	}
	var doc string
	err = db.QueryRowContext(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, t), id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, notFound("get", e, id)
	}
	if err != nil {
		return nil, classify("get", err)
	}
	rec, err := decodeDoc(id, doc)
	if err != nil {
		return nil, classify("get", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetByExternalID(ctx context.Context, externalID string) (api.Record, error) {
	v := strings.TrimSpace(externalID)
	var id int64
	var doc string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, doc FROM papers
		WHERE doi = ? COLLATE NOCASE OR arxiv_id = ? COLLATE NOCASE
		ORDER BY id DESC LIMIT 1`, v, v).Scan(&id, &doc)
	if err == sql.ErrNoRows {
		return nil, &StorageError{Kind: KindNotFound, Op: "get by external id",
			Err: fmt.Errorf("paper %q: %w", v, common.ErrorNotFound)}
	}
	if err != nil {
		return nil, classify("get by external id", err)
	}
	rec, err := decodeDoc(id, doc)
	if err != nil {
		return nil, classify("get by external id", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error) {
	if err := models.ValidatePatch(e, patch); err != nil {
		return nil, err
	}
	t, err := table(e)
	if err != nil {
		return nil, err
	}

	var out api.Record
	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var doc string
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, t), id).Scan(&doc)
		if err == sql.ErrNoRows {
			return notFound("update", e, id)
		}
		if err != nil {
			return err
		}

		merged := []byte(doc)
		for k, v := range patch {
			if k == models.FieldCreatedAt || k == models.FieldUpdatedAt {
				continue
			}
			if merged, err = sjson.SetBytes(merged, escapePath(k), v); err != nil {
				return &StorageError{Kind: KindInvalidData, Op: "update", Err: err}
			}
		}
		ts := timex.FormatTimestamp(r.now())
		if merged, err = sjson.SetBytes(merged, models.FieldUpdatedAt, ts); err != nil {
			return &StorageError{Kind: KindInvalidData, Op: "update", Err: err}
		}

		if err := r.write(ctx, tx, e, id, merged, ts); err != nil {
			return err
		}
		out, err = decodeDoc(id, string(merged))
		return err
	})
	if err != nil {
		return nil, classify("update", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, e api.Entity, id int64) error {
	t, err := table(e)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t), id)
	if err != nil {
		return classify("delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("delete", e, id)
	}

	if e == api.Papers {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE paper_id = ?`, id); err != nil {
			r.log.Warn(ctx, "annotation cascade failed", "paper_id", id, "error", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Put(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error) {
	id, ok := api.RecordID(rec)
	if !ok {
		return nil, &models.ValidationError{Entity: e, Field: models.FieldID, Reason: "is required"}
	}
	if _, err := table(e); err != nil {
		return nil, err
	}

	var out api.Record
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		existing, err := r.getByID(ctx, tx, e, id)
		if err != nil && !IsKind(err, KindNotFound) {
			return err
		}

		out = rec.Clone()
		out[models.FieldID] = id
		for k, v := range models.LocalOnly(e, existing) {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}

		ts := timex.FormatTimestamp(r.now())
		if _, ok := out[models.FieldCreatedAt]; !ok {
			if existing != nil && existing[models.FieldCreatedAt] != nil {
				out[models.FieldCreatedAt] = existing[models.FieldCreatedAt]
			} else {
				out[models.FieldCreatedAt] = ts
			}
		}
		if _, ok := out[models.FieldUpdatedAt]; !ok {
			out[models.FieldUpdatedAt] = ts
		}

		doc, err := encodeDoc(out)
		if err != nil {
			return &StorageError{Kind: KindInvalidData, Op: "put", Err: err}
		}
		return r.upsert(ctx, tx, e, id, doc)
	})
	if err != nil {
		return nil, classify("put", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, e api.Entity) (int, error) {
	t, err := table(e)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t)).Scan(&n); err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Move(ctx context.Context, e api.Entity, from, above int64) (int64, error) {
	t, err := table(e)
	if err != nil {
		return 0, err
	}

	to, err := dbx.InTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (int64, error) {
		var maxID int64
		if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(id), 0) FROM %s`, t)).Scan(&maxID); err != nil {
			return 0, err
		}
		to := max(maxID, above) + 1

		res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET id = ? WHERE id = ?`, t), to, from)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return 0, notFound("move", e, from)
		}

		if e == api.Papers {
			if err := r.repointPaper(ctx, tx, from, to); err != nil {
				return 0, err
			}
		}
		return to, nil
	})
	if err != nil {
		return 0, classify("move", err)
	}
	return to, nil
}

// repointPaper rewrites annotation parents and collection membership after
// a paper changed id.
func (r *SQLiteRepository) repointPaper(ctx context.Context, tx dbx.DBTX, from, to int64) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE annotations SET paper_id = ?, doc = json_set(doc, '$.paperId', ?)
		WHERE paper_id = ?`, to, to, from); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, doc FROM collections`)
	if err != nil {
		return err
	}
	type change struct {
		id  int64
		doc []byte
	}
	var changes []change
	for rows.Next() {
		var id int64
		var doc string
		if err := rows.Scan(&id, &doc); err != nil {
			rows.Close()
			return err
		}
		ids := gjson.Get(doc, models.FieldPaperIDs).Array()
		hit := false
		next := make([]int64, len(ids))
		for i, v := range ids {
			next[i] = v.Int()
			if next[i] == from {
				next[i] = to
				hit = true
			}
		}
		if !hit {
			continue
		}
		out, err := sjson.SetBytes([]byte(doc), models.FieldPaperIDs, next)
		if err != nil {
			rows.Close()
			return &StorageError{Kind: KindInvalidData, Op: "move", Err: err}
		}
		changes = append(changes, change{id: id, doc: out})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range changes {
		if _, err := tx.ExecContext(ctx, `UPDATE collections SET doc = ? WHERE id = ?`, string(c.doc), c.id); err != nil {
			return err
		}
	}
	return nil
}

// write replaces doc and the derived columns of an existing row.
func (r *SQLiteRepository) write(ctx context.Context, tx dbx.DBTX, e api.Entity, id int64, doc []byte, updatedAt string) error {
	t, _ := table(e)
	cols, vals := indexColumns(e, doc)
	sets := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, "doc = ?", "updated_at = ?")
	vals = append(vals, string(doc), updatedAt, id)

	_, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, t, strings.Join(sets, ", ")), vals...)
	return err
}

func (r *SQLiteRepository) upsert(ctx context.Context, tx dbx.DBTX, e api.Entity, id int64, doc []byte) error {
	t, _ := table(e)
	cols, vals := indexColumns(e, doc)
	cols = append([]string{"id"}, cols...)
	cols = append(cols, "doc", "created_at", "updated_at")
	vals = append([]any{id}, vals...)
	vals = append(vals, string(doc),
		gjson.GetBytes(doc, models.FieldCreatedAt).String(),
		gjson.GetBytes(doc, models.FieldUpdatedAt).String())

	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		t, strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(updates, ", "))
	_, err := tx.ExecContext(ctx, query, vals...)
	return err
}

// indexColumns extracts the lookup columns of e from a JSON document.
func indexColumns(e api.Entity, doc []byte) ([]string, []any) {
	switch e {
	case api.Papers:
		return []string{"doi", "arxiv_id"}, []any{
			nullString(gjson.GetBytes(doc, models.FieldDOI)),
			nullString(gjson.GetBytes(doc, models.FieldArxivID)),
		}
	case api.Annotations:
		var paperID any
		if v := gjson.GetBytes(doc, models.FieldPaperID); v.Exists() && v.Type != gjson.Null {
			paperID = v.Int()
		}
		return []string{"paper_id"}, []any{paperID}
	}
	return nil, nil
}

func nullString(v gjson.Result) any {
	if !v.Exists() || v.Type == gjson.Null || strings.TrimSpace(v.String()) == "" {
		return nil
	}
	return strings.TrimSpace(v.String())
}

func encodeDoc(rec api.Record) ([]byte, error) {
	body := rec.Clone()
	delete(body, models.FieldID)
	return json.Marshal(body)
}

func decodeDoc(id int64, doc string) (api.Record, error) {
	rec := api.Record{}
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, &StorageError{Kind: KindInvalidData, Op: "decode", Err: err}
	}
	rec[models.FieldID] = id
	return rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// escapePath quotes sjson path syntax so a field name is used literally.
func escapePath(field string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(field)
}
