package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/dmitrijs2005/papershelf/internal/dbx"
	"github.com/dmitrijs2005/papershelf/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, data, origin, updated_at, deleted`

func (r *PostgresRepository) Get(ctx context.Context, userID string, e api.Entity, id int64) (*models.StoredRecord, error) {
	query :=
		`SELECT ` + recordColumns + ` FROM records
		 WHERE user_id = $1 AND entity = $2 AND id = $3
		 `

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, userID, string(e), id), userID, e)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Put(ctx context.Context, rec *models.StoredRecord) error {
	query :=
		`INSERT INTO records (user_id, entity, id, data, origin, updated_at, deleted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, entity, id) DO UPDATE
		 SET data = EXCLUDED.data, origin = EXCLUDED.origin,
		     updated_at = EXCLUDED.updated_at, deleted = EXCLUDED.deleted
		 `

	data, err := encodeData(rec.Data)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		rec.UserID, string(rec.Entity), rec.ID, data, rec.Origin, rec.UpdatedAt, rec.Deleted)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) NextID(ctx context.Context, userID string, e api.Entity) (int64, error) {
	query :=
		`SELECT COALESCE(MAX(id), 0) + 1 FROM records
		 WHERE user_id = $1 AND entity = $2
		 `

	var id int64
	if err := r.db.QueryRowContext(ctx, query, userID, string(e)).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, e api.Entity) ([]*models.StoredRecord, error) {
	query :=
		`SELECT ` + recordColumns + ` FROM records
		 WHERE user_id = $1 AND entity = $2 AND NOT deleted
		 ORDER BY id
		 `
	return r.query(ctx, userID, e, query, userID, string(e))
}

func (r *PostgresRepository) ChangedSince(ctx context.Context, userID string, e api.Entity, since time.Time, excludeOrigin string) ([]*models.StoredRecord, error) {
	query :=
		`SELECT ` + recordColumns + ` FROM records
		 WHERE user_id = $1 AND entity = $2 AND updated_at > $3 AND origin <> $4
		 ORDER BY updated_at, id
		 `
	return r.query(ctx, userID, e, query, userID, string(e), since, excludeOrigin)
}

func (r *PostgresRepository) FindIDs(ctx context.Context, userID string, e api.Entity, field, value string) ([]int64, error) {
	query :=
		`SELECT id FROM records
		 WHERE user_id = $1 AND entity = $2 AND NOT deleted AND data->>$3 = $4
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, string(e), field, value)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) Count(ctx context.Context, userID string, e api.Entity) (int, error) {
	query :=
		`SELECT COUNT(*) FROM records
		 WHERE user_id = $1 AND entity = $2 AND NOT deleted
		 `

	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, string(e)).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) query(ctx context.Context, userID string, e api.Entity, query string, args ...any) ([]*models.StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows, userID, e)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, userID string, e api.Entity) (*models.StoredRecord, error) {
	rec := &models.StoredRecord{UserID: userID, Entity: e}
	var data []byte
	if err := s.Scan(&rec.ID, &data, &rec.Origin, &rec.UpdatedAt, &rec.Deleted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode record %s/%d: %w", e, rec.ID, err)
	}
	return rec, nil
}

func encodeData(data api.Record) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}
