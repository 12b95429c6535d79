package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fuelops/internal/domain"
)

// HotTable is the live table of one entity type.
type HotTable struct {
	pool    *pgxpool.Pool
	et      domain.EntityType
	table   string
	dateCol string
}

func NewHotTable(pool *pgxpool.Pool, et domain.EntityType) (*HotTable, error) {
	if !knownEntityType(et) {
		return nil, fmt.Errorf("postgres.NewHotTable: %q: %w", et, domain.ErrUnknownEntityType)
	}
	dateCol := "created_at"
	if et == domain.EntityAuditLogs {
		dateCol = "timestamp"
	}
	return &HotTable{
		pool:    pool,
		et:      et,
		table:   pgx.Identifier{string(et)}.Sanitize(),
		dateCol: pgx.Identifier{dateCol}.Sanitize(),
	}, nil
}

// column maps a record age field to this table's column. The table has a
// single age column, so any other field name is rejected.
func (t *HotTable) column(dateField string) (string, error) {
	want := domain.DateFieldCreatedAt
	if t.et == domain.EntityAuditLogs {
		want = domain.DateFieldTimestamp
	}
	if dateField != "" && dateField != want {
		return "", fmt.Errorf("date field %q not available on %s", dateField, t.et)
	}
	return t.dateCol, nil
}

func (t *HotTable) CountEligible(ctx context.Context, dateField string, cutoff time.Time) (int64, error) {
	col, err := t.column(dateField)
	if err != nil {
		return 0, fmt.Errorf("hotTable.CountEligible: %w", err)
	}

	var n int64
	err = t.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+t.table+` WHERE is_deleted = FALSE AND `+col+` < $1`,
		cutoff,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("hotTable.CountEligible: %w", err)
	}

	return n, nil
}

func (t *HotTable) FindEligible(ctx context.Context, q domain.EligibleQuery) ([]*domain.Record, error) {
	col, err := t.column(q.DateField)
	if err != nil {
		return nil, fmt.Errorf("hotTable.FindEligible: %w", err)
	}

	rows, err := t.pool.Query(ctx,
		`SELECT id, is_deleted, `+col+`, document
		 FROM `+t.table+`
		 WHERE is_deleted = FALSE AND `+col+` < $1 AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		q.Cutoff, q.After, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("hotTable.FindEligible: %w", err)
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		r := &domain.Record{EntityType: t.et}
		if err := rows.Scan(&r.ID, &r.IsDeleted, &r.Timestamp, &r.Payload); err != nil {
			return nil, fmt.Errorf("hotTable.FindEligible: scan: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hotTable.FindEligible: rows: %w", err)
	}

	return records, nil
}

func (t *HotTable) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := t.pool.Exec(ctx, `DELETE FROM `+t.table+` WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("hotTable.DeleteByIDs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Restore writes records back in one statement, so ConflictFail either
// writes every record or none.
func (t *HotTable) Restore(ctx context.Context, records []*domain.Record, onConflict domain.ConflictPolicy) ([]uuid.UUID, error) {
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(records))
	deleted := make([]bool, len(records))
	stamps := make([]time.Time, len(records))
	docs := make([]string, len(records))
	for i, r := range records {
		doc, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("hotTable.Restore: encode %s: %w", r.ID, err)
		}
		ids[i], deleted[i], stamps[i], docs[i] = r.ID, r.IsDeleted, r.Timestamp, string(doc)
	}

	var conflict string
	switch onConflict {
	case domain.ConflictSkip:
		conflict = ` ON CONFLICT (id) DO NOTHING`
	case domain.ConflictOverwrite:
		conflict = ` ON CONFLICT (id) DO UPDATE SET is_deleted = EXCLUDED.is_deleted, ` +
			t.dateCol + ` = EXCLUDED.` + t.dateCol + `, document = EXCLUDED.document`
	}

	rows, err := t.pool.Query(ctx,
		`INSERT INTO `+t.table+` (id, is_deleted, `+t.dateCol+`, document)
		 SELECT u.id, u.is_deleted, u.ts, u.doc::jsonb
		 FROM unnest($1::uuid[], $2::bool[], $3::timestamptz[], $4::text[]) AS u(id, is_deleted, ts, doc)`+
			conflict+` RETURNING id`,
		ids, deleted, stamps, docs,
	)
	if err != nil {
		return nil, fmt.Errorf("hotTable.Restore: %w", err)
	}

	written, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("hotTable.Restore: %w", domain.ErrConflict)
		}
		return nil, fmt.Errorf("hotTable.Restore: %w", err)
	}

	return written, nil
}

func (t *HotTable) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.pool.QueryRow(ctx, `SELECT count(*) FROM `+t.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("hotTable.Count: %w", err)
	}
	return n, nil
}

// Compact runs VACUUM ANALYZE on the table.
func (t *HotTable) Compact(ctx context.Context) error {
	if _, err := t.pool.Exec(ctx, `VACUUM (ANALYZE) `+t.table); err != nil {
		return fmt.Errorf("hotTable.Compact: %w", err)
	}
	return nil
}
