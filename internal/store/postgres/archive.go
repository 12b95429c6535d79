package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fuelops/internal/domain"
)

// ColdTable is the archive table of one entity type. original_id is the
// primary key, so an identity is archived at most once.
type ColdTable struct {
	pool  *pgxpool.Pool
	et    domain.EntityType
	table string
}

func NewColdTable(pool *pgxpool.Pool, et domain.EntityType) (*ColdTable, error) {
	if !knownEntityType(et) {
		return nil, fmt.Errorf("postgres.NewColdTable: %q: %w", et, domain.ErrUnknownEntityType)
	}
	return &ColdTable{
		pool:  pool,
		et:    et,
		table: pgx.Identifier{"archive_" + string(et)}.Sanitize(),
	}, nil
}

type archiveColumns struct {
	ids      []uuid.UUID
	deleted  []bool
	stamps   []time.Time
	docs     []string
	at       []time.Time
	reasons  []string
	rejected map[uuid.UUID]error
}

func columnsOf(records []*domain.ArchivedRecord) archiveColumns {
	c := archiveColumns{rejected: make(map[uuid.UUID]error)}
	for _, r := range records {
		doc, err := json.Marshal(r.Payload)
		if err != nil {
			c.rejected[r.OriginalID] = fmt.Errorf("encode document: %w", err)
			continue
		}
		c.ids = append(c.ids, r.OriginalID)
		c.deleted = append(c.deleted, r.IsDeleted)
		c.stamps = append(c.stamps, r.Timestamp)
		c.docs = append(c.docs, string(doc))
		c.at = append(c.at, r.ArchivedAt)
		c.reasons = append(c.reasons, r.ArchivedReason)
	}
	return c
}

// InsertBatch inserts best-effort. Identities already archived are reported
// as failed with domain.ErrConflict. If the database rejects the bulk insert
// the batch is retried one document at a time so a single bad document does
// not hold back the rest.
func (t *ColdTable) InsertBatch(ctx context.Context, records []*domain.ArchivedRecord) (domain.InsertResult, error) {
	res := domain.InsertResult{Failed: make(map[uuid.UUID]error)}
	cols := columnsOf(records)
	for id, err := range cols.rejected {
		res.Failed[id] = err
	}
	if len(cols.ids) == 0 {
		return res, nil
	}

	inserted, err := t.insert(ctx, cols)
	if err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return domain.InsertResult{}, fmt.Errorf("coldTable.InsertBatch: %w", err)
		}
		return t.insertEach(ctx, records, res)
	}

	res.Inserted = inserted
	confirmed := make(map[uuid.UUID]bool, len(inserted))
	for _, id := range inserted {
		confirmed[id] = true
	}
	for _, id := range cols.ids {
		if !confirmed[id] {
			res.Failed[id] = domain.ErrConflict
		}
	}

	return res, nil
}

func (t *ColdTable) insert(ctx context.Context, c archiveColumns) ([]uuid.UUID, error) {
	rows, err := t.pool.Query(ctx,
		`INSERT INTO `+t.table+` (original_id, is_deleted, record_timestamp, document, archived_at, archived_reason)
		 SELECT u.id, u.is_deleted, u.ts, u.doc::jsonb, u.archived_at, u.reason
		 FROM unnest($1::uuid[], $2::bool[], $3::timestamptz[], $4::text[], $5::timestamptz[], $6::text[])
		      AS u(id, is_deleted, ts, doc, archived_at, reason)
		 ON CONFLICT (original_id) DO NOTHING
		 RETURNING original_id`,
		c.ids, c.deleted, c.stamps, c.docs, c.at, c.reasons,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (t *ColdTable) insertEach(ctx context.Context, records []*domain.ArchivedRecord, res domain.InsertResult) (domain.InsertResult, error) {
	for _, r := range records {
		if _, rejected := res.Failed[r.OriginalID]; rejected {
			continue
		}
		inserted, err := t.insert(ctx, columnsOf([]*domain.ArchivedRecord{r}))
		switch {
		case err != nil:
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				return domain.InsertResult{}, fmt.Errorf("coldTable.InsertBatch: %s: %w", r.OriginalID, err)
			}
			res.Failed[r.OriginalID] = err
		case len(inserted) == 0:
			res.Failed[r.OriginalID] = domain.ErrConflict
		default:
			res.Inserted = append(res.Inserted, r.OriginalID)
		}
	}
	return res, nil
}

func (t *ColdTable) FindArchived(ctx context.Context, q domain.ArchivedQuery) ([]*domain.ArchivedRecord, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT original_id, is_deleted, record_timestamp, document, archived_at, archived_reason
		 FROM `+t.table+`
		 WHERE ($1::timestamptz IS NULL OR archived_at >= $1)
		   AND ($2::timestamptz IS NULL OR archived_at <= $2)
		   AND original_id > $3
		 ORDER BY original_id
		 LIMIT $4`,
		q.ArchivedFrom, q.ArchivedTo, q.After, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("coldTable.FindArchived: %w", err)
	}
	out, err := t.scanArchived(rows)
	if err != nil {
		return nil, fmt.Errorf("coldTable.FindArchived: %w", err)
	}
	return out, nil
}

func (t *ColdTable) FindByOriginalIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.ArchivedRecord, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT original_id, is_deleted, record_timestamp, document, archived_at, archived_reason
		 FROM `+t.table+`
		 WHERE original_id = ANY($1::uuid[])`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("coldTable.FindByOriginalIDs: %w", err)
	}
	out, err := t.scanArchived(rows)
	if err != nil {
		return nil, fmt.Errorf("coldTable.FindByOriginalIDs: %w", err)
	}
	return out, nil
}

func (t *ColdTable) scanArchived(rows pgx.Rows) ([]*domain.ArchivedRecord, error) {
	defer rows.Close()

	var out []*domain.ArchivedRecord
	for rows.Next() {
		a := &domain.ArchivedRecord{EntityType: t.et}
		if err := rows.Scan(&a.OriginalID, &a.IsDeleted, &a.Timestamp, &a.Payload, &a.ArchivedAt, &a.ArchivedReason); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (t *ColdTable) DeleteByOriginalIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := t.pool.Exec(ctx, `DELETE FROM `+t.table+` WHERE original_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("coldTable.DeleteByOriginalIDs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *ColdTable) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.pool.QueryRow(ctx, `SELECT count(*) FROM `+t.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("coldTable.Count: %w", err)
	}
	return n, nil
}
