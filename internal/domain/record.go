package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityType names one family of operational records. Each entity type has
// its own hot table and its own archive table.
type EntityType string

const (
	EntityTripFuelRecords        EntityType = "trip_fuel_records"
	EntityPurchaseVoucherEntries EntityType = "purchase_voucher_entries"
	EntityVoucherSummaries       EntityType = "voucher_summaries"
	EntityYardDispenseEvents     EntityType = "yard_dispense_events"
	EntityDeliveryOrders         EntityType = "delivery_orders"
	EntityAuditLogs              EntityType = "audit_logs"
)

// AllEntityTypes lists every known entity type in archival order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityTripFuelRecords,
		EntityPurchaseVoucherEntries,
		EntityVoucherSummaries,
		EntityYardDispenseEvents,
		EntityDeliveryOrders,
		EntityAuditLogs,
	}
}

// Age field names. Audit log entries are aged by their event timestamp,
// everything else by creation time.
const (
	DateFieldCreatedAt = "createdAt"
	DateFieldTimestamp = "timestamp"
)

// Record is one operational document in a hot store.
type Record struct {
	ID         uuid.UUID
	EntityType EntityType
	IsDeleted  bool
	Timestamp  time.Time      // value of the entity type's age field
	Payload    map[string]any // opaque document body
}

// ArchivedRecord is a Record as stored in a cold store.
type ArchivedRecord struct {
	OriginalID     uuid.UUID
	EntityType     EntityType
	IsDeleted      bool
	Timestamp      time.Time
	Payload        map[string]any
	ArchivedAt     time.Time
	ArchivedReason string
}

// ToArchived wraps the record for insertion into a cold store.
func (r *Record) ToArchived(archivedAt time.Time, reason string) *ArchivedRecord {
	return &ArchivedRecord{
		OriginalID:     r.ID,
		EntityType:     r.EntityType,
		IsDeleted:      r.IsDeleted,
		Timestamp:      r.Timestamp,
		Payload:        r.Payload,
		ArchivedAt:     archivedAt,
		ArchivedReason: reason,
	}
}

// Restored strips the archive fields and rebuilds the hot document under its
// original identity.
func (a *ArchivedRecord) Restored() *Record {
	return &Record{
		ID:         a.OriginalID,
		EntityType: a.EntityType,
		IsDeleted:  a.IsDeleted,
		Timestamp:  a.Timestamp,
		Payload:    a.Payload,
	}
}

// EligibleQuery selects one keyset page of archivable hot records:
// not soft-deleted, age field before Cutoff, identity greater than After.
type EligibleQuery struct {
	DateField string
	Cutoff    time.Time
	After     uuid.UUID // uuid.Nil starts from the beginning
	Limit     int
}

// ArchivedQuery selects one keyset page of archived records, optionally
// bounded by archive time (inclusive on both ends).
type ArchivedQuery struct {
	ArchivedFrom *time.Time
	ArchivedTo   *time.Time
	After        uuid.UUID
	Limit        int
}

// InsertResult reports the outcome of a best-effort batch insert. Only IDs in
// Inserted were durably written; everything in Failed was not.
type InsertResult struct {
	Inserted []uuid.UUID
	Failed   map[uuid.UUID]error
}

// ConflictPolicy decides what a restore does when the hot store already holds
// a document with the restored identity.
type ConflictPolicy string

const (
	ConflictFail      ConflictPolicy = "fail"
	ConflictSkip      ConflictPolicy = "skip"
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// Valid reports whether p is a known conflict policy.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case ConflictFail, ConflictSkip, ConflictOverwrite:
		return true
	default:
		return false
	}
}

// HotStore is the live table of one entity type.
type HotStore interface {
	CountEligible(ctx context.Context, dateField string, cutoff time.Time) (int64, error)
	FindEligible(ctx context.Context, q EligibleQuery) ([]*Record, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	// Restore writes records back under their own IDs. With ConflictFail an
	// existing identity fails the whole call with ErrConflict and nothing is
	// written; with ConflictSkip colliding records are left out of the result.
	Restore(ctx context.Context, records []*Record, onConflict ConflictPolicy) ([]uuid.UUID, error)
	Count(ctx context.Context) (int64, error)
	// Compact hints the backing store to reclaim space freed by archival.
	Compact(ctx context.Context) error
}

// ColdStore is the archive table of one entity type.
type ColdStore interface {
	InsertBatch(ctx context.Context, records []*ArchivedRecord) (InsertResult, error)
	FindArchived(ctx context.Context, q ArchivedQuery) ([]*ArchivedRecord, error)
	// FindByOriginalIDs returns the archived copies of ids that exist.
	FindByOriginalIDs(ctx context.Context, ids []uuid.UUID) ([]*ArchivedRecord, error)
	DeleteByOriginalIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	Count(ctx context.Context) (int64, error)
}
