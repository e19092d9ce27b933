// recorder.go implements the change recorder: it validates the per-operation snapshot
// contract, stamps identity and time onto the record, persists it through the storage
// collaborator, and ships the committed record to external destinations.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stocktrail/stocktrail/internal/db/models"
	"github.com/stocktrail/stocktrail/internal/safego"
	"github.com/stocktrail/stocktrail/internal/telemetry"
)

// Input contract violations. These are fail-fast errors reported to the
// immediate caller; the recorder never coerces an invalid request into a
// partial record.
var (
	ErrUnknownOperation = errors.New("unknown operation kind")
	ErrMissingOldValues = errors.New("old values snapshot is required")
	ErrMissingNewValues = errors.New("new values snapshot is required")
)

// Store is the storage collaborator consumed by the recorder. Append-only:
// the recorder never issues update or delete calls for audit records.
type Store interface {
	Append(ctx context.Context, record *models.AuditRecord) error
}

// Recorder captures entity mutations as immutable audit records. Safe for
// concurrent use: each Record call is independent and the only shared mutable
// resource is the store.
type Recorder struct {
	store       Store
	shipper     Shipper
	now         func() time.Time
	newID       func() string
	shipTimeout time.Duration
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithShipper attaches an external destination for committed records.
// Shipping is asynchronous and best-effort; a delivery failure never fails
// the Record call.
func WithShipper(s Shipper) RecorderOption {
	return func(r *Recorder) { r.shipper = s }
}

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithIDGenerator overrides record ID generation. Intended for tests.
func WithIDGenerator(newID func() string) RecorderOption {
	return func(r *Recorder) { r.newID = newID }
}

// RecordOption customises a single record before it is persisted.
type RecordOption func(*models.AuditRecord)

// WithDescription sets a precomputed action description on the record,
// overriding the summary the describer would otherwise generate on demand.
func WithDescription(description string) RecordOption {
	return func(record *models.AuditRecord) {
		record.ActionDescription = &description
	}
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:       store,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		shipTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates and persists one audit record for a tracked mutation.
//
// Snapshot requirements by operation kind:
//   - update: both oldValues and newValues, non-empty
//   - insert: newValues, non-empty
//   - delete: oldValues, non-empty
//   - session and data-flow operations (login, logout, export, import,
//     bulk_operation): no snapshots required
//
// A storage rejection is propagated unmodified to the caller; whether the
// primary business mutation proceeds or rolls back is the caller's policy.
func (r *Recorder) Record(
	ctx context.Context,
	operation models.Operation,
	tableName string,
	recordID *string,
	actor models.ActorContext,
	oldValues, newValues models.Snapshot,
	metadata map[string]interface{},
	opts ...RecordOption,
) (*models.AuditRecord, error) {
	if !operation.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}
	if err := validateSnapshots(operation, oldValues, newValues); err != nil {
		return nil, err
	}

	record := &models.AuditRecord{
		ID:         r.newID(),
		Operation:  operation,
		TableName:  tableName,
		RecordID:   recordID,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorEmail: actor.Email,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		SessionID:  actor.SessionID,
		Metadata:   metadata,
		CreatedAt:  r.now().UTC(),
	}
	for _, opt := range opts {
		opt(record)
	}

	if err := r.store.Append(ctx, record); err != nil {
		telemetry.AuditRecordWriteFailuresTotal.Inc()
		return nil, err
	}
	telemetry.AuditRecordsRecordedTotal.WithLabelValues(string(operation), tableName).Inc()

	if r.shipper != nil {
		r.ship(record)
	}
	return record, nil
}

// validateSnapshots enforces the per-operation snapshot contract.
func validateSnapshots(operation models.Operation, oldValues, newValues models.Snapshot) error {
	switch operation {
	case models.OperationUpdate:
		if len(oldValues) == 0 {
			return fmt.Errorf("%w for %s", ErrMissingOldValues, operation)
		}
		if len(newValues) == 0 {
			return fmt.Errorf("%w for %s", ErrMissingNewValues, operation)
		}
	case models.OperationInsert:
		if len(newValues) == 0 {
			return fmt.Errorf("%w for %s", ErrMissingNewValues, operation)
		}
	case models.OperationDelete:
		if len(oldValues) == 0 {
			return fmt.Errorf("%w for %s", ErrMissingOldValues, operation)
		}
	}
	return nil
}

// ship delivers the committed record asynchronously. A fresh context is used
// because the caller's request context may be cancelled before delivery runs.
func (r *Recorder) ship(record *models.AuditRecord) {
	shipper := r.shipper
	timeout := r.shipTimeout
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := shipper.Ship(ctx, record); err != nil {
			slog.Warn("failed to ship audit record",
				"record_id", record.ID, "operation", record.Operation, "error", err)
		}
	})
}
