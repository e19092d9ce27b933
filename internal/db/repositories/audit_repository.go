// audit_repository.go implements AuditRepository, the append-only store for audit
// records. It provides the write path used by the change recorder and filtered reads
// for the trail views. No update or delete statements exist for audit_records.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stocktrail/stocktrail/internal/db/models"
)

// auditColumns is the canonical column list shared by every read query.
const auditColumns = `id, operation, table_name, record_id, actor_id, actor_name, actor_email,
	old_values, new_values, ip_address, user_agent, session_id, metadata, action_description, created_at`

// AuditRepository handles audit record database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilterHints narrows reads at the database level. These are coarse
// hints; free-text search is applied in memory by the query engine.
type AuditFilterHints struct {
	Operation *models.Operation
	TableName *string
	ActorID   *string
	StartDate *time.Time
	EndDate   *time.Time
}

// Append persists one audit record. The record's ID and CreatedAt must
// already be set by the recorder; the repository never mutates the record.
func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	oldValues, err := marshalSnapshot(record.OldValues)
	if err != nil {
		return fmt.Errorf("failed to marshal old values: %w", err)
	}
	newValues, err := marshalSnapshot(record.NewValues)
	if err != nil {
		return fmt.Errorf("failed to marshal new values: %w", err)
	}
	var metadata []byte
	if record.Metadata != nil {
		metadata, err = json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_records (
			id, operation, table_name, record_id, actor_id, actor_name, actor_email,
			old_values, new_values, ip_address, user_agent, session_id, metadata,
			action_description, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		string(record.Operation),
		record.TableName,
		record.RecordID,
		record.ActorID,
		record.ActorName,
		record.ActorEmail,
		oldValues,
		newValues,
		record.IPAddress,
		record.UserAgent,
		record.SessionID,
		metadata,
		record.ActionDescription,
		record.CreatedAt,
	)
	return err
}

// List retrieves audit records matching the filter hints, ordered by
// created_at descending, with the total count before pagination.
func (r *AuditRepository) List(ctx context.Context, hints AuditFilterHints, limit, offset int) ([]*models.AuditRecord, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_records WHERE 1=1`
	query := fmt.Sprintf(`SELECT %s FROM audit_records WHERE 1=1`, auditColumns)

	args := make([]interface{}, 0)
	paramIndex := 1

	if hints.Operation != nil {
		clause := fmt.Sprintf(` AND operation = $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, string(*hints.Operation))
		paramIndex++
	}
	if hints.TableName != nil {
		clause := fmt.Sprintf(` AND table_name = $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, *hints.TableName)
		paramIndex++
	}
	if hints.ActorID != nil {
		clause := fmt.Sprintf(` AND actor_id = $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, *hints.ActorID)
		paramIndex++
	}
	if hints.StartDate != nil {
		clause := fmt.Sprintf(` AND created_at >= $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, *hints.StartDate)
		paramIndex++
	}
	if hints.EndDate != nil {
		clause := fmt.Sprintf(` AND created_at <= $%d`, paramIndex)
		countQuery += clause
		query += clause
		args = append(args, *hints.EndDate)
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]*models.AuditRecord, 0)
	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	return records, total, rows.Err()
}

// GetByID retrieves a single audit record, or nil when no record exists.
func (r *AuditRepository) GetByID(ctx context.Context, id string) (*models.AuditRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_records WHERE id = $1`, auditColumns)

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return scanAuditRecord(rows)
}

// CountSince returns how many records were created at or after the cutoff.
// Used by the stats endpoint for the activity headline without loading rows.
func (r *AuditRepository) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_records WHERE created_at >= $1`, cutoff).Scan(&count)
	return count, err
}

// scanAuditRecord reads one row into an AuditRecord, unmarshalling the JSONB
// snapshot and metadata columns.
func scanAuditRecord(rows *sql.Rows) (*models.AuditRecord, error) {
	record := &models.AuditRecord{}
	var (
		operation string
		oldValues []byte
		newValues []byte
		metadata  []byte
	)

	err := rows.Scan(
		&record.ID,
		&operation,
		&record.TableName,
		&record.RecordID,
		&record.ActorID,
		&record.ActorName,
		&record.ActorEmail,
		&oldValues,
		&newValues,
		&record.IPAddress,
		&record.UserAgent,
		&record.SessionID,
		&metadata,
		&record.ActionDescription,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Operation = models.Operation(operation)

	if record.OldValues, err = unmarshalSnapshot(oldValues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal old values: %w", err)
	}
	if record.NewValues, err = unmarshalSnapshot(newValues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal new values: %w", err)
	}
	if metadata != nil {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return record, nil
}

func marshalSnapshot(s models.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func unmarshalSnapshot(data []byte) (models.Snapshot, error) {
	if data == nil {
		return nil, nil
	}
	var s models.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}
