// describe.go generates the human-readable one-line summary for an audit record from
// its operation kind, actor, affected table, and timestamp.
package audit

import (
	"fmt"

	"github.com/stocktrail/stocktrail/internal/db/models"
)

// Describer renders audit records into display sentences. The table-label
// lookup is injected at construction so the describer stays testable with
// fixture mappings; a nil lookup passes identifiers through unchanged.
type Describer struct {
	labels *TableLabels
}

// NewDescriber creates a Describer with the given table-label lookup.
func NewDescriber(labels *TableLabels) *Describer {
	return &Describer{labels: labels}
}

// Describe returns the human-readable summary for a record. A precomputed
// ActionDescription set by the producer is returned verbatim; otherwise the
// summary is derived from a fixed per-operation template. Unknown operation
// kinds degrade to a generic template rather than failing — a broken audit
// view is worse than a bland sentence.
func (d *Describer) Describe(record *models.AuditRecord) string {
	if record == nil {
		return ""
	}
	if record.ActionDescription != nil && *record.ActionDescription != "" {
		return *record.ActionDescription
	}

	actor := record.Actor()
	table := d.labels.Lookup(record.TableName)
	when := record.CreatedAt.Format(displayTimeLayout)

	switch record.Operation {
	case models.OperationInsert:
		return fmt.Sprintf("%s created a new record in %s at %s", actor, table, when)
	case models.OperationUpdate:
		return fmt.Sprintf("%s updated a record in %s at %s", actor, table, when)
	case models.OperationDelete:
		return fmt.Sprintf("%s deleted a record from %s at %s", actor, table, when)
	case models.OperationLogin:
		return fmt.Sprintf("%s logged in at %s", actor, when)
	case models.OperationLogout:
		return fmt.Sprintf("%s logged out at %s", actor, when)
	case models.OperationExport:
		return fmt.Sprintf("%s exported data from %s at %s", actor, table, when)
	case models.OperationImport:
		return fmt.Sprintf("%s imported data into %s at %s", actor, table, when)
	case models.OperationBulkOperation:
		return fmt.Sprintf("%s performed a bulk operation on %s at %s", actor, table, when)
	}
	return fmt.Sprintf("%s performed an operation on %s at %s", actor, table, when)
}
