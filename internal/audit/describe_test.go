package audit

import (
	"testing"
	"time"

	"github.com/stocktrail/stocktrail/internal/db/models"
)

func strptr(s string) *string { return &s }

var describeTime = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func describeRecord(op models.Operation, table string) *models.AuditRecord {
	return &models.AuditRecord{
		ID:        "rec-1",
		Operation: op,
		TableName: table,
		ActorName: strptr("Amira Hassan"),
		CreatedAt: describeTime,
	}
}

// ---------------------------------------------------------------------------
// Describe — per-operation templates
// ---------------------------------------------------------------------------

func TestDescribe_OperationTemplates(t *testing.T) {
	d := NewDescriber(NewTableLabels(map[string]string{"inventory": "Inventory"}))

	tests := []struct {
		op   models.Operation
		want string
	}{
		{models.OperationInsert, "Amira Hassan created a new record in Inventory at Mar 15, 2024 2:30 PM"},
		{models.OperationUpdate, "Amira Hassan updated a record in Inventory at Mar 15, 2024 2:30 PM"},
		{models.OperationDelete, "Amira Hassan deleted a record from Inventory at Mar 15, 2024 2:30 PM"},
		{models.OperationLogin, "Amira Hassan logged in at Mar 15, 2024 2:30 PM"},
		{models.OperationLogout, "Amira Hassan logged out at Mar 15, 2024 2:30 PM"},
		{models.OperationExport, "Amira Hassan exported data from Inventory at Mar 15, 2024 2:30 PM"},
		{models.OperationImport, "Amira Hassan imported data into Inventory at Mar 15, 2024 2:30 PM"},
		{models.OperationBulkOperation, "Amira Hassan performed a bulk operation on Inventory at Mar 15, 2024 2:30 PM"},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got := d.Describe(describeRecord(tt.op, "inventory"))
			if got != tt.want {
				t.Errorf("Describe = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribe_UnknownOperationDegradesToGeneric(t *testing.T) {
	d := NewDescriber(nil)
	record := describeRecord(models.Operation("archive"), "inventory")

	got := d.Describe(record)
	want := "Amira Hassan performed an operation on inventory at Mar 15, 2024 2:30 PM"
	if got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Describe — actor fallback and overrides
// ---------------------------------------------------------------------------

func TestDescribe_ActorFallsBackToEmail(t *testing.T) {
	d := NewDescriber(nil)
	record := describeRecord(models.OperationInsert, "inventory")
	record.ActorName = nil
	record.ActorEmail = strptr("amira@example.com")

	got := d.Describe(record)
	want := "amira@example.com created a new record in inventory at Mar 15, 2024 2:30 PM"
	if got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}

func TestDescribe_UnattributedActorIsSystem(t *testing.T) {
	d := NewDescriber(nil)
	record := describeRecord(models.OperationDelete, "inventory")
	record.ActorName = nil

	got := d.Describe(record)
	want := "System deleted a record from inventory at Mar 15, 2024 2:30 PM"
	if got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}

func TestDescribe_PrecomputedDescriptionWinsVerbatim(t *testing.T) {
	d := NewDescriber(NewTableLabels(map[string]string{"inventory": "Inventory"}))
	record := describeRecord(models.OperationUpdate, "inventory")
	record.ActionDescription = strptr("Amira restocked the widget shelf")

	if got := d.Describe(record); got != "Amira restocked the widget shelf" {
		t.Errorf("Describe = %q, want the verbatim override", got)
	}
}

func TestDescribe_EmptyOverrideIsIgnored(t *testing.T) {
	d := NewDescriber(nil)
	record := describeRecord(models.OperationUpdate, "inventory")
	record.ActionDescription = strptr("")

	got := d.Describe(record)
	if got == "" {
		t.Error("Describe returned empty string for empty override, want generated summary")
	}
}

func TestDescribe_UnmappedTablePassesThrough(t *testing.T) {
	d := NewDescriber(NewTableLabels(map[string]string{"inventory": "Inventory"}))
	record := describeRecord(models.OperationInsert, "stock_locations")

	got := d.Describe(record)
	want := "Amira Hassan created a new record in stock_locations at Mar 15, 2024 2:30 PM"
	if got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}

func TestDescribe_NilRecord(t *testing.T) {
	d := NewDescriber(nil)
	if got := d.Describe(nil); got != "" {
		t.Errorf("Describe(nil) = %q, want empty", got)
	}
}
