package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stocktrail/stocktrail/internal/db/models"
)

// fakeStore records appended entries in memory and can be told to fail.
type fakeStore struct {
	mu      sync.Mutex
	records []*models.AuditRecord
	err     error
}

func (s *fakeStore) Append(_ context.Context, record *models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// chanShipper delivers shipped records on a channel so tests can wait for the
// asynchronous ship goroutine.
type chanShipper struct {
	ch chan *models.AuditRecord
}

func newChanShipper() *chanShipper {
	return &chanShipper{ch: make(chan *models.AuditRecord, 8)}
}

func (s *chanShipper) Ship(_ context.Context, record *models.AuditRecord) error {
	s.ch <- record
	return nil
}

func (s *chanShipper) Close() error { return nil }

func (s *chanShipper) waitForRecord(t *testing.T) *models.AuditRecord {
	t.Helper()
	select {
	case record := <-s.ch:
		return record
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shipped record")
		return nil
	}
}

var recorderClock = func() time.Time {
	return time.Date(2024, 3, 15, 14, 30, 0, 123456789, time.FixedZone("CET", 3600))
}

func newTestRecorder(store Store, opts ...RecorderOption) *Recorder {
	base := []RecorderOption{
		WithClock(recorderClock),
		WithIDGenerator(func() string { return "fixed-id" }),
	}
	return NewRecorder(store, append(base, opts...)...)
}

func testActor() models.ActorContext {
	return models.ActorContext{
		ID:        strptr("user-1"),
		Name:      strptr("Amira Hassan"),
		Email:     strptr("amira@example.com"),
		IPAddress: strptr("10.0.0.9"),
		UserAgent: strptr("stocktrail-web/2.1"),
		SessionID: strptr("sess-42"),
	}
}

// ---------------------------------------------------------------------------
// Record — happy path
// ---------------------------------------------------------------------------

func TestRecord_StampsIdentityAndTime(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	record, err := r.Record(context.Background(),
		models.OperationUpdate, "inventory", strptr("sku-1"), testActor(),
		models.Snapshot{"quantity": 10}, models.Snapshot{"quantity": 15}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.ID != "fixed-id" {
		t.Errorf("ID = %s, want fixed-id", record.ID)
	}
	if record.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt zone = %v, want UTC", record.CreatedAt.Location())
	}
	if !record.CreatedAt.Equal(recorderClock()) {
		t.Errorf("CreatedAt = %v, want the injected clock instant", record.CreatedAt)
	}
	if record.ActorName == nil || *record.ActorName != "Amira Hassan" {
		t.Errorf("ActorName = %v, want Amira Hassan", record.ActorName)
	}
	if record.SessionID == nil || *record.SessionID != "sess-42" {
		t.Errorf("SessionID = %v, want sess-42", record.SessionID)
	}
	if store.count() != 1 {
		t.Errorf("store has %d records, want 1", store.count())
	}
}

func TestRecord_SessionOperationsNeedNoSnapshots(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	for _, op := range []models.Operation{
		models.OperationLogin, models.OperationLogout,
		models.OperationExport, models.OperationImport, models.OperationBulkOperation,
	} {
		if _, err := r.Record(context.Background(), op, "inventory", nil, testActor(), nil, nil, nil); err != nil {
			t.Errorf("Record(%s) error = %v, want nil", op, err)
		}
	}
}

func TestRecord_MetadataAndDescriptionOption(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)

	record, err := r.Record(context.Background(),
		models.OperationExport, "audit_records", nil, testActor(), nil, nil,
		map[string]interface{}{"format": "csv", "rows": 120},
		WithDescription("Amira exported the trail as CSV"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Metadata["format"] != "csv" {
		t.Errorf("Metadata format = %v, want csv", record.Metadata["format"])
	}
	if record.ActionDescription == nil || *record.ActionDescription != "Amira exported the trail as CSV" {
		t.Errorf("ActionDescription = %v, want the override", record.ActionDescription)
	}
}

// ---------------------------------------------------------------------------
// Record — input contract
// ---------------------------------------------------------------------------

func TestRecord_RejectsUnknownOperation(t *testing.T) {
	r := newTestRecorder(&fakeStore{})
	_, err := r.Record(context.Background(),
		models.Operation("archive"), "inventory", nil, testActor(), nil, nil, nil)
	if !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("err = %v, want ErrUnknownOperation", err)
	}
}

func TestRecord_SnapshotContract(t *testing.T) {
	full := models.Snapshot{"quantity": 1}
	tests := []struct {
		name    string
		op      models.Operation
		old     models.Snapshot
		new     models.Snapshot
		wantErr error
	}{
		{"update missing old", models.OperationUpdate, nil, full, ErrMissingOldValues},
		{"update missing new", models.OperationUpdate, full, nil, ErrMissingNewValues},
		{"update empty old", models.OperationUpdate, models.Snapshot{}, full, ErrMissingOldValues},
		{"insert missing new", models.OperationInsert, nil, nil, ErrMissingNewValues},
		{"delete missing old", models.OperationDelete, nil, nil, ErrMissingOldValues},
		{"update both present", models.OperationUpdate, full, full, nil},
		{"insert with new", models.OperationInsert, nil, full, nil},
		{"delete with old", models.OperationDelete, full, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecorder(&fakeStore{})
			_, err := r.Record(context.Background(), tt.op, "inventory", nil, testActor(), tt.old, tt.new, nil)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecord_ContractViolationNeverReachesStore(t *testing.T) {
	store := &fakeStore{}
	r := newTestRecorder(store)
	_, _ = r.Record(context.Background(), models.OperationUpdate, "inventory", nil, testActor(), nil, nil, nil)
	if store.count() != 0 {
		t.Errorf("store has %d records after rejected input, want 0", store.count())
	}
}

// ---------------------------------------------------------------------------
// Record — storage failure and shipping
// ---------------------------------------------------------------------------

func TestRecord_StorageErrorPropagatesUnmodified(t *testing.T) {
	storageErr := errors.New("connection reset")
	r := newTestRecorder(&fakeStore{err: storageErr})

	_, err := r.Record(context.Background(),
		models.OperationInsert, "inventory", nil, testActor(), nil, models.Snapshot{"a": 1}, nil)
	if !errors.Is(err, storageErr) {
		t.Errorf("err = %v, want the storage error", err)
	}
}

func TestRecord_ShipsCommittedRecordAsynchronously(t *testing.T) {
	shipper := newChanShipper()
	r := newTestRecorder(&fakeStore{}, WithShipper(shipper))

	record, err := r.Record(context.Background(),
		models.OperationInsert, "inventory", nil, testActor(), nil, models.Snapshot{"a": 1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shipped := shipper.waitForRecord(t)
	if shipped.ID != record.ID {
		t.Errorf("shipped record ID = %s, want %s", shipped.ID, record.ID)
	}
}

func TestRecord_FailedWriteIsNotShipped(t *testing.T) {
	shipper := newChanShipper()
	r := newTestRecorder(&fakeStore{err: errors.New("down")}, WithShipper(shipper))

	_, _ = r.Record(context.Background(),
		models.OperationInsert, "inventory", nil, testActor(), nil, models.Snapshot{"a": 1}, nil)

	select {
	case <-shipper.ch:
		t.Error("record shipped despite storage failure")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRecord_ConcurrentCalls(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Record(context.Background(),
				models.OperationInsert, "inventory", nil, testActor(), nil, models.Snapshot{"a": 1}, nil)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.count() != 20 {
		t.Errorf("store has %d records, want 20", store.count())
	}
}
