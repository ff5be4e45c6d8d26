package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"opsreport/internal/infra/persistence/postgres/testutil"
	"opsreport/pkg/domain"
)

func openStub(t *testing.T) (*sql.DB, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("unexpected driver %s", driverName)
		}
		if dsn != defaultDSN {
			t.Fatalf("expected default dsn, got %s", dsn)
		}
		return db, nil
	})
	t.Cleanup(restore)
	return db, conn
}

func TestNewStoreCreatesStateTableAndPersists(t *testing.T) {
	_, conn := openStub(t)
	ctx := context.Background()
	store, err := NewStore(ctx, "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS state") {
		t.Fatalf("expected state DDL, got %v", conn.Execs)
	}

	var requestID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		req, err := tx.CreateApprovalRequest(domain.ApprovalRequest{
			RequesterID: 5,
			Status:      domain.StatusPending,
			RequestType: domain.RequestDataCreation,
			TableName:   domain.TableOrders,
			NewData:     domain.NewChangePayload(json.RawMessage(`{"order_number":"PO-1"}`)),
		})
		requestID = req.ID
		return err
	}); err != nil {
		t.Fatalf("run transaction: %v", err)
	}

	rows := conn.Rows("state")
	if len(rows) != 2 {
		t.Fatalf("expected one row per bucket, got %d", len(rows))
	}
	for _, row := range rows {
		if row["bucket"] != "approval_requests" {
			continue
		}
		payload, _ := row["payload"].([]byte)
		if !strings.Contains(string(payload), requestID) {
			t.Fatalf("approval bucket missing request %s: %s", requestID, payload)
		}
	}

	// A second commit replaces rather than appends bucket rows.
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateRecord(domain.Record{Table: domain.TableOrders, DepartmentID: 1})
		return err
	}); err != nil {
		t.Fatalf("second transaction: %v", err)
	}
	if got := len(conn.Rows("state")); got != 2 {
		t.Fatalf("expected upsert semantics, got %d rows", got)
	}
}

func TestNewStoreLoadsExistingSnapshot(t *testing.T) {
	_, conn := openStub(t)
	ctx := context.Background()
	first, err := NewStore(ctx, "", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	var recordID string
	if _, err := first.RunInTransaction(ctx, func(tx domain.Transaction) error {
		rec, err := tx.CreateRecord(domain.Record{
			Table:        domain.TableMaintenanceRoutine,
			DepartmentID: 9,
			Data:         json.RawMessage(`{"equipment":"Crusher"}`),
		})
		recordID = rec.ID
		return err
	}); err != nil {
		t.Fatalf("create record: %v", err)
	}
	if len(conn.Rows("state")) == 0 {
		t.Fatalf("expected snapshot rows")
	}

	second, err := NewStore(ctx, "", nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec, ok := second.GetRecord(domain.TableMaintenanceRoutine, recordID)
	if !ok {
		t.Fatalf("expected record after reload")
	}
	if rec.DepartmentID != 9 {
		t.Fatalf("unexpected department %d", rec.DepartmentID)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	_, conn := openStub(t)
	conn.FailPing = true
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestNewStoreOpenFailure(t *testing.T) {
	boom := errors.New("boom")
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, boom })
	t.Cleanup(restore)
	if _, err := NewStore(context.Background(), "postgres://x", nil); !errors.Is(err, boom) {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestRunInTransactionSurfacesPersistErrors(t *testing.T) {
	_, conn := openStub(t)
	ctx := context.Background()
	store, err := NewStore(ctx, "", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	conn.FailCommit = true
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateRecord(domain.Record{Table: domain.TableNotifications, DepartmentID: 1})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
	if got := store.ListRecords(domain.TableNotifications); len(got) != 0 {
		t.Fatalf("failed snapshot must roll back memory, got %d records", len(got))
	}
	conn.FailCommit = false
	conn.FailBegin = true
	if _, err := store.RunInTransaction(ctx, func(domain.Transaction) error { return nil }); err == nil {
		t.Fatalf("expected begin error")
	}
}
