package database

import (
	"context"
	"strings"
	"testing"
)

func newMigratedDB(t *testing.T) (*DB, *Migrator) {
	t.Helper()
	db, err := NewInMemory()
	if err != nil {
		t.Fatalf("creating database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := NewMigrator(db)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if _, err := m.MigrateUp(context.Background()); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	return db, m
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want int
	}{
		{"Simple", "CREATE TABLE a (x INT); CREATE TABLE b (y INT);", 2},
		{"Semicolon in string", "INSERT INTO a VALUES ('x;y'); SELECT 1", 2},
		{"Comment with semicolon", "-- one; two\nSELECT 1;", 1},
		{
			"Trigger body",
			"CREATE TRIGGER t BEFORE DELETE ON a BEGIN SELECT RAISE(ABORT, 'no'); END; SELECT 1;",
			2,
		},
		{
			"Trigger with CASE",
			"CREATE TRIGGER t AFTER INSERT ON a BEGIN UPDATE b SET y = CASE WHEN NEW.x > 0 THEN 1 ELSE 0 END; SELECT 2; END; SELECT 3;",
			2,
		},
		{"BEGIN outside trigger", "BEGIN; SELECT 1; COMMIT;", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitStatements(tt.sql)
			if len(got) != tt.want {
				t.Errorf("splitStatements() = %d statements %q, want %d", len(got), got, tt.want)
			}
		})
	}
}

func TestParseMigration(t *testing.T) {
	up, down := parseMigration("-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n")
	if up != "CREATE TABLE a (x INT);" {
		t.Errorf("up = %q", up)
	}
	if down != "DROP TABLE a;" {
		t.Errorf("down = %q", down)
	}
}

func TestMigrator_UpDownStatus(t *testing.T) {
	db, m := newMigratedDB(t)
	ctx := context.Background()

	version, err := m.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion() error = %v", err)
	}
	if version != m.Latest() || version < 3 {
		t.Errorf("version = %d, latest = %d", version, m.Latest())
	}

	status, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	for _, mig := range status {
		if !mig.Applied || mig.Drifted {
			t.Errorf("migration %d applied=%v drifted=%v", mig.Version, mig.Applied, mig.Drifted)
		}
	}

	if _, err := m.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'dispense_records'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("dispense_records should be dropped after rollback")
	}

	res, err := m.MigrateUp(ctx)
	if err != nil {
		t.Fatalf("re-applying: %v", err)
	}
	if len(res.Applied) != 1 {
		t.Errorf("re-applied %d migrations, want 1", len(res.Applied))
	}
}

func TestSchema_LedgerIsAppendOnly(t *testing.T) {
	db, _ := newMigratedDB(t)
	now := "2026-03-01T09:00:00.000000Z"

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := db.Exec(q, args...); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}

	mustExec(`INSERT INTO medicines (id, code, name, unit, created_at, updated_at) VALUES ('m1', 'AMOX-500', 'Amoxicillin', 'capsule', ?, ?)`, now, now)
	mustExec(`INSERT INTO batch_inventory (id, medicine_id, batch_number, current_stock, available_stock, created_at, updated_at) VALUES ('b1', 'm1', 'L1', 100, 100, ?, ?)`, now, now)
	mustExec(`INSERT INTO stock_transactions (id, transaction_number, batch_id, medicine_id, batch_number, sequence, type, quantity, stock_before, stock_after, status, occurred_at, created_at)
		VALUES ('t1', 'STK-1', 'b1', 'm1', 'L1', 1, 'IN', 100, 0, 100, 'CONFIRMED', ?, ?)`, now, now)

	tests := []struct {
		name    string
		sql     string
		errText string
	}{
		{"Delete transaction", "DELETE FROM stock_transactions WHERE id = 't1'", "append-only"},
		{"Update quantity", "UPDATE stock_transactions SET quantity = 50, stock_after = 50 WHERE id = 't1'", "immutable"},
		{"Review confirmed row", "UPDATE stock_transactions SET reviewer = 'x' WHERE id = 't1'", "only pending"},
		{"Delete batch", "DELETE FROM batch_inventory WHERE id = 'b1'", "never deleted"},
		{"Stale available stock", "UPDATE batch_inventory SET reserved_stock = 10 WHERE id = 'b1'", "CHECK"},
		{
			"Unreconciled snapshot",
			`INSERT INTO stock_transactions (id, transaction_number, batch_id, medicine_id, batch_number, sequence, type, quantity, stock_before, stock_after, occurred_at, created_at)
			 VALUES ('t2', 'STK-2', 'b1', 'm1', 'L1', 2, 'OUT', -10, 100, 80, '` + now + `', '` + now + `')`,
			"CHECK",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Exec(tt.sql)
			if err == nil {
				t.Fatal("expected statement to be rejected")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("error %q does not contain %q", err, tt.errText)
			}
		})
	}
}

func TestSchema_OneActiveDispensePerPrescription(t *testing.T) {
	db, _ := newMigratedDB(t)
	now := "2026-03-01T09:00:00.000000Z"

	if _, err := db.Exec(`INSERT INTO prescriptions (id, prescription_number, patient_id, prescriber_id, status, issued_at, created_at, updated_at)
		VALUES ('p1', 'RX-1', 'pat', 'doc', 'REVIEWED', ?, ?, ?)`, now, now, now); err != nil {
		t.Fatal(err)
	}

	insert := func(id, status string) error {
		_, err := db.Exec(`INSERT INTO dispense_records (id, dispense_number, prescription_id, patient_id, pharmacist_id, status, created_at, updated_at)
			VALUES (?, ?, 'p1', 'pat', 'ph', ?, ?, ?)`, id, "DSP-"+id, status, now, now)
		return err
	}

	if err := insert("r1", "CANCELLED"); err != nil {
		t.Fatalf("terminal record: %v", err)
	}
	if err := insert("r2", "IN_PROGRESS"); err != nil {
		t.Fatalf("first active record: %v", err)
	}
	if err := insert("r3", "PENDING"); err == nil {
		t.Error("expected second active record to be rejected")
	}
}

func TestDB_HealthCheckAndClose(t *testing.T) {
	db, err := NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(ctx); err != ErrClosed {
		t.Errorf("HealthCheck() after close = %v, want ErrClosed", err)
	}
	if _, err := db.BeginTx(ctx, nil); err != ErrClosed {
		t.Errorf("BeginTx() after close = %v, want ErrClosed", err)
	}
}
