package ledger

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"kittybook/internal/models"
)

// Tests run against in-memory SQLite with a schema shaped like the production
// one; the ledger only issues dialect-neutral SQL.
const testSchema = `
CREATE TABLE activities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	unit_cost TEXT NOT NULL DEFAULT '0',
	alert_threshold TEXT NOT NULL DEFAULT '0',
	created_at TEXT
);
CREATE TABLE members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	activity_id INTEGER NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	email TEXT,
	balance TEXT NOT NULL DEFAULT '0',
	created_at TEXT
);
CREATE TABLE transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	activity_id INTEGER NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
	batch_id TEXT,
	kind TEXT NOT NULL,
	amount TEXT NOT NULL,
	batch_total TEXT,
	weight INTEGER,
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT
);
`

var tolerance = decimal.New(1, -9)

func approxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

func newTestLedger(t *testing.T) (*Ledger, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return New(db), db
}

func seedActivity(t *testing.T, db *sql.DB, kind, unitCost string, memberNames ...string) (int, []int) {
	t.Helper()
	res, err := db.Exec("INSERT INTO activities (name, kind, unit_cost) VALUES (?, ?, ?)", "test activity", kind, unitCost)
	if err != nil {
		t.Fatalf("insert activity: %v", err)
	}
	activityID64, _ := res.LastInsertId()
	activityID := int(activityID64)

	var memberIDs []int
	for _, name := range memberNames {
		res, err := db.Exec("INSERT INTO members (activity_id, name) VALUES (?, ?)", activityID, name)
		if err != nil {
			t.Fatalf("insert member: %v", err)
		}
		id, _ := res.LastInsertId()
		memberIDs = append(memberIDs, int(id))
	}
	return activityID, memberIDs
}

func memberBalance(t *testing.T, db *sql.DB, memberID int) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	if err := db.QueryRow("SELECT balance FROM members WHERE id = ?", memberID).Scan(&balance); err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return balance
}

func TestRecordChargeSplit(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice", "Bob")
	ctx := context.Background()

	// Alice alone (weight 1), Bob brings one guest (weight 2).
	res, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "bowling night",
		Total:        decimal.NewFromInt(90),
		Participants: map[int]int{members[0]: 0, members[1]: 1},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}
	if res.BatchID == "" {
		t.Fatal("expected a batch id")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}

	if got := memberBalance(t, db, members[0]); !approxEqual(got, decimal.NewFromInt(-30)) {
		t.Errorf("Alice balance = %s, want -30", got)
	}
	if got := memberBalance(t, db, members[1]); !approxEqual(got, decimal.NewFromInt(-60)) {
		t.Errorf("Bob balance = %s, want -60", got)
	}

	rows, info, err := led.Batch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d batch rows, want 2", len(rows))
	}
	if !approxEqual(info.Total, decimal.NewFromInt(90)) {
		t.Errorf("recovered total = %s, want 90", info.Total)
	}
	for _, row := range rows {
		if !row.BatchTotal.Valid || !approxEqual(row.BatchTotal.Decimal, decimal.NewFromInt(90)) {
			t.Errorf("row %d batch_total = %v, want 90", row.ID, row.BatchTotal)
		}
		if row.CreatedAt.String != rows[0].CreatedAt.String {
			t.Errorf("batch rows have differing timestamps")
		}
	}
}

func TestRecordChargePerUse(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindPerUse, "12", "Alice", "Bob")
	ctx := context.Background()

	// Total derived from unit cost: 12 * (2+1) = 36.
	res, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "league games",
		Participants: map[int]int{members[0]: 2, members[1]: 1},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}
	if !approxEqual(res.Total, decimal.NewFromInt(36)) {
		t.Errorf("total = %s, want 36", res.Total)
	}
	if got := memberBalance(t, db, members[0]); !approxEqual(got, decimal.NewFromInt(-24)) {
		t.Errorf("Alice balance = %s, want -24", got)
	}
	if got := memberBalance(t, db, members[1]); !approxEqual(got, decimal.NewFromInt(-12)) {
		t.Errorf("Bob balance = %s, want -12", got)
	}
}

func TestRecordChargeNothingToAllocate(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice")
	ctx := context.Background()

	res, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "nothing",
		Total:        decimal.Zero,
		Participants: map[int]int{members[0]: 0},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a skip warning")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("got %d transaction rows, want 0", count)
	}
	if got := memberBalance(t, db, members[0]); !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
}

func TestEditBatchNewTotal(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice", "Bob")
	ctx := context.Background()

	res, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "court rental",
		Total:        decimal.NewFromInt(90),
		Participants: map[int]int{members[0]: 0, members[1]: 1},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}
	origRows, _, err := led.Batch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}

	newTotal := decimal.NewFromInt(120)
	edited, err := led.EditBatch(ctx, res.BatchID, &newTotal, nil)
	if err != nil {
		t.Fatalf("EditBatch: %v", err)
	}
	if edited.BatchID != res.BatchID {
		t.Errorf("batch id changed on edit: %s -> %s", res.BatchID, edited.BatchID)
	}

	// Same weights, new total: shares scale linearly.
	if got := memberBalance(t, db, members[0]); !approxEqual(got, decimal.NewFromInt(-40)) {
		t.Errorf("Alice balance = %s, want -40", got)
	}
	if got := memberBalance(t, db, members[1]); !approxEqual(got, decimal.NewFromInt(-80)) {
		t.Errorf("Bob balance = %s, want -80", got)
	}

	rows, _, err := led.Batch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("Batch after edit: %v", err)
	}
	if rows[0].CreatedAt.String != origRows[0].CreatedAt.String {
		t.Error("batch timestamp changed across edit")
	}
}

func TestEditBatchIdempotent(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice", "Bob", "Cara")
	ctx := context.Background()

	res, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "snacks",
		Total:        decimal.NewFromInt(100),
		Participants: map[int]int{members[0]: 0, members[1]: 0, members[2]: 0},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}

	before := make(map[int]decimal.Decimal)
	for _, id := range members {
		before[id] = memberBalance(t, db, id)
	}

	// Re-reconciling with nothing changed reproduces the original shares.
	if _, err := led.EditBatch(ctx, res.BatchID, nil, nil); err != nil {
		t.Fatalf("EditBatch: %v", err)
	}
	for _, id := range members {
		after := memberBalance(t, db, id)
		if !approxEqual(after, before[id]) {
			t.Errorf("member %d balance drifted: %s -> %s", id, before[id], after)
		}
	}

	// Shares still sum to the total.
	sum := decimal.Zero
	rows, _, err := led.Batch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	for _, row := range rows {
		sum = sum.Add(row.Amount)
	}
	if !approxEqual(sum, decimal.NewFromInt(-100)) {
		t.Errorf("batch rows sum to %s, want -100", sum)
	}
}

func TestEditBatchEmptyParticipantsLeavesBatchAlone(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice", "Bob")
	ctx := context.Background()

	res, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "court rental",
		Total:        decimal.NewFromInt(60),
		Participants: map[int]int{members[0]: 0, members[1]: 0},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}

	edited, err := led.EditBatch(ctx, res.BatchID, nil, map[int]int{})
	if err != nil {
		t.Fatalf("EditBatch: %v", err)
	}
	if len(edited.Warnings) == 0 {
		t.Error("expected a skip warning")
	}

	// Rows and balances untouched.
	rows, _, err := led.Batch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
	if got := memberBalance(t, db, members[0]); !approxEqual(got, decimal.NewFromInt(-30)) {
		t.Errorf("Alice balance = %s, want -30", got)
	}
}

func TestRemoveFromBatchRedistributes(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice", "Bob", "Cara")
	ctx := context.Background()

	res, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "lane fees",
		Total:        decimal.NewFromInt(90),
		Participants: map[int]int{members[0]: 0, members[1]: 0, members[2]: 0},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}

	var caraRow int
	err = db.QueryRow("SELECT id FROM transactions WHERE member_id = ?", members[2]).Scan(&caraRow)
	if err != nil {
		t.Fatalf("find Cara's row: %v", err)
	}

	removed, err := led.RemoveFromBatch(ctx, caraRow)
	if err != nil {
		t.Fatalf("RemoveFromBatch: %v", err)
	}
	if !approxEqual(removed.Total, decimal.NewFromInt(90)) {
		t.Errorf("recovered total = %s, want 90", removed.Total)
	}

	// Total stays $90, now split two ways.
	if got := memberBalance(t, db, members[0]); !approxEqual(got, decimal.NewFromInt(-45)) {
		t.Errorf("Alice balance = %s, want -45", got)
	}
	if got := memberBalance(t, db, members[1]); !approxEqual(got, decimal.NewFromInt(-45)) {
		t.Errorf("Bob balance = %s, want -45", got)
	}
	if got := memberBalance(t, db, members[2]); !got.IsZero() {
		t.Errorf("Cara balance = %s, want 0", got)
	}

	rows, _, err := led.Batch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows after removal, want 2", len(rows))
	}
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Amount)
	}
	if !approxEqual(sum, decimal.NewFromInt(-90)) {
		t.Errorf("batch rows sum to %s, want -90", sum)
	}
}

func TestRemoveFromBatchLastParticipant(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice")
	ctx := context.Background()

	_, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "solo session",
		Total:        decimal.NewFromInt(25),
		Participants: map[int]int{members[0]: 0},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}

	var rowID int
	if err := db.QueryRow("SELECT id FROM transactions WHERE member_id = ?", members[0]).Scan(&rowID); err != nil {
		t.Fatal(err)
	}
	if _, err := led.RemoveFromBatch(ctx, rowID); err != nil {
		t.Fatalf("RemoveFromBatch: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("got %d rows, want 0", count)
	}
	if got := memberBalance(t, db, members[0]); !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
}

func TestRemoveFromBatchLegacyRowsFallBackToSummedAmounts(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice", "Bob")
	ctx := context.Background()

	// Rows written before batch ids and structured columns existed, with
	// descriptions that don't carry the "(total $...)" marker: the recovery
	// must fall back to the sum of absolute amounts (60).
	ts := "2024-03-01 19:30:00"
	for i, amount := range []string{"-20", "-40"} {
		_, err := db.Exec(`
			INSERT INTO transactions (activity_id, member_id, kind, amount, description, created_at)
			VALUES (?, ?, 'expense', ?, 'old bowling charge', ?)
		`, activityID, members[i], amount, ts)
		if err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.Exec("UPDATE members SET balance = '-20' WHERE id = ?", members[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE members SET balance = '-40' WHERE id = ?", members[1]); err != nil {
		t.Fatal(err)
	}

	var bobRow int
	if err := db.QueryRow("SELECT id FROM transactions WHERE member_id = ?", members[1]).Scan(&bobRow); err != nil {
		t.Fatal(err)
	}

	res, err := led.RemoveFromBatch(ctx, bobRow)
	if err != nil {
		t.Fatalf("RemoveFromBatch: %v", err)
	}
	if !approxEqual(res.Total, decimal.NewFromInt(60)) {
		t.Errorf("recovered total = %s, want 60 (sum of row amounts)", res.Total)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected fallback warnings")
	}

	// Alice now carries the whole recovered total.
	if got := memberBalance(t, db, members[0]); !approxEqual(got, decimal.NewFromInt(-60)) {
		t.Errorf("Alice balance = %s, want -60", got)
	}
	if got := memberBalance(t, db, members[1]); !got.IsZero() {
		t.Errorf("Bob balance = %s, want 0", got)
	}
	if res.BatchID == "" {
		t.Error("legacy batch should have been assigned a batch id")
	}
}

func TestDepositAndVoid(t *testing.T) {
	led, db := newTestLedger(t)
	_, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice")
	ctx := context.Background()

	res, err := led.Deposit(ctx, members[0], decimal.NewFromInt(50), "monthly top-up")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if res.Reference == "" {
		t.Error("expected a deposit reference")
	}
	if got := memberBalance(t, db, members[0]); !approxEqual(got, decimal.NewFromInt(50)) {
		t.Errorf("balance after deposit = %s, want 50", got)
	}

	var rowID int
	var desc string
	if err := db.QueryRow("SELECT id, description FROM transactions WHERE member_id = ?", members[0]).Scan(&rowID, &desc); err != nil {
		t.Fatal(err)
	}

	if err := led.VoidTransaction(ctx, rowID); err != nil {
		t.Fatalf("VoidTransaction: %v", err)
	}
	if got := memberBalance(t, db, members[0]); !got.IsZero() {
		t.Errorf("balance after void = %s, want 0", got)
	}

	var kind, newDesc string
	var amount decimal.Decimal
	err = db.QueryRow("SELECT kind, amount, description FROM transactions WHERE id = ?", rowID).Scan(&kind, &amount, &newDesc)
	if err != nil {
		t.Fatal(err)
	}
	if kind != models.TxKindVoid {
		t.Errorf("kind = %s, want void", kind)
	}
	if !amount.IsZero() {
		t.Errorf("amount = %s, want 0", amount)
	}
	if newDesc != "VOID: "+desc {
		t.Errorf("description = %q, want VOID prefix on %q", newDesc, desc)
	}

	// Voided is terminal.
	if err := led.VoidTransaction(ctx, rowID); err != ErrAlreadyVoided {
		t.Errorf("second void error = %v, want ErrAlreadyVoided", err)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	led, db := newTestLedger(t)
	_, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice")

	if _, err := led.Deposit(context.Background(), members[0], decimal.Zero, ""); err != ErrInvalidAmount {
		t.Errorf("Deposit(0) error = %v, want ErrInvalidAmount", err)
	}
}

func TestVoidThenEditExcludesVoidedRow(t *testing.T) {
	led, db := newTestLedger(t)
	activityID, members := seedActivity(t, db, models.ActivityKindSplit, "0", "Alice", "Bob")
	ctx := context.Background()

	res, err := led.RecordCharge(ctx, ChargeInput{
		ActivityID:   activityID,
		Label:        "court rental",
		Total:        decimal.NewFromInt(80),
		Participants: map[int]int{members[0]: 0, members[1]: 0},
	})
	if err != nil {
		t.Fatalf("RecordCharge: %v", err)
	}

	var aliceRow int
	if err := db.QueryRow("SELECT id FROM transactions WHERE member_id = ?", members[0]).Scan(&aliceRow); err != nil {
		t.Fatal(err)
	}
	if err := led.VoidTransaction(ctx, aliceRow); err != nil {
		t.Fatalf("VoidTransaction: %v", err)
	}

	// The voided row is no longer part of the active batch; editing the
	// total re-allocates among the rest only.
	newTotal := decimal.NewFromInt(100)
	edited, err := led.EditBatch(ctx, res.BatchID, &newTotal, nil)
	if err != nil {
		t.Fatalf("EditBatch: %v", err)
	}
	if len(edited.Shares) != 1 {
		t.Fatalf("got %d shares, want 1", len(edited.Shares))
	}
	if got := memberBalance(t, db, members[1]); !approxEqual(got, decimal.NewFromInt(-100)) {
		t.Errorf("Bob balance = %s, want -100", got)
	}
	if got := memberBalance(t, db, members[0]); !got.IsZero() {
		t.Errorf("Alice balance = %s, want 0 after void", got)
	}
}
