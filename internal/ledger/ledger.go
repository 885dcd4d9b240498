// Package ledger owns every write that touches transaction batches and member
// balances. Each operation runs inside a single database transaction so the
// stored balance never diverges from the sum of the member's rows, even when a
// batch is being rewritten.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kittybook/internal/allocation"
	"kittybook/internal/models"
	"kittybook/pkg/utils"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	ErrNotFound      = errors.New("ledger: not found")
	ErrNotExpense    = errors.New("ledger: transaction is not an active expense")
	ErrAlreadyVoided = errors.New("ledger: transaction already voided")
	ErrWrongActivity = errors.New("ledger: member does not belong to activity")
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// Ledger performs batch allocation and reconciliation against the store.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// ChargeInput describes one charge event to allocate. Participants maps a
// member id to that member's extra count: guests brought for a split-cost
// activity, games played for a per-use activity.
type ChargeInput struct {
	ActivityID   int
	Label        string
	Total        decimal.Decimal
	Participants map[int]int
}

// Result reports what an allocation or reconciliation produced. A nil error
// with a non-empty Warnings slice means the operation completed but degraded
// somewhere (skipped allocation, description-parse fallback).
type Result struct {
	BatchID   string                  `json:"batch_id,omitempty"`
	Reference string                  `json:"reference,omitempty"`
	Total     decimal.Decimal         `json:"total"`
	Shares    map[int]decimal.Decimal `json:"shares,omitempty"`
	Weights   allocation.Weights      `json:"weights,omitempty"`
	Warnings  []string                `json:"warnings,omitempty"`
}

// GenerateReference builds a human-scannable reference for single-row entries.
func GenerateReference(prefix string) string {
	suffix := fmt.Sprintf("%04d", rand.Intn(10000))
	return fmt.Sprintf("%s%s-%s", prefix, time.Now().Format("20060102150405"), suffix)
}

// RecordCharge allocates one charge across the given participants and writes
// the batch: one expense row per participant under a fresh batch id, plus
// balance debits, all in one transaction. A charge that allocates to nothing
// (non-positive total, no participants) writes nothing and reports a warning.
func (l *Ledger) RecordCharge(ctx context.Context, in ChargeInput) (*Result, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var kind string
	var unitCost decimal.Decimal
	err = tx.QueryRowContext(ctx, "SELECT kind, unit_cost FROM activities WHERE id = ?", in.ActivityID).
		Scan(&kind, &unitCost)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}

	weights, extraKind := weightsFor(kind, in.Participants)

	total := in.Total
	if kind == models.ActivityKindPerUse && total.LessThanOrEqual(decimal.Zero) {
		// Per-use charges derive the total from games played.
		total = unitCost.Mul(decimal.NewFromInt(int64(weights.Sum())))
	}

	shares, err := allocation.Allocate(total, weights)
	if err == allocation.ErrNoAllocation {
		utils.Logger.Warnf("charge on activity %d skipped: nothing to allocate (total=%s, %d participants)",
			in.ActivityID, total, len(in.Participants))
		return &Result{Warnings: []string{"charge skipped: nothing to allocate"}}, nil
	}
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	createdAt := time.Now().UTC().Format(timeLayout)

	if err := l.writeBatch(ctx, tx, in.ActivityID, batchID, createdAt, in.Label, total, extraKind, weights, shares); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &Result{BatchID: batchID, Total: total, Shares: shares}, nil
}

// Deposit credits a member with a single positive transaction row.
func (l *Ledger) Deposit(ctx context.Context, memberID int, amount decimal.Decimal, note string) (*Result, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var activityID int
	err = tx.QueryRowContext(ctx, "SELECT activity_id FROM members WHERE id = ?", memberID).Scan(&activityID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}

	ref := GenerateReference("dep-")
	desc := ref
	if note != "" {
		desc = fmt.Sprintf("%s (%s)", note, ref)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (activity_id, member_id, kind, amount, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, activityID, memberID, models.TxKindDeposit, amount, desc, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert deposit: %w", err)
	}

	if err := l.shiftBalance(ctx, tx, memberID, amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &Result{Reference: ref, Total: amount}, nil
}

// EditBatch replaces a batch with a re-allocation: old rows are reversed and
// deleted, the total and weights are recovered (explicit input first, then
// stored columns, then description parsing, then summed amounts), and new rows
// are inserted under the same batch id and timestamp. Passing a nil newTotal
// keeps the recovered total; passing nil participants keeps the membership.
func (l *Ledger) EditBatch(ctx context.Context, batchID string, newTotal *decimal.Decimal, participants map[int]int) (*Result, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := batchRows(ctx, tx, "batch_id = ?", batchID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	activityID := rows[0].ActivityID
	createdAt := rows[0].CreatedAt.String
	label := allocation.Label(rows[0].Description)

	var kind string
	err = tx.QueryRowContext(ctx, "SELECT kind FROM activities WHERE id = ?", activityID).Scan(&kind)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}

	var warnings []string
	total, warn := recoverTotal(rows, newTotal)
	warnings = append(warnings, warn...)

	var weights allocation.Weights
	var extraKind string
	if participants != nil {
		weights, extraKind = weightsFor(kind, participants)
	} else {
		weights, extraKind, warn = recoverWeights(kind, rows)
		warnings = append(warnings, warn...)
	}

	shares, err := allocation.Allocate(total, weights)
	if err == allocation.ErrNoAllocation {
		// Leave the batch untouched rather than destroy it.
		utils.Logger.Warnf("edit of batch %s skipped: nothing to allocate", batchID)
		return &Result{BatchID: batchID, Warnings: append(warnings, "edit skipped: nothing to allocate")}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := l.reverseAndDelete(ctx, tx, rows); err != nil {
		return nil, err
	}
	if err := l.writeBatch(ctx, tx, activityID, batchID, createdAt, label, total, extraKind, weights, shares); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &Result{BatchID: batchID, Total: total, Shares: shares, Warnings: warnings}, nil
}

// RemoveFromBatch deletes one participant's row and redistributes the batch
// total among the remaining participants. The last participant's removal
// simply removes the batch. If the remaining rows cannot be re-allocated, the
// target row is still removed and the rest are left untouched.
func (l *Ledger) RemoveFromBatch(ctx context.Context, txID int) (*Result, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	target, err := loadRow(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if target.Kind != models.TxKindExpense {
		return nil, ErrNotExpense
	}

	var rows []models.Transaction
	if target.BatchID.Valid {
		rows, err = batchRows(ctx, tx, "batch_id = ?", target.BatchID.String)
	} else {
		// Rows from before batch ids existed: siblings share the activity
		// and the exact stored timestamp.
		rows, err = batchRows(ctx, tx, "batch_id IS NULL AND activity_id = ? AND created_at = ?",
			target.ActivityID, target.CreatedAt.String)
	}
	if err != nil {
		return nil, err
	}

	var warnings []string
	remaining := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		if row.ID != target.ID {
			remaining = append(remaining, row)
		}
	}

	if len(remaining) == 0 {
		if err := l.reverseAndDelete(ctx, tx, []models.Transaction{*target}); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return &Result{Warnings: []string{"last participant removed; batch deleted"}}, nil
	}

	var kind string
	err = tx.QueryRowContext(ctx, "SELECT kind FROM activities WHERE id = ?", target.ActivityID).Scan(&kind)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}

	total, warn := recoverTotal(rows, nil)
	warnings = append(warnings, warn...)
	weights, extraKind, warn := recoverWeights(kind, remaining)
	warnings = append(warnings, warn...)

	shares, err := allocation.Allocate(total, weights)
	if err == allocation.ErrNoAllocation {
		utils.Logger.Warnf("redistribution for batch of transaction %d skipped: nothing to allocate", txID)
		if err := l.reverseAndDelete(ctx, tx, []models.Transaction{*target}); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return &Result{Warnings: append(warnings, "row removed; redistribution skipped")}, nil
	}
	if err != nil {
		return nil, err
	}

	batchID := ""
	if target.BatchID.Valid {
		batchID = target.BatchID.String
	} else {
		// Removal rewrites the batch anyway, so legacy rows pick up a real
		// batch id here.
		batchID = uuid.NewString()
		warnings = append(warnings, "legacy batch assigned a batch id")
	}
	label := allocation.Label(target.Description)
	createdAt := target.CreatedAt.String

	if err := l.reverseAndDelete(ctx, tx, rows); err != nil {
		return nil, err
	}
	if err := l.writeBatch(ctx, tx, target.ActivityID, batchID, createdAt, label, total, extraKind, weights, shares); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &Result{BatchID: batchID, Total: total, Shares: shares, Warnings: warnings}, nil
}

// VoidTransaction reverses a row's balance effect in place: the amount is
// zeroed, the kind becomes void, and the description is prefixed. Voided rows
// stay visible and are terminal.
func (l *Ledger) VoidTransaction(ctx context.Context, txID int) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row, err := loadRow(ctx, tx, txID)
	if err != nil {
		return err
	}
	if row.Kind == models.TxKindVoid {
		return ErrAlreadyVoided
	}

	if err := l.shiftBalance(ctx, tx, row.MemberID, row.Amount.Neg()); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions SET amount = ?, kind = ?, description = ? WHERE id = ?
	`, decimal.Zero, models.TxKindVoid, "VOID: "+row.Description, row.ID)
	if err != nil {
		return fmt.Errorf("void row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Batch returns the active expense rows of a batch plus the allocation
// parameters that a reconciliation would recover from them.
func (l *Ledger) Batch(ctx context.Context, batchID string) ([]models.Transaction, *Result, error) {
	rows, err := batchRows(ctx, l.db, "batch_id = ?", batchID)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, ErrNotFound
	}

	var kind string
	err = l.db.QueryRowContext(ctx, "SELECT kind FROM activities WHERE id = ?", rows[0].ActivityID).Scan(&kind)
	if err != nil {
		return nil, nil, fmt.Errorf("load activity: %w", err)
	}

	total, warnings := recoverTotal(rows, nil)
	weights, _, warn := recoverWeights(kind, rows)
	warnings = append(warnings, warn...)

	shares := make(map[int]decimal.Decimal, len(rows))
	for _, row := range rows {
		shares[row.MemberID] = row.Amount.Neg()
	}

	return rows, &Result{BatchID: batchID, Total: total, Shares: shares, Weights: weights, Warnings: warnings}, nil
}

// ---------------------------------------------------------------
// internals
// ---------------------------------------------------------------

// weightsFor turns per-member extra counts into allocation weights according
// to the activity kind.
func weightsFor(kind string, participants map[int]int) (allocation.Weights, string) {
	weights := make(allocation.Weights, len(participants))
	if kind == models.ActivityKindPerUse {
		for memberID, games := range participants {
			weights[memberID] = games
		}
		return weights, allocation.ExtraGames
	}
	for memberID, guests := range participants {
		weights[memberID] = 1 + guests
	}
	return weights, allocation.ExtraGuests
}

// recoverTotal finds the batch total, preferring an explicit value, then the
// stored batch_total column, then the description marker, then the sum of the
// rows' absolute amounts.
func recoverTotal(rows []models.Transaction, explicit *decimal.Decimal) (decimal.Decimal, []string) {
	if explicit != nil {
		return *explicit, nil
	}
	for _, row := range rows {
		if row.BatchTotal.Valid {
			return row.BatchTotal.Decimal, nil
		}
	}
	for _, row := range rows {
		if total, ok := allocation.ParseTotal(row.Description); ok {
			utils.Logger.Warnf("batch total for transaction %d recovered from description", row.ID)
			return total, []string{"batch total recovered from description"}
		}
	}
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Amount.Abs())
	}
	utils.Logger.Warnf("batch total unrecoverable; using sum of %d row amounts", len(rows))
	return sum, []string{"batch total missing; using sum of row amounts"}
}

// recoverWeights rebuilds the weight map for the given rows, preferring the
// stored weight column and falling back to description parsing.
func recoverWeights(kind string, rows []models.Transaction) (allocation.Weights, string, []string) {
	extraKind := allocation.ExtraGuests
	if kind == models.ActivityKindPerUse {
		extraKind = allocation.ExtraGames
	}

	weights := make(allocation.Weights, len(rows))
	var warnings []string
	for _, row := range rows {
		if row.Weight.Valid {
			weights[row.MemberID] = int(row.Weight.Int64)
			continue
		}
		weights[row.MemberID] = allocation.ParseWeight(row.Description)
		utils.Logger.Warnf("weight for transaction %d recovered from description", row.ID)
		warnings = append(warnings, fmt.Sprintf("weight for member %d recovered from description", row.MemberID))
	}
	return weights, extraKind, warnings
}

// writeBatch inserts one expense row per share and debits each balance.
func (l *Ledger) writeBatch(ctx context.Context, tx *sql.Tx, activityID int, batchID, createdAt, label string,
	total decimal.Decimal, extraKind string, weights allocation.Weights, shares map[int]decimal.Decimal) error {

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (activity_id, member_id, batch_id, kind, amount, batch_total, weight, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for memberID, share := range shares {
		var memberActivity int
		err = tx.QueryRowContext(ctx, "SELECT activity_id FROM members WHERE id = ?", memberID).Scan(&memberActivity)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: member %d", ErrNotFound, memberID)
		}
		if err != nil {
			return fmt.Errorf("load member %d: %w", memberID, err)
		}
		if memberActivity != activityID {
			return fmt.Errorf("%w: member %d", ErrWrongActivity, memberID)
		}

		weight := weights[memberID]
		extra := weight
		if extraKind == allocation.ExtraGuests {
			extra = weight - 1
		}
		desc := allocation.Describe(label, total, extra, extraKind)

		_, err = stmt.ExecContext(ctx, activityID, memberID, batchID, models.TxKindExpense,
			share.Neg(), total, weight, desc, createdAt)
		if err != nil {
			return fmt.Errorf("insert batch row for member %d: %w", memberID, err)
		}

		if err := l.shiftBalance(ctx, tx, memberID, share.Neg()); err != nil {
			return err
		}
	}
	return nil
}

// reverseAndDelete undoes each row's balance effect and hard-deletes it.
func (l *Ledger) reverseAndDelete(ctx context.Context, tx *sql.Tx, rows []models.Transaction) error {
	for _, row := range rows {
		if err := l.shiftBalance(ctx, tx, row.MemberID, row.Amount.Neg()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", row.ID); err != nil {
			return fmt.Errorf("delete row %d: %w", row.ID, err)
		}
	}
	return nil
}

// shiftBalance applies a signed delta to a member's stored balance. The read
// and write happen inside the caller's transaction.
func (l *Ledger) shiftBalance(ctx context.Context, tx *sql.Tx, memberID int, delta decimal.Decimal) error {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, "SELECT balance FROM members WHERE id = ?", memberID).Scan(&balance)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: member %d", ErrNotFound, memberID)
	}
	if err != nil {
		return fmt.Errorf("load balance for member %d: %w", memberID, err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE members SET balance = ? WHERE id = ?", balance.Add(delta), memberID)
	if err != nil {
		return fmt.Errorf("update balance for member %d: %w", memberID, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// batchRows loads the active expense rows matching the where clause.
func batchRows(ctx context.Context, q queryer, where string, args ...any) ([]models.Transaction, error) {
	query := `
		SELECT id, activity_id, member_id, batch_id, kind, amount, batch_total, weight, description, created_at
		FROM transactions
		WHERE kind = 'expense' AND ` + where + `
		ORDER BY id
	`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load batch rows: %w", err)
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		var t models.Transaction
		err = rows.Scan(&t.ID, &t.ActivityID, &t.MemberID, &t.BatchID, &t.Kind, &t.Amount,
			&t.BatchTotal, &t.Weight, &t.Description, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// loadRow fetches a single transaction row for update inside tx.
func loadRow(ctx context.Context, tx *sql.Tx, txID int) (*models.Transaction, error) {
	var t models.Transaction
	err := tx.QueryRowContext(ctx, `
		SELECT id, activity_id, member_id, batch_id, kind, amount, batch_total, weight, description, created_at
		FROM transactions WHERE id = ?
	`, txID).Scan(&t.ID, &t.ActivityID, &t.MemberID, &t.BatchID, &t.Kind, &t.Amount,
		&t.BatchTotal, &t.Weight, &t.Description, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction %d: %w", txID, err)
	}
	return &t, nil
}
