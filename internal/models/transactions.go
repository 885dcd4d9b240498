package models

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Transaction kinds. Expenses carry negative amounts, deposits positive ones.
// A voided row stays visible but its amount is zeroed.
const (
	TxKindExpense = "expense"
	TxKindDeposit = "deposit"
	TxKindVoid    = "void"
)

// Transaction is one signed ledger entry for a member. Rows produced by a
// single allocation event share a batch id, a batch total, and a created_at
// timestamp; per-row weight records how the batch total was divided so the
// batch can be re-allocated later without parsing the description.
type Transaction struct {
	ID          int                 `json:"id,omitempty" db:"id,omitempty"`
	ActivityID  int                 `json:"activity_id,omitempty" db:"activity_id,omitempty"`
	MemberID    int                 `json:"member_id,omitempty" db:"member_id,omitempty"`
	BatchID     sql.NullString      `json:"batch_id,omitempty" db:"batch_id,omitempty"`
	Kind        string              `json:"kind,omitempty" db:"kind,omitempty"`
	Amount      decimal.Decimal     `json:"amount" db:"amount"`
	BatchTotal  decimal.NullDecimal `json:"batch_total,omitempty" db:"batch_total,omitempty"`
	Weight      sql.NullInt64       `json:"weight,omitempty" db:"weight,omitempty"`
	Description string              `json:"description,omitempty" db:"description,omitempty"`
	CreatedAt   sql.NullString      `json:"created_at,omitempty" db:"created_at,omitempty"`
}
