package models

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Member is a participant of a single activity. Balance is the stored sum of
// the member's non-void transaction amounts; every batch rewrite updates it in
// the same database transaction that rewrites the rows.
type Member struct {
	ID         int             `json:"id,omitempty" db:"id,omitempty"`
	ActivityID int             `json:"activity_id,omitempty" db:"activity_id,omitempty"`
	Name       string          `json:"name,omitempty" db:"name,omitempty"`
	Email      sql.NullString  `json:"email,omitempty" db:"email,omitempty"`
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt  sql.NullString  `json:"created_at,omitempty" db:"created_at,omitempty"`
}
