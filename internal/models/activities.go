package models

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Activity kinds. A per-use activity charges members by how many games/units
// they played at the activity's unit cost; a split activity divides a lump
// cost among participants weighted by 1 + their guest count.
const (
	ActivityKindPerUse = "per_use"
	ActivityKindSplit  = "split"
)

type Activity struct {
	ID             int             `json:"id,omitempty" db:"id,omitempty"`
	Name           string          `json:"name,omitempty" db:"name,omitempty"`
	Kind           string          `json:"kind,omitempty" db:"kind,omitempty"`
	UnitCost       decimal.Decimal `json:"unit_cost,omitempty" db:"unit_cost,omitempty"`
	AlertThreshold decimal.Decimal `json:"alert_threshold,omitempty" db:"alert_threshold,omitempty"`
	CreatedAt      sql.NullString  `json:"created_at,omitempty" db:"created_at,omitempty"`
}
