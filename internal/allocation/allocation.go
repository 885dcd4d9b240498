// Package allocation computes how a shared cost is divided among the
// participants of a charge. It is pure math over decimals; persistence and
// balance bookkeeping live in the ledger package.
package allocation

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoAllocation is returned when the inputs cannot produce an allocation
// (non-positive total, no participants, or all-zero weights). Callers treat it
// as "record nothing" but should log that the charge was skipped.
var ErrNoAllocation = errors.New("allocation: nothing to allocate")

// Weights maps a member id to that member's share units. For a split-cost
// charge a weight is 1 + the member's guest count; for a per-use charge it is
// the number of games/units the member played.
type Weights map[int]int

// Sum returns the total number of share units.
func (w Weights) Sum() int {
	total := 0
	for _, units := range w {
		total += units
	}
	return total
}

// Allocate divides total across the weighted participants. Shares are left at
// the decimal library's division precision, not rounded to cents; repeated
// re-allocation of the same batch can therefore drift by tiny fractions. The
// shares always sum back to total within 1e-9.
func Allocate(total decimal.Decimal, weights Weights) (map[int]decimal.Decimal, error) {
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNoAllocation
	}
	sum := weights.Sum()
	if sum == 0 {
		return nil, ErrNoAllocation
	}

	perUnit := total.Div(decimal.NewFromInt(int64(sum)))

	shares := make(map[int]decimal.Decimal, len(weights))
	for memberID, units := range weights {
		if units == 0 {
			continue
		}
		shares[memberID] = perUnit.Mul(decimal.NewFromInt(int64(units)))
	}
	return shares, nil
}
