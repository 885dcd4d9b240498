package allocation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Transaction descriptions double as a human label and as a last-resort record
// of the batch's allocation parameters:
//
//	"<label> (total $<amount>)"            e.g. "lane rental (total $90)"
//	optionally followed by                 " [2 guests]" or " [3 games]"
//
// Current rows persist batch_total and weight as real columns, so the parser
// here only runs against rows written before those columns existed.

// Extra kinds for the bracketed suffix.
const (
	ExtraGuests = "guests"
	ExtraGames  = "games"
)

var (
	totalPattern = regexp.MustCompile(`\(total \$([0-9]+(?:\.[0-9]+)?)\)`)
	extraPattern = regexp.MustCompile(`\[([0-9]+) (guests|games)\]`)
)

// Describe renders the description for one batch row. extra is the guest count
// for split charges (omitted when zero) or the games count for per-use charges
// (always written, since games alone determine the weight).
func Describe(label string, total decimal.Decimal, extra int, extraKind string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (total $%s)", label, total.String())
	if extraKind == ExtraGames || extra > 0 {
		fmt.Fprintf(&b, " [%d %s]", extra, extraKind)
	}
	return b.String()
}

// Label returns the human label portion of a description, stripping the
// "(total $...)" marker and anything after it.
func Label(desc string) string {
	if i := strings.Index(desc, " (total $"); i >= 0 {
		return desc[:i]
	}
	return desc
}

// ParseTotal recovers the batch total from a description. The second return is
// false when the description does not carry the "(total $...)" marker.
func ParseTotal(desc string) (decimal.Decimal, bool) {
	m := totalPattern.FindStringSubmatch(desc)
	if m == nil {
		return decimal.Zero, false
	}
	total, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return total, true
}

// ParseWeight recovers a participant's weight from a description: games count
// for "[n games]", 1 + guest count for "[n guests]", and 1 when no bracketed
// suffix is present (a lone participant with no guests).
func ParseWeight(desc string) int {
	m := extraPattern.FindStringSubmatch(desc)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1
	}
	if m[2] == ExtraGames {
		return n
	}
	return 1 + n
}
