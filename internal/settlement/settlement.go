// Package settlement computes the outcome of a directional signal. It performs no I/O.
package settlement

import "agenthub/internal/models"

const bpsDenom = 10_000

type Outcome struct {
	Result models.SignalResult
	PnLBps int64
}

// Resolve settles a signal entered at entry against the observed settlement value.
//
// A zero (unknown) entry or settlement is a push. Otherwise raw PnL is
// (settlement-entry)*10000/entry rounded half away from zero; short-like directions
// (down/under/no) invert its sign so a correct call is always positive.
// Unknown directions settle as long.
func Resolve(direction models.Direction, entry, settlement int64) Outcome {
	if entry == 0 || settlement == 0 {
		return Outcome{Result: models.SignalResultPush}
	}
	if settlement == entry {
		return Outcome{Result: models.SignalResultPush}
	}

	raw := roundDiv((settlement-entry)*bpsDenom, entry)
	rose := settlement > entry

	if !direction.IsLong() && direction.Valid() {
		raw = -raw
		rose = !rose
	}
	if rose {
		return Outcome{Result: models.SignalResultWin, PnLBps: abs(raw)}
	}
	return Outcome{Result: models.SignalResultLose, PnLBps: -abs(raw)}
}

// roundDiv divides rounding half away from zero.
func roundDiv(num, den int64) int64 {
	if den < 0 {
		num, den = -num, -den
	}
	q := num / den
	r := num % den
	if 2*abs(r) >= den {
		if num < 0 {
			q--
		} else {
			q++
		}
	}
	return q
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
