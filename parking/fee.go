package parking

import (
	"fmt"
	"math"
	"time"
)

// FeePolicy turns dwell time into a billed amount. A stay is billed at the
// flat normal rate; once dwell reaches the penalty threshold the whole charge
// becomes the flat penalty rate instead. The penalty replaces the base
// charge, it is not added on top and does not grow with extra days.
type FeePolicy struct {
	NormalRate   int
	PenaltyRate  int
	PenaltyAfter time.Duration
}

func NewFeePolicy(normalRate, penaltyRate int, penaltyAfterHours int) FeePolicy {
	return FeePolicy{
		NormalRate:   normalRate,
		PenaltyRate:  penaltyRate,
		PenaltyAfter: time.Duration(penaltyAfterHours) * time.Hour,
	}
}

// Compute returns the dwell duration in minutes, partial minutes rounded up,
// and the amount due. exitedAt earlier than enteredAt is a caller bug, not a
// data condition, and panics.
func (p FeePolicy) Compute(enteredAt, exitedAt time.Time) (durationMinutes, amountDue int) {
	elapsed := exitedAt.Sub(enteredAt)
	if elapsed < 0 {
		panic(fmt.Sprintf("fee: exit time %s before entry time %s", exitedAt, enteredAt))
	}

	durationMinutes = int(math.Ceil(elapsed.Seconds() / 60))

	amountDue = p.NormalRate
	if elapsed >= p.PenaltyAfter {
		amountDue = p.PenaltyRate
	}
	return durationMinutes, amountDue
}
