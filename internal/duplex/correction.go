package duplex

// Correction is a single-input drift filter. It turns a channel's measured
// balance (frames ahead/behind the clock) into a signed frame offset that
// the loop driver adds to the scheduled end_frame of the next enqueued
// buffer.
//
// The divide-by-(DriftMax+1) term produces a slow, audibly imperceptible
// realignment of +/-1 frame at a time during normal operation. The
// LossMax threshold handles the case of a sudden drop-out where tens to
// hundreds of frames are lost at once and a single correction must jump
// the deadline by the full offset instead of slewing toward it.
type Correction struct {
	Correction    int64
	AverageOffset int64
	LossMax       int64
	DriftMax      int64
}

// NewCorrection returns a Correction with the default thresholds: a
// 128-frame loss threshold and a 64-frame drift slew window.
func NewCorrection() *Correction {
	return &Correction{
		LossMax:  128,
		DriftMax: 64,
	}
}

// Correct updates the filter from a measured balance against a target of
// zero and returns the new correction value.
func (c *Correction) Correct(balance int64) int64 {
	return c.CorrectTo(balance, 0)
}

// CorrectTo updates the filter from a measured balance against an
// arbitrary target and returns the new correction value.
func (c *Correction) CorrectTo(balance, target int64) int64 {
	offset := target - balance
	c.AverageOffset = (c.AverageOffset + offset) / 2

	if abs64(offset-c.Correction) > c.LossMax {
		c.Correction = offset
	} else {
		c.Correction += (c.AverageOffset - c.Correction) / (c.DriftMax + 1)
	}
	return c.Correction
}

// Clear resets the correction to zero without touching the thresholds or
// the EWMA state.
func (c *Correction) Clear() {
	c.Correction = 0
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
