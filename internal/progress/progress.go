// Package progress tracks how far through the scripted question sequence
// a participant is.
package progress

// Progress counts answered questions out of the script total.
// Current is always within [0, Total].
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// New returns a zero-progress tracker for a script of the given length.
func New(total int) Progress {
	if total < 0 {
		total = 0
	}
	return Progress{Current: 0, Total: total}
}

// WithCurrent returns a copy with Current clamped into [0, Total].
func (p Progress) WithCurrent(current int) Progress {
	if current < 0 {
		current = 0
	}
	if current > p.Total {
		current = p.Total
	}
	p.Current = current
	return p
}

// Advance returns a copy with Current incremented, capped at Total.
func (p Progress) Advance() Progress {
	return p.WithCurrent(p.Current + 1)
}

// Percent derives the display percentage, rounded down. An empty script
// reports 0 rather than dividing by zero.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return p.Current * 100 / p.Total
}

// Done reports whether every scripted question has been answered.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Current >= p.Total
}
