package scheduler

// FailureBudget counts consecutive fetch/analyze failures. It is owned and
// mutated by a single Scheduler goroutine.
type FailureBudget struct {
	consecutive int
	max         int
}

func NewFailureBudget(max int) FailureBudget {
	if max <= 0 {
		max = DefaultMaxFailures
	}
	return FailureBudget{max: max}
}

// Fail records a failure and reports whether the budget is now exhausted.
func (b *FailureBudget) Fail() bool {
	b.consecutive++
	return b.Exhausted()
}

func (b *FailureBudget) Reset() { b.consecutive = 0 }

func (b *FailureBudget) Count() int { return b.consecutive }

func (b *FailureBudget) Max() int { return b.max }

func (b *FailureBudget) Exhausted() bool { return b.consecutive >= b.max }
