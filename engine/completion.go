package engine

// =============================================================================
// COMPLETION - Period status derivation
// =============================================================================

// Completion is the recomputed task aggregate for one period. It is always
// derived by counting the period's current task instances, never by
// incrementing a stored counter, so concurrent edits and deletions converge
// to the same aggregate regardless of commit order.
type Completion struct {
	Total     int
	Completed int
}

// Status derives the period status from the aggregate.
func (c Completion) Status() PeriodStatus {
	switch {
	case c.Total > 0 && c.Completed == c.Total:
		return PeriodCompleted
	case c.Completed > 0:
		return PeriodInProgress
	default:
		return PeriodPending
	}
}

// AllDone reports whether every task is completed (and there is at least one).
func (c Completion) AllDone() bool { return c.Status() == PeriodCompleted }
