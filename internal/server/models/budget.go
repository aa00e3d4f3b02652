package models

// TokenBudget is a user's extraction allowance. A zero Limit is unlimited.
type TokenBudget struct {
	UserID string
	Limit  int64
	Used   int64
}

// Remaining returns the tokens left, never negative. Unlimited budgets
// report -1.
func (b TokenBudget) Remaining() int64 {
	if b.Limit <= 0 {
		return -1
	}
	if b.Used >= b.Limit {
		return 0
	}
	return b.Limit - b.Used
}

// Exhausted reports whether uploads must be refused.
func (b TokenBudget) Exhausted() bool {
	return b.Limit > 0 && b.Used >= b.Limit
}
