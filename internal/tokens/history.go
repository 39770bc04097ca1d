package tokens

import (
	"strings"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
)

// perTurnOverhead approximates the role prefix and separator of one turn.
const perTurnOverhead = 4

// HistoryBudget selects the most recent turns that fit a token budget.
type HistoryBudget struct {
	counter  *Counter
	maxTurns int
	budget   int
}

// NewHistoryBudget creates a budget keeping at most maxTurns turns and
// budget tokens. A non-positive budget disables the token limit.
func NewHistoryBudget(counter *Counter, maxTurns, budget int) *HistoryBudget {
	return &HistoryBudget{counter: counter, maxTurns: maxTurns, budget: budget}
}

// Select returns the newest turns that fit, oldest first.
func (b *HistoryBudget) Select(history []domain.Turn) []domain.Turn {
	start := 0
	if b.maxTurns > 0 && len(history) > b.maxTurns {
		start = len(history) - b.maxTurns
	}
	recent := history[start:]
	if b.budget <= 0 {
		return recent
	}

	used := 0
	keep := len(recent)
	for i := len(recent) - 1; i >= 0; i-- {
		cost := b.counter.Count(recent[i].Content) + perTurnOverhead
		if used+cost > b.budget {
			break
		}
		used += cost
		keep = i
	}
	if used == 0 {
		return nil
	}
	return recent[keep:]
}

// Format renders turns as "role: content" lines.
func Format(turns []domain.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Role+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}
