package chat

import "sync"

// CostLedger tracks the running cost total per conversation. Totals only
// grow; the persisted message costs remain the source of truth and seed the
// ledger on first access after a restart.
type CostLedger struct {
	mu     sync.Mutex
	totals map[string]float64
	seeded map[string]bool
}

func NewCostLedger() *CostLedger {
	return &CostLedger{
		totals: make(map[string]float64),
		seeded: make(map[string]bool),
	}
}

// Seed initializes a conversation's total from persisted state. Later calls
// for the same conversation are no-ops, so in-memory additions are never
// clobbered.
func (l *CostLedger) Seed(conversationUID string, total float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seeded[conversationUID] {
		return
	}
	l.seeded[conversationUID] = true
	if total > l.totals[conversationUID] {
		l.totals[conversationUID] = total
	}
}

// Seeded reports whether the conversation total was initialized.
func (l *CostLedger) Seeded(conversationUID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seeded[conversationUID]
}

// Add accumulates cost and returns the new total. Negative costs are ignored.
func (l *CostLedger) Add(conversationUID string, cost float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cost > 0 {
		l.totals[conversationUID] += cost
	}
	return l.totals[conversationUID]
}

// Total returns the current running total.
func (l *CostLedger) Total(conversationUID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[conversationUID]
}
