package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites the balance of an account when
// using the in-memory store. No commit event is emitted.
func SeedBalance(s Store, id string, amount decimal.Decimal) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		acct, exists := mem.accounts[id]
		if !exists {
			return
		}
		acct.Balance = amount
		acct.Version++
		mem.accounts[id] = acct
	}
}
