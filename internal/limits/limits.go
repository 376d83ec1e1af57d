package limits

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payflow-sz/payflow/internal/ledger"
)

var (
	// ErrBelowMinimum occurs when an amount is under the configured floor.
	ErrBelowMinimum = errors.New("amount below minimum")

	// ErrAboveMaximum occurs when an amount exceeds the configured ceiling.
	ErrAboveMaximum = errors.New("amount above maximum")

	// ErrDailyLimitExceeded occurs when the aggregate of today's outgoing
	// transactions plus the requested amount exceeds the daily cap.
	ErrDailyLimitExceeded = errors.New("daily transaction limit exceeded")
)

// Limits holds the externally supplied transaction limits. They are enforced
// at the boundary before the transfer engine is invoked, never inside it.
type Limits struct {
	MinTopUp              decimal.Decimal
	MaxTopUp              decimal.Decimal
	MinManualDeposit      decimal.Decimal
	MaxManualDeposit      decimal.Decimal
	DailyTransactionLimit decimal.Decimal
}

// Guard checks requested amounts against the configured limits.
type Guard struct {
	limits Limits
	store  ledger.Store
	now    func() time.Time
}

// NewGuard builds a limit guard backed by the ledger store for daily sums.
func NewGuard(limits Limits, store ledger.Store) *Guard {
	return &Guard{limits: limits, store: store, now: time.Now}
}

// CheckTopUp validates a top-up amount against the top-up band.
func (g *Guard) CheckTopUp(amount decimal.Decimal) error {
	return checkBand(amount, g.limits.MinTopUp, g.limits.MaxTopUp)
}

// CheckManualDeposit validates a manual-deposit amount against its band.
func (g *Guard) CheckManualDeposit(amount decimal.Decimal) error {
	return checkBand(amount, g.limits.MinManualDeposit, g.limits.MaxManualDeposit)
}

// CheckDailySpend validates that the payer's completed outgoing transactions
// since midnight UTC plus amount stay within the daily aggregate limit.
func (g *Guard) CheckDailySpend(ctx context.Context, payerID string, amount decimal.Decimal) error {
	if g.limits.DailyTransactionLimit.IsZero() {
		return nil
	}

	midnight := g.now().UTC().Truncate(24 * time.Hour)
	spent, err := g.store.SumCompletedSince(ctx, payerID, midnight)
	if err != nil {
		return err
	}
	if spent.Add(amount).GreaterThan(g.limits.DailyTransactionLimit) {
		return ErrDailyLimitExceeded
	}
	return nil
}

func checkBand(amount, lo, hi decimal.Decimal) error {
	if !lo.IsZero() && amount.LessThan(lo) {
		return ErrBelowMinimum
	}
	if !hi.IsZero() && amount.GreaterThan(hi) {
		return ErrAboveMaximum
	}
	return nil
}
