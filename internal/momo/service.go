package momo

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/payflow-sz/payflow/internal/ledger"
	"github.com/payflow-sz/payflow/internal/limits"
	"github.com/payflow-sz/payflow/internal/transfer"
)

// Service coordinates mobile-money top-ups: the external initiator collects
// the money, then the transfer engine credits the wallet. A declined or
// failed external call surfaces with its reason and leaves the ledger
// untouched.
type Service struct {
	initiator Initiator
	engine    *transfer.Service
	guard     *limits.Guard
}

// NewService builds the mobile-money top-up flow.
func NewService(initiator Initiator, engine *transfer.Service, guard *limits.Guard) *Service {
	if initiator == nil {
		initiator = StaticInitiator{}
	}
	return &Service{initiator: initiator, engine: engine, guard: guard}
}

// TopUpInput captures a mobile-money top-up request.
type TopUpInput struct {
	AccountID      string
	PhoneNumber    string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// TopUpResult pairs the ledger record with the external reference.
type TopUpResult struct {
	Record        ledger.TransactionRecord
	MoMoReference string
}

// TopUp collects amount from the phone via the initiator and credits the
// account. The ledger commit is the single source of truth: an external
// failure prevents the credit entirely, and a post-commit failure is never
// rolled back.
func (s *Service) TopUp(ctx context.Context, in TopUpInput) (TopUpResult, error) {
	if !in.Amount.IsPositive() {
		return TopUpResult{}, ledger.ErrInvalidAmount
	}
	if !ValidPhone(in.PhoneNumber) {
		return TopUpResult{}, ErrInvalidPhone
	}
	if s.guard != nil {
		if err := s.guard.CheckTopUp(in.Amount); err != nil {
			return TopUpResult{}, err
		}
	}

	decision, err := s.initiator.RequestToPay(ctx, PaymentRequest{
		PhoneNumber: in.PhoneNumber,
		Amount:      in.Amount,
		Description: fmt.Sprintf("PayFlow top-up SZL %s", in.Amount.StringFixed(2)),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidPhone) {
			return TopUpResult{}, err
		}
		return TopUpResult{}, fmt.Errorf("%w: %w", ErrExternalService, err)
	}

	rec, err := s.engine.TopUp(ctx, in.AccountID, in.Amount, in.IdempotencyKey, map[string]string{
		ledger.MetaPaymentMethod: "momo",
		ledger.MetaPhoneNumber:   in.PhoneNumber,
		ledger.MetaMoMoReference: decision.Reference,
	})
	if err != nil {
		return TopUpResult{}, err
	}

	return TopUpResult{Record: rec, MoMoReference: decision.Reference}, nil
}
