package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payflow-sz/payflow/internal/identity"
	"github.com/payflow-sz/payflow/internal/ledger"
)

// Service exposes account provisioning and read operations. Balances live in
// the ledger store and are mutated only through the transfer engine.
type Service struct {
	owners identity.Repository
	store  ledger.Store
}

// NewService builds an account service.
func NewService(owners identity.Repository, store ledger.Store) *Service {
	return &Service{owners: owners, store: store}
}

// CreateInput captures data required to open an account.
type CreateInput struct {
	OwnerID        string
	InitialBalance decimal.Decimal
}

// Create provisions an account for a registered owner. The initial balance
// defaults to zero and may not be negative.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Account, error) {
	if input.InitialBalance.IsNegative() {
		return ledger.Account{}, ledger.ErrInvalidAmount
	}
	if _, err := s.owners.FindByID(ctx, input.OwnerID); err != nil {
		return ledger.Account{}, fmt.Errorf("owner lookup: %w", err)
	}

	acct := ledger.Account{
		ID:        uuid.NewString(),
		OwnerID:   input.OwnerID,
		Balance:   input.InitialBalance,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return ledger.Account{}, err
	}

	return s.store.Account(ctx, acct.ID)
}

// Get retrieves an account snapshot.
func (s *Service) Get(ctx context.Context, id string) (ledger.Account, error) {
	return s.store.Account(ctx, id)
}

// Transactions lists the account's transactions, newest first, split by the
// payer/receiver identity comparison and optionally narrowed by search text.
func (s *Service) Transactions(ctx context.Context, id string, filter ledger.Filter, search string) ([]ledger.TransactionRecord, error) {
	if _, err := s.store.Account(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Transactions(ctx, id, filter, search)
}
