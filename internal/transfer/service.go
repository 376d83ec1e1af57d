package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payflow-sz/payflow/internal/ledger"
	"github.com/payflow-sz/payflow/internal/notification"
)

// ErrSelfTransfer occurs when payer and receiver are the same account. Only
// top-ups may credit their own payer.
var ErrSelfTransfer = errors.New("payer and receiver must differ")

// Service executes balance-changing operations as single atomic units against
// the ledger store. All mutation of account balances goes through here.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
}

// NewService constructs a transfer engine.
func NewService(store ledger.Store, notifier notification.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Input captures the data needed to move funds.
type Input struct {
	PayerID        string
	ReceiverID     string
	Amount         decimal.Decimal
	Kind           ledger.Kind
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Transfer validates and applies a balance-changing operation. The debit,
// credit and transaction-record insert commit together; on any failure no
// partial state is persisted and no record is created.
//
// Validation order: amount, payer existence, then (for non-topup kinds)
// receiver existence and payer funds.
func (s *Service) Transfer(ctx context.Context, in Input) (ledger.TransactionRecord, error) {
	if !in.Amount.IsPositive() {
		return ledger.TransactionRecord{}, ledger.ErrInvalidAmount
	}
	if !in.Kind.Valid() {
		return ledger.TransactionRecord{}, fmt.Errorf("unknown transaction kind %q", in.Kind)
	}

	receiverID := in.ReceiverID
	if in.Kind == ledger.KindTopUp {
		receiverID = in.PayerID
	} else if in.PayerID == in.ReceiverID {
		// The debit-then-credit below reads both rows up front; crediting the
		// payer's own stale read would overwrite the debit and mint money.
		return ledger.TransactionRecord{}, ErrSelfTransfer
	}

	metadata := make(map[string]string, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	if in.IdempotencyKey != "" {
		metadata[ledger.MetaIdempotencyKey] = in.IdempotencyKey
	}

	rec := ledger.TransactionRecord{
		ID:          uuid.NewString(),
		PayerID:     in.PayerID,
		ReceiverID:  receiverID,
		Amount:      in.Amount,
		Kind:        in.Kind,
		Description: in.Description,
		Status:      ledger.StatusCompleted,
		CreatedAt:   time.Now().UTC(),
		Metadata:    metadata,
	}

	err := s.store.Apply(ctx, func(u ledger.Unit) error {
		if in.IdempotencyKey != "" {
			if _, found, err := u.TransactionByIdempotencyKey(in.IdempotencyKey); err != nil {
				return err
			} else if found {
				return ledger.ErrDuplicateOperation
			}
		}

		payer, err := u.Account(in.PayerID)
		if err != nil {
			return err
		}

		if in.Kind == ledger.KindTopUp {
			if err := u.UpdateBalance(payer.ID, payer.Balance.Add(in.Amount)); err != nil {
				return err
			}
			return u.InsertTransaction(rec)
		}

		receiver, err := u.Account(receiverID)
		if err != nil {
			return err
		}
		if payer.Balance.LessThan(in.Amount) {
			return ledger.ErrInsufficientFunds
		}

		if err := u.UpdateBalance(payer.ID, payer.Balance.Sub(in.Amount)); err != nil {
			return err
		}
		if err := u.UpdateBalance(receiver.ID, receiver.Balance.Add(in.Amount)); err != nil {
			return err
		}
		return u.InsertTransaction(rec)
	})
	if err != nil {
		return ledger.TransactionRecord{}, err
	}

	if s.notifier != nil && in.Kind != ledger.KindTopUp {
		// Best effort; a failed notification never rolls the commit back.
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: receiverID,
			Body:        fmt.Sprintf("You received SZL %s from account %s", in.Amount.StringFixed(2), in.PayerID),
		})
	}

	return rec, nil
}

// TopUp credits an account from the external top-up source. The description
// mirrors the wallet top-up wording shown to users.
func (s *Service) TopUp(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyKey string, metadata map[string]string) (ledger.TransactionRecord, error) {
	return s.Transfer(ctx, Input{
		PayerID:        accountID,
		ReceiverID:     accountID,
		Amount:         amount,
		Kind:           ledger.KindTopUp,
		Description:    fmt.Sprintf("Wallet Top-up - SZL %s", amount.StringFixed(2)),
		Metadata:       metadata,
		IdempotencyKey: idempotencyKey,
	})
}
