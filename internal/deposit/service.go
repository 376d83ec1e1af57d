package deposit

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

// ErrAlreadyProcessed indicates the deposit reference already reached a
// terminal state; verified and rejected references never transition again.
var ErrAlreadyProcessed = errors.New("deposit reference already processed")

// regeneration budget for reference-number collisions
const maxReferenceAttempts = 5

// Instructions tells the user where to send the out-of-band payment.
type Instructions struct {
	BankName          string
	BankAccountNumber string
	BankAccountName   string
	BranchCode        string
	SwiftCode         string
	MoMoPhone         string
	MoMoAccountName   string
}

// Service runs the manual-deposit reconciliation workflow: it issues
// reference codes for out-of-band payments and applies or rejects the
// linked top-up once a verifier has checked the money arrived.
type Service struct {
	store        ledger.Store
	instructions Instructions
	notifier     notification.Notifier
}

// NewService constructs the reconciliation workflow.
func NewService(store ledger.Store, instructions Instructions, notifier notification.Notifier) *Service {
	return &Service{store: store, instructions: instructions, notifier: notifier}
}

// CreateResult is returned to the caller for out-of-band presentation.
type CreateResult struct {
	Reference    ledger.DepositReference
	Instructions Instructions
}

// CreateRequest issues a pending deposit reference plus its linked pending
// top-up transaction in one atomic unit. Reference numbers are regenerated on
// collision up to a bounded attempt count.
func (s *Service) CreateRequest(ctx context.Context, accountID string, amount decimal.Decimal, method ledger.Method) (CreateResult, error) {
	if !amount.IsPositive() {
		return CreateResult{}, ledger.ErrInvalidAmount
	}
	if method != ledger.MethodBankTransfer && method != ledger.MethodMoMoSend {
		return CreateResult{}, fmt.Errorf("unknown deposit method %q", method)
	}

	var ref ledger.DepositReference
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		number := NewReferenceNumber(method)
		now := time.Now().UTC()

		ref = ledger.DepositReference{
			ID:              uuid.NewString(),
			ReferenceNumber: number,
			AccountID:       accountID,
			Amount:          amount,
			Method:          method,
			Status:          ledger.ReferencePending,
			TransactionID:   uuid.NewString(),
			CreatedAt:       now,
		}

		rec := ledger.TransactionRecord{
			ID:          ref.TransactionID,
			PayerID:     accountID,
			ReceiverID:  accountID,
			Amount:      amount,
			Kind:        ledger.KindTopUp,
			Description: fmt.Sprintf("Manual Deposit - Ref: %s", number),
			Status:      ledger.StatusPending,
			CreatedAt:   now,
			Metadata: map[string]string{
				ledger.MetaReferenceNumber:  number,
				ledger.MetaPaymentMethod:    string(method),
				ledger.MetaDepositRequestID: ref.ID,
			},
		}

		err := s.store.Apply(ctx, func(u ledger.Unit) error {
			if _, err := u.Account(accountID); err != nil {
				return err
			}
			if err := u.InsertReference(ref); err != nil {
				return err
			}
			return u.InsertTransaction(rec)
		})
		if errors.Is(err, ledger.ErrReferenceExists) {
			continue
		}
		if err != nil {
			return CreateResult{}, err
		}
		return CreateResult{Reference: ref, Instructions: s.instructions}, nil
	}

	return CreateResult{}, ledger.ErrReferenceExists
}

// Verify applies the terminal transition for a pending reference.
//
// Approval credits the account, marks the reference verified and the linked
// transaction completed, all in one atomic unit: if the credit cannot be
// applied the whole unit fails and the reference stays pending (retryable).
// Rejection flips both records with no balance change.
func (s *Service) Verify(ctx context.Context, referenceNumber, verifierID string, approve bool) (ledger.DepositReference, error) {
	var verified ledger.DepositReference

	err := s.store.Apply(ctx, func(u ledger.Unit) error {
		ref, found, err := u.ReferenceByNumber(referenceNumber)
		if err != nil {
			return err
		}
		if !found {
			return ledger.ErrReferenceNotFound
		}
		if ref.Status != ledger.ReferencePending {
			return ErrAlreadyProcessed
		}

		ref.VerifiedAt = time.Now().UTC()
		ref.VerifiedBy = verifierID

		if !approve {
			ref.Status = ledger.ReferenceRejected
			if err := u.UpdateReference(ref); err != nil {
				return err
			}
			if err := u.UpdateTransactionStatus(ref.TransactionID, ledger.StatusFailed); err != nil {
				return err
			}
			verified = ref
			return nil
		}

		acct, err := u.Account(ref.AccountID)
		if err != nil {
			return err
		}
		if err := u.UpdateBalance(acct.ID, acct.Balance.Add(ref.Amount)); err != nil {
			return err
		}

		ref.Status = ledger.ReferenceVerified
		if err := u.UpdateReference(ref); err != nil {
			return err
		}
		if err := u.UpdateTransactionStatus(ref.TransactionID, ledger.StatusCompleted); err != nil {
			return err
		}
		verified = ref
		return nil
	})
	if err != nil {
		return ledger.DepositReference{}, err
	}

	if s.notifier != nil {
		kind := notification.KindDepositVerified
		body := fmt.Sprintf("Your deposit %s of SZL %s was approved", referenceNumber, verified.Amount.StringFixed(2))
		if !approve {
			kind = notification.KindDepositRejected
			body = fmt.Sprintf("Your deposit %s was rejected", referenceNumber)
		}
		_ = s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: verified.AccountID, Body: body})
	}

	return verified, nil
}

// Reference looks up a deposit reference by its number.
func (s *Service) Reference(ctx context.Context, referenceNumber string) (ledger.DepositReference, error) {
	return s.store.ReferenceByNumber(ctx, referenceNumber)
}
