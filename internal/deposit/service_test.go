package deposit

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/payflow-sz/payflow/internal/ledger"
)

func newTestService(t *testing.T) (*Service, ledger.Store) {
	t.Helper()
	store := ledger.NewInMemory()
	svc := NewService(store, Instructions{BankName: "Test Bank", MoMoPhone: "+268 7600 0000"}, nil)
	require.NoError(t, store.CreateAccount(context.Background(), ledger.Account{ID: "acct:a", OwnerID: "owner-a"}))
	return svc, store
}

func TestCreateRequestIssuesPendingReference(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateRequest(ctx, "acct:a", decimal.NewFromInt(500), ledger.MethodBankTransfer)
	require.NoError(t, err)
	require.Equal(t, ledger.ReferencePending, res.Reference.Status)
	require.Equal(t, "acct:a", res.Reference.AccountID)
	require.Equal(t, "Test Bank", res.Instructions.BankName)

	// No balance movement until verification.
	acct, err := store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acct.Balance.IsZero())

	// Linked transaction exists and is pending.
	recs, err := store.Transactions(ctx, "acct:a", ledger.FilterTopUp, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, ledger.StatusPending, recs[0].Status)
	require.Equal(t, res.Reference.TransactionID, recs[0].ID)
	require.Equal(t, res.Reference.ReferenceNumber, recs[0].Metadata[ledger.MetaReferenceNumber])
}

func TestCreateRequestValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRequest(ctx, "acct:a", decimal.Zero, ledger.MethodBankTransfer)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.CreateRequest(ctx, "acct:a", decimal.NewFromInt(100), ledger.Method("cash"))
	require.Error(t, err)

	_, err = svc.CreateRequest(ctx, "acct:missing", decimal.NewFromInt(100), ledger.MethodBankTransfer)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestVerifyApproveCreditsOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateRequest(ctx, "acct:a", decimal.NewFromInt(750), ledger.MethodMoMoSend)
	require.NoError(t, err)

	ref, err := svc.Verify(ctx, res.Reference.ReferenceNumber, "verifier-1", true)
	require.NoError(t, err)
	require.Equal(t, ledger.ReferenceVerified, ref.Status)
	require.Equal(t, "verifier-1", ref.VerifiedBy)
	require.False(t, ref.VerifiedAt.IsZero())

	acct, err := store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acct.Balance.Equal(decimal.NewFromInt(750)), "balance: %s", acct.Balance)

	recs, err := store.Transactions(ctx, "acct:a", ledger.FilterTopUp, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, ledger.StatusCompleted, recs[0].Status)

	// A second verification in either direction must not run again.
	_, err = svc.Verify(ctx, res.Reference.ReferenceNumber, "verifier-2", true)
	require.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = svc.Verify(ctx, res.Reference.ReferenceNumber, "verifier-2", false)
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	acct, err = store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acct.Balance.Equal(decimal.NewFromInt(750)), "balance credited twice: %s", acct.Balance)
}

func TestVerifyRejectLeavesBalanceUntouched(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateRequest(ctx, "acct:a", decimal.NewFromInt(300), ledger.MethodBankTransfer)
	require.NoError(t, err)

	ref, err := svc.Verify(ctx, res.Reference.ReferenceNumber, "verifier-1", false)
	require.NoError(t, err)
	require.Equal(t, ledger.ReferenceRejected, ref.Status)

	acct, err := store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acct.Balance.IsZero())

	recs, err := store.Transactions(ctx, "acct:a", ledger.FilterTopUp, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, ledger.StatusFailed, recs[0].Status)

	_, err = svc.Verify(ctx, res.Reference.ReferenceNumber, "verifier-1", true)
	require.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestVerifyUnknownReference(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Verify(context.Background(), "BT00000000XXXX", "verifier-1", true)
	require.ErrorIs(t, err, ledger.ErrReferenceNotFound)
}

func TestReferenceLookup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateRequest(ctx, "acct:a", decimal.NewFromInt(120), ledger.MethodBankTransfer)
	require.NoError(t, err)

	got, err := svc.Reference(ctx, res.Reference.ReferenceNumber)
	require.NoError(t, err)
	require.Equal(t, res.Reference.ID, got.ID)

	_, err = svc.Reference(ctx, "MM99999999ZZZZ")
	require.ErrorIs(t, err, ledger.ErrReferenceNotFound)
}
