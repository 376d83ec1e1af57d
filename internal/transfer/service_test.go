package transfer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/payflow-sz/payflow/internal/ledger"
)

func newTestEngine(t *testing.T) (*Service, ledger.Store) {
	t.Helper()
	store := ledger.NewInMemory()
	return NewService(store, nil), store
}

func createAccount(t *testing.T, store ledger.Store, id string, bal int64) {
	t.Helper()
	require.NoError(t, store.CreateAccount(context.Background(), ledger.Account{ID: id, OwnerID: "owner-" + id}))
	ledger.SeedBalance(store, id, decimal.NewFromInt(bal))
}

func TestTransferRoundTrip(t *testing.T) {
	svc, store := newTestEngine(t)
	ctx := context.Background()
	createAccount(t, store, "acct:a", 100)
	createAccount(t, store, "acct:b", 0)

	_, err := svc.TopUp(ctx, "acct:a", decimal.NewFromInt(50), "topup-1", nil)
	require.NoError(t, err)

	acctA, err := store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acctA.Balance.Equal(decimal.NewFromInt(150)), "balance after top-up: %s", acctA.Balance)

	rec, err := svc.Transfer(ctx, Input{
		PayerID:        "acct:a",
		ReceiverID:     "acct:b",
		Amount:         decimal.NewFromInt(30),
		Kind:           ledger.KindTransfer,
		Description:    "lunch",
		IdempotencyKey: "transfer-1",
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCompleted, rec.Status)

	acctA, err = store.Account(ctx, "acct:a")
	require.NoError(t, err)
	acctB, err := store.Account(ctx, "acct:b")
	require.NoError(t, err)
	require.True(t, acctA.Balance.Equal(decimal.NewFromInt(120)), "payer balance: %s", acctA.Balance)
	require.True(t, acctB.Balance.Equal(decimal.NewFromInt(30)), "receiver balance: %s", acctB.Balance)
}

func TestTransferInsufficientFundsLeavesNoRecord(t *testing.T) {
	svc, store := newTestEngine(t)
	ctx := context.Background()
	createAccount(t, store, "acct:a", 20)
	createAccount(t, store, "acct:b", 0)

	_, err := svc.Transfer(ctx, Input{
		PayerID:    "acct:a",
		ReceiverID: "acct:b",
		Amount:     decimal.NewFromInt(30),
		Kind:       ledger.KindTransfer,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	acctA, err := store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acctA.Balance.Equal(decimal.NewFromInt(20)))

	recs, err := store.Transactions(ctx, "acct:a", ledger.FilterAll, "")
	require.NoError(t, err)
	require.Empty(t, recs, "no record may exist for a failed transfer")
}

func TestTransferDuplicateIdempotencyKey(t *testing.T) {
	svc, store := newTestEngine(t)
	ctx := context.Background()
	createAccount(t, store, "acct:a", 100)
	createAccount(t, store, "acct:b", 0)

	in := Input{
		PayerID:        "acct:a",
		ReceiverID:     "acct:b",
		Amount:         decimal.NewFromInt(10),
		Kind:           ledger.KindTransfer,
		IdempotencyKey: "dup",
	}
	_, err := svc.Transfer(ctx, in)
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, in)
	require.ErrorIs(t, err, ledger.ErrDuplicateOperation)

	acctA, err := store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acctA.Balance.Equal(decimal.NewFromInt(90)), "duplicate must not debit twice: %s", acctA.Balance)
}

func TestTransferRejectsSelfTransfer(t *testing.T) {
	svc, store := newTestEngine(t)
	ctx := context.Background()
	createAccount(t, store, "acct:a", 100)

	for _, kind := range []ledger.Kind{ledger.KindTransfer, ledger.KindInvoice, ledger.KindProduct} {
		_, err := svc.Transfer(ctx, Input{
			PayerID:    "acct:a",
			ReceiverID: "acct:a",
			Amount:     decimal.NewFromInt(30),
			Kind:       kind,
		})
		require.ErrorIs(t, err, ErrSelfTransfer, "kind %s", kind)
	}

	acct, err := store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acct.Balance.Equal(decimal.NewFromInt(100)), "self-transfer must conserve balance, got %s", acct.Balance)

	recs, err := store.Transactions(ctx, "acct:a", ledger.FilterAll, "")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestTransferValidation(t *testing.T) {
	svc, store := newTestEngine(t)
	ctx := context.Background()
	createAccount(t, store, "acct:a", 100)

	_, err := svc.Transfer(ctx, Input{PayerID: "acct:a", ReceiverID: "acct:b", Amount: decimal.Zero, Kind: ledger.KindTransfer})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.Transfer(ctx, Input{PayerID: "acct:a", ReceiverID: "acct:b", Amount: decimal.NewFromInt(-5), Kind: ledger.KindTransfer})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.Transfer(ctx, Input{PayerID: "acct:a", ReceiverID: "acct:b", Amount: decimal.NewFromInt(5), Kind: ledger.Kind("bogus")})
	require.Error(t, err)

	_, err = svc.Transfer(ctx, Input{PayerID: "acct:missing", ReceiverID: "acct:a", Amount: decimal.NewFromInt(5), Kind: ledger.KindTransfer})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = svc.Transfer(ctx, Input{PayerID: "acct:a", ReceiverID: "acct:missing", Amount: decimal.NewFromInt(5), Kind: ledger.KindTransfer})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestTopUpRecordShape(t *testing.T) {
	svc, store := newTestEngine(t)
	ctx := context.Background()
	createAccount(t, store, "acct:a", 0)

	rec, err := svc.TopUp(ctx, "acct:a", decimal.NewFromInt(75), "topup-key", map[string]string{"channel": "test"})
	require.NoError(t, err)
	require.Equal(t, ledger.KindTopUp, rec.Kind)
	require.Equal(t, "acct:a", rec.PayerID)
	require.Equal(t, "acct:a", rec.ReceiverID)
	require.Equal(t, "Wallet Top-up - SZL 75.00", rec.Description)
	require.Equal(t, "topup-key", rec.IdempotencyKey())
	require.Equal(t, "test", rec.Metadata["channel"])

	recs, err := store.Transactions(ctx, "acct:a", ledger.FilterTopUp, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}
