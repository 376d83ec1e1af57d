package momo

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/payflow-sz/payflow/internal/ledger"
	"github.com/payflow-sz/payflow/internal/transfer"
)

type failingInitiator struct{ err error }

func (f failingInitiator) RequestToPay(context.Context, PaymentRequest) (PaymentDecision, error) {
	return PaymentDecision{}, f.err
}

func newTestService(t *testing.T, initiator Initiator) (*Service, ledger.Store) {
	t.Helper()
	store := ledger.NewInMemory()
	require.NoError(t, store.CreateAccount(context.Background(), ledger.Account{ID: "acct:a"}))
	engine := transfer.NewService(store, nil)
	return NewService(initiator, engine, nil), store
}

func TestValidPhone(t *testing.T) {
	valid := []string{"76123456", "66123456", "+26876123456", "26876123456", "076123456", "+268 7612 3456"}
	for _, p := range valid {
		require.True(t, ValidPhone(p), "expected %q to be valid", p)
	}
	invalid := []string{"", "12345678", "7612345", "761234567", "+27876123456", "8612345x"}
	for _, p := range invalid {
		require.False(t, ValidPhone(p), "expected %q to be invalid", p)
	}
}

func TestMoMoTopUpCreditsAccount(t *testing.T) {
	svc, store := newTestService(t, StaticInitiator{})
	ctx := context.Background()

	res, err := svc.TopUp(ctx, TopUpInput{
		AccountID:      "acct:a",
		PhoneNumber:    "76123456",
		Amount:         decimal.NewFromInt(200),
		IdempotencyKey: "momo-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.MoMoReference)
	require.Equal(t, "momo", res.Record.Metadata[ledger.MetaPaymentMethod])
	require.Equal(t, "76123456", res.Record.Metadata[ledger.MetaPhoneNumber])

	acct, err := store.Account(ctx, "acct:a")
	require.NoError(t, err)
	require.True(t, acct.Balance.Equal(decimal.NewFromInt(200)))
}

func TestMoMoTopUpInvalidPhone(t *testing.T) {
	svc, store := newTestService(t, StaticInitiator{})

	_, err := svc.TopUp(context.Background(), TopUpInput{
		AccountID:   "acct:a",
		PhoneNumber: "12345",
		Amount:      decimal.NewFromInt(200),
	})
	require.ErrorIs(t, err, ErrInvalidPhone)

	acct, err := store.Account(context.Background(), "acct:a")
	require.NoError(t, err)
	require.True(t, acct.Balance.IsZero())
}

func TestMoMoTopUpExternalFailureLeavesLedgerUntouched(t *testing.T) {
	cause := errors.New("network timeout")
	svc, store := newTestService(t, failingInitiator{err: cause})

	_, err := svc.TopUp(context.Background(), TopUpInput{
		AccountID:   "acct:a",
		PhoneNumber: "76123456",
		Amount:      decimal.NewFromInt(200),
	})
	require.ErrorIs(t, err, ErrExternalService)
	require.ErrorIs(t, err, cause)

	acct, err := store.Account(context.Background(), "acct:a")
	require.NoError(t, err)
	require.True(t, acct.Balance.IsZero())

	recs, err := store.Transactions(context.Background(), "acct:a", ledger.FilterAll, "")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestMoMoTopUpDuplicateKey(t *testing.T) {
	svc, _ := newTestService(t, StaticInitiator{})
	ctx := context.Background()

	in := TopUpInput{AccountID: "acct:a", PhoneNumber: "76123456", Amount: decimal.NewFromInt(50), IdempotencyKey: "dup"}
	_, err := svc.TopUp(ctx, in)
	require.NoError(t, err)

	_, err = svc.TopUp(ctx, in)
	require.ErrorIs(t, err, ledger.ErrDuplicateOperation)
}
