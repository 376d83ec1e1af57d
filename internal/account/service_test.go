package account

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/payflow-sz/payflow/internal/identity"
	"github.com/payflow-sz/payflow/internal/ledger"
)

func newTestService(t *testing.T) (*Service, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	owner, err := identity.NewService(repo).Register(context.Background(), identity.Registration{
		Phone: "+26876123456",
		PIN:   "1234",
	})
	require.NoError(t, err)
	return NewService(repo, ledger.NewInMemory()), owner
}

func TestCreateAccount(t *testing.T) {
	svc, owner := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Create(ctx, CreateInput{OwnerID: owner.ID, InitialBalance: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.NotEmpty(t, acct.ID)
	require.Equal(t, owner.ID, acct.OwnerID)
	require.True(t, acct.Balance.Equal(decimal.NewFromInt(100)))
	require.EqualValues(t, 1, acct.Version)

	got, err := svc.Get(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, acct.ID, got.ID)
}

func TestCreateAccountValidation(t *testing.T) {
	svc, owner := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{OwnerID: owner.ID, InitialBalance: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.Create(ctx, CreateInput{OwnerID: "missing-owner"})
	require.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestTransactionsRequireAccount(t *testing.T) {
	svc, owner := newTestService(t)
	ctx := context.Background()

	_, err := svc.Transactions(ctx, "acct:missing", ledger.FilterAll, "")
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	acct, err := svc.Create(ctx, CreateInput{OwnerID: owner.ID})
	require.NoError(t, err)

	recs, err := svc.Transactions(ctx, acct.ID, ledger.FilterAll, "")
	require.NoError(t, err)
	require.Empty(t, recs)
}
