package feed

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/payflow-sz/payflow/internal/ledger"
)

type snapshot struct {
	account ledger.Account
	txs     []ledger.TransactionRecord
}

func newTestFeed(t *testing.T) (*Feed, ledger.Store) {
	t.Helper()
	store := ledger.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger), store
}

func credit(t *testing.T, store ledger.Store, id string, amount int64, txID string) {
	t.Helper()
	err := store.Apply(context.Background(), func(u ledger.Unit) error {
		acct, err := u.Account(id)
		if err != nil {
			return err
		}
		if err := u.UpdateBalance(id, acct.Balance.Add(decimal.NewFromInt(amount))); err != nil {
			return err
		}
		return u.InsertTransaction(ledger.TransactionRecord{
			ID: txID, PayerID: id, ReceiverID: id,
			Amount: decimal.NewFromInt(amount), Kind: ledger.KindTopUp, Status: ledger.StatusCompleted,
		})
	})
	require.NoError(t, err)
}

func TestFeedDeliversSnapshotAfterCommit(t *testing.T) {
	f, store := newTestFeed(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, ledger.Account{ID: "acct:a"}))

	snaps := make(chan snapshot, 16)
	unsubscribe := f.Subscribe("acct:a", func(acct ledger.Account, txs []ledger.TransactionRecord) {
		snaps <- snapshot{account: acct, txs: txs}
	})
	defer unsubscribe()

	credit(t, store, "acct:a", 40, "tx-1")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if snap.account.Balance.Equal(decimal.NewFromInt(40)) && len(snap.txs) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("snapshot with credited balance never arrived")
		}
	}
}

func TestFeedCoalescesButConverges(t *testing.T) {
	f, store := newTestFeed(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, ledger.Account{ID: "acct:a"}))

	snaps := make(chan snapshot, 64)
	unsubscribe := f.Subscribe("acct:a", func(acct ledger.Account, txs []ledger.TransactionRecord) {
		snaps <- snapshot{account: acct, txs: txs}
	})
	defer unsubscribe()

	const n = 10
	for i := 0; i < n; i++ {
		credit(t, store, "acct:a", 10, "tx-"+string(rune('a'+i)))
	}

	// Intermediate snapshots may be skipped; the final state must arrive.
	deadline := time.After(2 * time.Second)
	var last decimal.Decimal
	for {
		select {
		case snap := <-snaps:
			require.True(t, snap.account.Balance.GreaterThanOrEqual(last), "balances went backwards: %s after %s", snap.account.Balance, last)
			last = snap.account.Balance
			if snap.account.Balance.Equal(decimal.NewFromInt(n * 10)) {
				return
			}
		case <-deadline:
			t.Fatalf("final snapshot never arrived, last balance %s", last)
		}
	}
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	f, store := newTestFeed(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, ledger.Account{ID: "acct:a"}))

	var calls atomic.Int64
	got := make(chan struct{}, 16)
	unsubscribe := f.Subscribe("acct:a", func(ledger.Account, []ledger.TransactionRecord) {
		calls.Add(1)
		select {
		case got <- struct{}{}:
		default:
		}
	})

	credit(t, store, "acct:a", 10, "tx-1")
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("first snapshot never arrived")
	}

	unsubscribe()
	seen := calls.Load()

	credit(t, store, "acct:a", 10, "tx-2")
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, seen, calls.Load(), "callback fired after unsubscribe")

	// Idempotent.
	unsubscribe()
}

func TestFeedIgnoresOtherAccounts(t *testing.T) {
	f, store := newTestFeed(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, ledger.Account{ID: "acct:a"}))
	require.NoError(t, store.CreateAccount(ctx, ledger.Account{ID: "acct:b"}))

	var calls atomic.Int64
	unsubscribe := f.Subscribe("acct:a", func(ledger.Account, []ledger.TransactionRecord) {
		calls.Add(1)
	})
	defer unsubscribe()

	credit(t, store, "acct:b", 10, "tx-other")
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, calls.Load(), "subscriber woken for unrelated account")
}
