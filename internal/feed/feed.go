package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/payflow-sz/payflow/internal/ledger"
)

const snapshotTimeout = 5 * time.Second

// Callback receives an eventually-consistent snapshot of the account and its
// transaction list after a committed mutation touching the account.
type Callback func(ledger.Account, []ledger.TransactionRecord)

// Feed is a convenience projection over the ledger store's commit log. It is
// not authoritative: subscribers can be torn down and resubscribed without
// data loss because the store remains the source of truth.
type Feed struct {
	store  ledger.Store
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]*subscriber
	nextID uint64
}

// New builds a feed and registers it on the store's commit hook.
func New(store ledger.Store, logger *slog.Logger) *Feed {
	f := &Feed{store: store, logger: logger, subs: make(map[string]map[uint64]*subscriber)}
	store.OnCommit(f.notify)
	return f
}

type subscriber struct {
	accountID string
	fn        Callback

	wake chan uint64
	done chan struct{}

	deliverMu sync.Mutex
	stopped   bool
	lastSeq   uint64
}

// Subscribe registers fn for commits touching accountID and returns an
// unsubscribe function. Within one subscription, snapshots arrive in
// non-decreasing commit order; once unsubscribe returns no further callbacks
// fire.
func (f *Feed) Subscribe(accountID string, fn Callback) func() {
	sub := &subscriber{
		accountID: accountID,
		fn:        fn,
		wake:      make(chan uint64, 1),
		done:      make(chan struct{}),
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	if f.subs[accountID] == nil {
		f.subs[accountID] = make(map[uint64]*subscriber)
	}
	f.subs[accountID][id] = sub
	f.mu.Unlock()

	go f.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[accountID], id)
			if len(f.subs[accountID]) == 0 {
				delete(f.subs, accountID)
			}
			f.mu.Unlock()

			sub.deliverMu.Lock()
			sub.stopped = true
			sub.deliverMu.Unlock()
			close(sub.done)
		})
	}
}

// notify wakes every subscriber of the touched accounts. The wake channel
// holds a single pending sequence number; when a subscriber lags, older
// wake-ups are coalesced into the newest one.
func (f *Feed) notify(commit ledger.Commit) {
	f.mu.Lock()
	var targets []*subscriber
	for _, accountID := range commit.AccountIDs {
		for _, sub := range f.subs[accountID] {
			targets = append(targets, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range targets {
		for {
			select {
			case sub.wake <- commit.Seq:
			default:
				select {
				case <-sub.wake:
				default:
				}
				continue
			}
			break
		}
	}
}

func (f *Feed) run(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case seq := <-sub.wake:
			f.deliver(sub, seq)
		}
	}
}

func (f *Feed) deliver(sub *subscriber, seq uint64) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	if sub.stopped || seq < sub.lastSeq {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	acct, err := f.store.Account(ctx, sub.accountID)
	if err != nil {
		f.logger.Warn("feed snapshot failed", "account_id", sub.accountID, "error", err)
		return
	}
	txs, err := f.store.Transactions(ctx, sub.accountID, ledger.FilterAll, "")
	if err != nil {
		f.logger.Warn("feed snapshot failed", "account_id", sub.accountID, "error", err)
		return
	}

	sub.lastSeq = seq
	sub.fn(acct, txs)
}
