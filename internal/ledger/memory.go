package ledger

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = 2 * time.Millisecond
)

type memoryStore struct {
	mu           sync.Mutex
	accounts     map[string]Account
	transactions map[string]TransactionRecord
	txOrder      []string
	idemIndex    map[string]string
	references   map[string]DepositReference
	seq          uint64

	hookMu sync.RWMutex
	hooks  []func(Commit)

	maxAttempts int
	retryBase   time.Duration
}

// NewInMemory creates a concurrency-safe in-memory store. Units run
// optimistically against copy-on-read snapshots; commits validate the version
// of every account read and the whole unit is retried on contention.
func NewInMemory() Store {
	return &memoryStore{
		accounts:     make(map[string]Account),
		transactions: make(map[string]TransactionRecord),
		idemIndex:    make(map[string]string),
		references:   make(map[string]DepositReference),
		maxAttempts:  defaultMaxAttempts,
		retryBase:    defaultRetryBase,
	}
}

func (s *memoryStore) CreateAccount(_ context.Context, acct Account) error {
	if acct.Balance.IsNegative() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	if _, exists := s.accounts[acct.ID]; exists {
		s.mu.Unlock()
		return ErrAccountExists
	}
	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now
	acct.Version = 1
	s.accounts[acct.ID] = acct
	s.seq++
	commit := Commit{Seq: s.seq, AccountIDs: []string{acct.ID}, At: now}
	s.mu.Unlock()

	s.fire(commit)
	return nil
}

func (s *memoryStore) Account(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (s *memoryStore) Apply(ctx context.Context, fn func(Unit) error) error {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		u := newMemoryUnit(s)
		if err := fn(u); err != nil {
			return err
		}

		if commit, ok := s.tryCommit(u); ok {
			// Past this point the unit is durable; caller cancellation is a no-op.
			s.fire(commit)
			return nil
		}

		if err := sleepBackoff(ctx, s.retryBase, attempt); err != nil {
			return err
		}
	}
	return ErrConflict
}

func (s *memoryStore) Transactions(_ context.Context, accountID string, filter Filter, search string) ([]TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []TransactionRecord
	for i := len(s.txOrder) - 1; i >= 0; i-- {
		rec := s.transactions[s.txOrder[i]]
		if !matchesFilter(rec, accountID, filter) {
			continue
		}
		if !matchesSearch(rec, search) {
			continue
		}
		rec.Metadata = copyMetadata(rec.Metadata)
		out = append(out, rec)
	}
	return out, nil
}

func (s *memoryStore) ReferenceByNumber(_ context.Context, number string) (DepositReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.references[number]
	if !ok {
		return DepositReference{}, ErrReferenceNotFound
	}
	return ref, nil
}

func (s *memoryStore) SumCompletedSince(_ context.Context, payerID string, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, id := range s.txOrder {
		rec := s.transactions[id]
		if rec.PayerID != payerID || rec.Kind == KindTopUp {
			continue
		}
		if rec.Status != StatusCompleted || rec.CreatedAt.Before(since) {
			continue
		}
		total = total.Add(rec.Amount)
	}
	return total, nil
}

func (s *memoryStore) OnCommit(fn func(Commit)) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

func (s *memoryStore) fire(commit Commit) {
	s.hookMu.RLock()
	hooks := s.hooks
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(commit)
	}
}

const versionAbsent = -1

type memoryUnit struct {
	store *memoryStore

	readVersions map[string]int64
	staged       map[string]Account
	readIdemKeys map[string]string
	readRefs     map[string]ReferenceStatus

	balanceWrites map[string]decimal.Decimal
	insertedTx    []TransactionRecord
	statusWrites  map[string]Status
	insertedRefs  []DepositReference
	refWrites     map[string]DepositReference
	touched       map[string]struct{}
}

func newMemoryUnit(s *memoryStore) *memoryUnit {
	return &memoryUnit{
		store:         s,
		readVersions:  make(map[string]int64),
		staged:        make(map[string]Account),
		readIdemKeys:  make(map[string]string),
		readRefs:      make(map[string]ReferenceStatus),
		balanceWrites: make(map[string]decimal.Decimal),
		statusWrites:  make(map[string]Status),
		refWrites:     make(map[string]DepositReference),
		touched:       make(map[string]struct{}),
	}
}

func (u *memoryUnit) Account(id string) (Account, error) {
	if acct, ok := u.staged[id]; ok {
		return acct, nil
	}

	u.store.mu.Lock()
	acct, ok := u.store.accounts[id]
	u.store.mu.Unlock()

	if !ok {
		u.readVersions[id] = versionAbsent
		return Account{}, ErrAccountNotFound
	}
	u.readVersions[id] = acct.Version
	u.staged[id] = acct
	return acct, nil
}

func (u *memoryUnit) UpdateBalance(id string, balance decimal.Decimal) error {
	acct, err := u.Account(id)
	if err != nil {
		return err
	}
	if balance.IsNegative() {
		return ErrInsufficientFunds
	}
	acct.Balance = balance
	u.staged[id] = acct
	u.balanceWrites[id] = balance
	u.touched[id] = struct{}{}
	return nil
}

func (u *memoryUnit) InsertTransaction(rec TransactionRecord) error {
	if !rec.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	rec.Metadata = copyMetadata(rec.Metadata)
	u.insertedTx = append(u.insertedTx, rec)
	u.touched[rec.PayerID] = struct{}{}
	u.touched[rec.ReceiverID] = struct{}{}
	return nil
}

func (u *memoryUnit) UpdateTransactionStatus(id string, status Status) error {
	u.store.mu.Lock()
	rec, ok := u.store.transactions[id]
	u.store.mu.Unlock()
	if !ok {
		return ErrTransactionNotFound
	}
	u.statusWrites[id] = status
	u.touched[rec.PayerID] = struct{}{}
	u.touched[rec.ReceiverID] = struct{}{}
	return nil
}

func (u *memoryUnit) TransactionByIdempotencyKey(key string) (TransactionRecord, bool, error) {
	for _, rec := range u.insertedTx {
		if rec.IdempotencyKey() == key {
			return rec, true, nil
		}
	}

	u.store.mu.Lock()
	txID, ok := u.store.idemIndex[key]
	var rec TransactionRecord
	if ok {
		rec = u.store.transactions[txID]
	}
	u.store.mu.Unlock()

	u.readIdemKeys[key] = txID
	if !ok {
		return TransactionRecord{}, false, nil
	}
	return rec, true, nil
}

func (u *memoryUnit) InsertReference(ref DepositReference) error {
	if _, found, err := u.ReferenceByNumber(ref.ReferenceNumber); err != nil {
		return err
	} else if found {
		return ErrReferenceExists
	}
	u.insertedRefs = append(u.insertedRefs, ref)
	u.touched[ref.AccountID] = struct{}{}
	return nil
}

func (u *memoryUnit) ReferenceByNumber(number string) (DepositReference, bool, error) {
	if ref, ok := u.refWrites[number]; ok {
		return ref, true, nil
	}
	for _, ref := range u.insertedRefs {
		if ref.ReferenceNumber == number {
			return ref, true, nil
		}
	}

	u.store.mu.Lock()
	ref, ok := u.store.references[number]
	u.store.mu.Unlock()

	if !ok {
		u.readRefs[number] = ReferenceStatus("")
		return DepositReference{}, false, nil
	}
	u.readRefs[number] = ref.Status
	return ref, true, nil
}

func (u *memoryUnit) UpdateReference(ref DepositReference) error {
	u.refWrites[ref.ReferenceNumber] = ref
	u.touched[ref.AccountID] = struct{}{}
	return nil
}

// tryCommit validates every read made by the unit and, if nothing moved
// underneath it, applies the staged writes as one atomic step.
func (s *memoryStore) tryCommit(u *memoryUnit) (Commit, bool) {
	s.mu.Lock()

	for id, ver := range u.readVersions {
		cur, ok := s.accounts[id]
		if ver == versionAbsent {
			if ok {
				s.mu.Unlock()
				return Commit{}, false
			}
			continue
		}
		if !ok || cur.Version != ver {
			s.mu.Unlock()
			return Commit{}, false
		}
	}
	for key, txID := range u.readIdemKeys {
		if s.idemIndex[key] != txID {
			s.mu.Unlock()
			return Commit{}, false
		}
	}
	for number, status := range u.readRefs {
		cur, ok := s.references[number]
		if status == ReferenceStatus("") {
			if ok {
				s.mu.Unlock()
				return Commit{}, false
			}
			continue
		}
		if !ok || cur.Status != status {
			s.mu.Unlock()
			return Commit{}, false
		}
	}

	now := time.Now().UTC()
	for id, balance := range u.balanceWrites {
		acct := s.accounts[id]
		acct.Balance = balance
		acct.Version++
		acct.UpdatedAt = now
		s.accounts[id] = acct
	}
	for _, rec := range u.insertedTx {
		s.transactions[rec.ID] = rec
		s.txOrder = append(s.txOrder, rec.ID)
		if key := rec.IdempotencyKey(); key != "" {
			s.idemIndex[key] = rec.ID
		}
	}
	for id, status := range u.statusWrites {
		rec := s.transactions[id]
		rec.Status = status
		s.transactions[id] = rec
	}
	for _, ref := range u.insertedRefs {
		s.references[ref.ReferenceNumber] = ref
	}
	for number, ref := range u.refWrites {
		s.references[number] = ref
	}

	s.seq++
	commit := Commit{Seq: s.seq, At: now}
	for id := range u.touched {
		if id != "" {
			commit.AccountIDs = append(commit.AccountIDs, id)
		}
	}

	s.mu.Unlock()
	return commit, true
}

// sleepBackoff waits base*2^attempt with full jitter, honoring cancellation.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := base << uint(attempt)
	if delay > 0 {
		delay = time.Duration(rand.Int63n(int64(delay)) + 1)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
