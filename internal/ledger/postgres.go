package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists accounts, transactions and deposit references in
// PostgreSQL. Atomic units map to database transactions with row locks taken
// via SELECT FOR UPDATE; serialization failures and deadlocks are retried
// with backoff before surfacing ErrConflict.
type PostgresStore struct {
	db *pgxpool.Pool

	seq    atomic.Uint64
	hookMu sync.RWMutex
	hooks  []func(Commit)

	maxAttempts int
	retryBase   time.Duration
}

// NewPostgres constructs a Postgres-backed ledger store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, maxAttempts: defaultMaxAttempts, retryBase: defaultRetryBase}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acct Account) error {
	if acct.Balance.IsNegative() {
		return ErrInvalidAmount
	}
	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}

	tag, err := s.db.Exec(ctx, `INSERT INTO accounts (id, owner_id, balance, version, created_at, updated_at)
        VALUES ($1, $2, $3, 1, $4, $5) ON CONFLICT (id) DO NOTHING`,
		acct.ID, acct.OwnerID, acct.Balance, acct.CreatedAt, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountExists
	}

	s.fire(Commit{Seq: s.seq.Add(1), AccountIDs: []string{acct.ID}, At: now})
	return nil
}

func (s *PostgresStore) Account(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT id, owner_id, balance, version, created_at, updated_at
        FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) Apply(ctx context.Context, fn func(Unit) error) error {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		commit, err := s.applyOnce(ctx, fn)
		if err == nil {
			s.fire(commit)
			return nil
		}
		if !retryable(err) {
			return err
		}
		if err := sleepBackoff(ctx, s.retryBase, attempt); err != nil {
			return err
		}
	}
	return ErrConflict
}

func (s *PostgresStore) applyOnce(ctx context.Context, fn func(Unit) error) (Commit, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Commit{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	u := &pgUnit{ctx: ctx, tx: tx, locked: make(map[string]Account), touched: make(map[string]struct{})}
	if err := fn(u); err != nil {
		return Commit{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Commit{}, err
	}

	commit := Commit{Seq: s.seq.Add(1), At: time.Now().UTC()}
	for id := range u.touched {
		if id != "" {
			commit.AccountIDs = append(commit.AccountIDs, id)
		}
	}
	return commit, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, accountID string, filter Filter, search string) ([]TransactionRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT id, payer_id, receiver_id, amount, kind, description, status, created_at, metadata
        FROM transactions WHERE payer_id = $1 OR receiver_id = $1 ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		if matchesFilter(rec, accountID, filter) && matchesSearch(rec, search) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReferenceByNumber(ctx context.Context, number string) (DepositReference, error) {
	row := s.db.QueryRow(ctx, `SELECT id, reference_number, account_id, amount, method, status, transaction_id, created_at, verified_at, verified_by
        FROM deposit_references WHERE reference_number = $1`, number)
	ref, err := scanReference(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return DepositReference{}, ErrReferenceNotFound
	}
	return ref, err
}

func (s *PostgresStore) SumCompletedSince(ctx context.Context, payerID string, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions
        WHERE payer_id = $1 AND kind <> $2 AND status = $3 AND created_at >= $4`,
		payerID, string(KindTopUp), string(StatusCompleted), since).Scan(&total)
	return total, err
}

func (s *PostgresStore) OnCommit(fn func(Commit)) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

func (s *PostgresStore) fire(commit Commit) {
	s.hookMu.RLock()
	hooks := s.hooks
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(commit)
	}
}

type pgUnit struct {
	ctx     context.Context
	tx      pgx.Tx
	locked  map[string]Account
	touched map[string]struct{}
}

func (u *pgUnit) Account(id string) (Account, error) {
	if acct, ok := u.locked[id]; ok {
		return acct, nil
	}

	row := u.tx.QueryRow(u.ctx, `SELECT id, owner_id, balance, version, created_at, updated_at
        FROM accounts WHERE id = $1 FOR UPDATE`, id)
	acct, err := scanAccount(row)
	if err != nil {
		return Account{}, err
	}
	u.locked[id] = acct
	return acct, nil
}

func (u *pgUnit) UpdateBalance(id string, balance decimal.Decimal) error {
	if _, err := u.Account(id); err != nil {
		return err
	}
	if balance.IsNegative() {
		return ErrInsufficientFunds
	}

	_, err := u.tx.Exec(u.ctx, `UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2 WHERE id = $3`,
		balance, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	acct := u.locked[id]
	acct.Balance = balance
	u.locked[id] = acct
	u.touched[id] = struct{}{}
	return nil
}

func (u *pgUnit) InsertTransaction(rec TransactionRecord) error {
	if !rec.Amount.IsPositive() {
		return ErrInvalidAmount
	}

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = u.tx.Exec(u.ctx, `INSERT INTO transactions (id, payer_id, receiver_id, amount, kind, description, status, created_at, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.PayerID, rec.ReceiverID, rec.Amount, string(rec.Kind), rec.Description, string(rec.Status), rec.CreatedAt, meta)
	if err != nil {
		return err
	}

	u.touched[rec.PayerID] = struct{}{}
	u.touched[rec.ReceiverID] = struct{}{}
	return nil
}

func (u *pgUnit) UpdateTransactionStatus(id string, status Status) error {
	var payerID, receiverID string
	err := u.tx.QueryRow(u.ctx, `UPDATE transactions SET status = $1 WHERE id = $2 RETURNING payer_id, receiver_id`,
		string(status), id).Scan(&payerID, &receiverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return err
	}
	u.touched[payerID] = struct{}{}
	u.touched[receiverID] = struct{}{}
	return nil
}

func (u *pgUnit) TransactionByIdempotencyKey(key string) (TransactionRecord, bool, error) {
	row := u.tx.QueryRow(u.ctx, `SELECT id, payer_id, receiver_id, amount, kind, description, status, created_at, metadata
        FROM transactions WHERE metadata->>'idempotencyKey' = $1`, key)
	rec, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TransactionRecord{}, false, nil
	}
	if err != nil {
		return TransactionRecord{}, false, err
	}
	return rec, true, nil
}

func (u *pgUnit) InsertReference(ref DepositReference) error {
	tag, err := u.tx.Exec(u.ctx, `INSERT INTO deposit_references (id, reference_number, account_id, amount, method, status, transaction_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (reference_number) DO NOTHING`,
		ref.ID, ref.ReferenceNumber, ref.AccountID, ref.Amount, string(ref.Method), string(ref.Status), ref.TransactionID, ref.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReferenceExists
	}
	u.touched[ref.AccountID] = struct{}{}
	return nil
}

func (u *pgUnit) ReferenceByNumber(number string) (DepositReference, bool, error) {
	row := u.tx.QueryRow(u.ctx, `SELECT id, reference_number, account_id, amount, method, status, transaction_id, created_at, verified_at, verified_by
        FROM deposit_references WHERE reference_number = $1 FOR UPDATE`, number)
	ref, err := scanReference(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return DepositReference{}, false, nil
	}
	if err != nil {
		return DepositReference{}, false, err
	}
	return ref, true, nil
}

func (u *pgUnit) UpdateReference(ref DepositReference) error {
	var verifiedAt any
	if !ref.VerifiedAt.IsZero() {
		verifiedAt = ref.VerifiedAt
	}
	_, err := u.tx.Exec(u.ctx, `UPDATE deposit_references SET status = $1, verified_at = $2, verified_by = $3 WHERE reference_number = $4`,
		string(ref.Status), verifiedAt, ref.VerifiedBy, ref.ReferenceNumber)
	if err != nil {
		return err
	}
	u.touched[ref.AccountID] = struct{}{}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acct Account
	err := row.Scan(&acct.ID, &acct.OwnerID, &acct.Balance, &acct.Version, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	acct.UpdatedAt = acct.UpdatedAt.UTC()
	return acct, nil
}

func scanTransaction(row pgx.Row) (TransactionRecord, error) {
	var (
		rec          TransactionRecord
		kind, status string
		meta         []byte
	)
	if err := row.Scan(&rec.ID, &rec.PayerID, &rec.ReceiverID, &rec.Amount, &kind, &rec.Description, &status, &rec.CreatedAt, &meta); err != nil {
		return TransactionRecord{}, err
	}
	rec.Kind = Kind(kind)
	rec.Status = Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return TransactionRecord{}, err
		}
	}
	return rec, nil
}

func scanReference(row pgx.Row) (DepositReference, error) {
	var (
		ref            DepositReference
		method, status string
		verifiedAt     *time.Time
		verifiedBy     *string
	)
	if err := row.Scan(&ref.ID, &ref.ReferenceNumber, &ref.AccountID, &ref.Amount, &method, &status, &ref.TransactionID, &ref.CreatedAt, &verifiedAt, &verifiedBy); err != nil {
		return DepositReference{}, err
	}
	ref.Method = Method(method)
	ref.Status = ReferenceStatus(status)
	ref.CreatedAt = ref.CreatedAt.UTC()
	if verifiedAt != nil {
		ref.VerifiedAt = verifiedAt.UTC()
	}
	if verifiedBy != nil {
		ref.VerifiedBy = *verifiedBy
	}
	return ref, nil
}

// retryable reports whether the database error is transient contention:
// serialization_failure (40001) or deadlock_detected (40P01).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
