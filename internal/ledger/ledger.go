package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound occurs when the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists occurs when creating an account whose id is taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrInsufficientFunds occurs when a debit would drive a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount occurs when an operation amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrConflict indicates concurrent units contended for the same accounts
	// and the internal retry budget was exhausted. Callers may retry.
	ErrConflict = errors.New("ledger conflict, retries exhausted")

	// ErrDuplicateOperation indicates the provided idempotency key was already
	// applied and therefore the operation must not run again.
	ErrDuplicateOperation = errors.New("duplicate operation")

	// ErrReferenceNotFound occurs when no deposit reference matches the number.
	ErrReferenceNotFound = errors.New("deposit reference not found")

	// ErrReferenceExists occurs when a generated reference number collides
	// with one already stored.
	ErrReferenceExists = errors.New("deposit reference already exists")

	// ErrTransactionNotFound occurs when a transaction id cannot be resolved.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Kind classifies a transaction record.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindTopUp    Kind = "topup"
	KindInvoice  Kind = "invoice"
	KindProduct  Kind = "product"
)

// Valid reports whether the kind is one of the supported values.
func (k Kind) Valid() bool {
	switch k {
	case KindTransfer, KindTopUp, KindInvoice, KindProduct:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a transaction record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Method identifies the out-of-band channel for a manual deposit.
type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodMoMoSend     Method = "momo_send"
)

// ReferenceStatus is the state of a deposit reference.
type ReferenceStatus string

const (
	ReferencePending  ReferenceStatus = "pending"
	ReferenceVerified ReferenceStatus = "verified"
	ReferenceRejected ReferenceStatus = "rejected"
)

// Metadata keys written by the services that own them.
const (
	MetaIdempotencyKey   = "idempotencyKey"
	MetaReferenceNumber  = "referenceNumber"
	MetaPaymentMethod    = "paymentMethod"
	MetaDepositRequestID = "depositRequestId"
	MetaMoMoReference    = "momoReference"
	MetaPhoneNumber      = "phoneNumber"
)

// Account is a balance-holding entity. Balances never go negative; every
// committed mutation bumps Version.
type Account struct {
	ID        string
	OwnerID   string
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionRecord is immutable once created, except for the status field
// and metadata enrichment performed inside a later atomic unit.
type TransactionRecord struct {
	ID          string
	PayerID     string
	ReceiverID  string
	Amount      decimal.Decimal
	Kind        Kind
	Description string
	Status      Status
	CreatedAt   time.Time
	Metadata    map[string]string
}

// IdempotencyKey returns the caller-supplied key stored in metadata, if any.
func (r TransactionRecord) IdempotencyKey() string {
	return r.Metadata[MetaIdempotencyKey]
}

// DepositReference correlates an out-of-band payment to a pending top-up.
// Status moves pending -> verified or pending -> rejected, exactly once.
type DepositReference struct {
	ID              string
	ReferenceNumber string
	AccountID       string
	Amount          decimal.Decimal
	Method          Method
	Status          ReferenceStatus
	TransactionID   string
	CreatedAt       time.Time
	VerifiedAt      time.Time
	VerifiedBy      string
}

// Filter selects which transactions to list for an account.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterSent     Filter = "sent"
	FilterReceived Filter = "received"
	FilterTopUp    Filter = "topup"
)

// ParseFilter maps a query value to a Filter, defaulting to FilterAll.
func ParseFilter(v string) Filter {
	switch Filter(strings.ToLower(v)) {
	case FilterSent:
		return FilterSent
	case FilterReceived:
		return FilterReceived
	case FilterTopUp:
		return FilterTopUp
	default:
		return FilterAll
	}
}

// Commit describes one committed atomic unit. Seq increases monotonically
// per store so observers can order snapshots.
type Commit struct {
	Seq        uint64
	AccountIDs []string
	At         time.Time
}

// Unit is the view of the store inside one atomic unit. Reads observe a
// consistent snapshot; writes are staged and commit together or not at all.
type Unit interface {
	Account(id string) (Account, error)
	UpdateBalance(id string, balance decimal.Decimal) error
	InsertTransaction(rec TransactionRecord) error
	UpdateTransactionStatus(id string, status Status) error
	TransactionByIdempotencyKey(key string) (TransactionRecord, bool, error)
	InsertReference(ref DepositReference) error
	ReferenceByNumber(number string) (DepositReference, bool, error)
	UpdateReference(ref DepositReference) error
}

// Store is the contract implemented by ledger backends.
//
// Apply executes fn inside one atomic unit. Two concurrent units touching the
// same account never both observe a pre-mutation balance; on contention the
// store retries internally with exponential backoff before failing with
// ErrConflict. An error returned by fn aborts the unit with no state change.
type Store interface {
	CreateAccount(ctx context.Context, acct Account) error
	Account(ctx context.Context, id string) (Account, error)
	Apply(ctx context.Context, fn func(Unit) error) error
	Transactions(ctx context.Context, accountID string, filter Filter, search string) ([]TransactionRecord, error)
	ReferenceByNumber(ctx context.Context, number string) (DepositReference, error)
	SumCompletedSince(ctx context.Context, payerID string, since time.Time) (decimal.Decimal, error)

	// OnCommit registers fn to run after each committed unit. Hooks fire
	// outside the store's internal locks, so hooks for two concurrent commits
	// may run out of sequence order; consumers needing ordering must compare
	// Commit.Seq themselves.
	OnCommit(fn func(Commit))
}

// matchesFilter reports whether rec belongs in the listing for accountID.
func matchesFilter(rec TransactionRecord, accountID string, filter Filter) bool {
	switch filter {
	case FilterSent:
		return rec.PayerID == accountID && rec.Kind != KindTopUp
	case FilterReceived:
		return rec.ReceiverID == accountID && rec.PayerID != accountID
	case FilterTopUp:
		return rec.Kind == KindTopUp && rec.ReceiverID == accountID
	default:
		return rec.PayerID == accountID || rec.ReceiverID == accountID
	}
}

// matchesSearch performs the case-insensitive substring match over
// description, kind and formatted amount used by transaction listings.
func matchesSearch(rec TransactionRecord, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(rec.Description), needle) {
		return true
	}
	if strings.Contains(string(rec.Kind), needle) {
		return true
	}
	return strings.Contains(rec.Amount.StringFixed(2), needle)
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
