package momo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrExternalService wraps failures of the mobile-money network. The
	// underlying reason is always preserved and never converted to success.
	ErrExternalService = errors.New("mobile money service error")

	// ErrInvalidPhone occurs when the number is not a valid Eswatini MSISDN.
	ErrInvalidPhone = errors.New("invalid Eswatini phone number")
)

// Eswatini mobile numbers: optional +268/268/0 prefix, then 7 or 6 and seven digits.
var phonePattern = regexp.MustCompile(`^(\+268|268|0)?[67]\d{7}$`)

// ValidPhone reports whether the number looks like an Eswatini mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(strings.ReplaceAll(phone, " ", ""))
}

// PaymentRequest asks the mobile-money network to collect funds from a phone.
type PaymentRequest struct {
	PhoneNumber string
	Amount      decimal.Decimal
	Description string
}

// PaymentDecision is the network's answer to a collection request.
type PaymentDecision struct {
	Reference string
	Status    string
}

// Initiator represents a connector to the external mobile-money network.
// Calls may block on network round trips; the network is untrusted and its
// decisions are authoritative only for the external leg, never the ledger.
type Initiator interface {
	RequestToPay(ctx context.Context, req PaymentRequest) (PaymentDecision, error)
}

// StaticInitiator simulates an approving mobile-money integration.
type StaticInitiator struct{}

// RequestToPay approves the collection with a synthetic reference.
func (StaticInitiator) RequestToPay(_ context.Context, req PaymentRequest) (PaymentDecision, error) {
	if !ValidPhone(req.PhoneNumber) {
		return PaymentDecision{}, ErrInvalidPhone
	}
	return PaymentDecision{Reference: newMoMoReference(), Status: "approved"}, nil
}

func newMoMoReference() string {
	suffix := make([]byte, 4)
	const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for i := range suffix {
		suffix[i] = charset[rand.Intn(len(charset))]
	}
	return fmt.Sprintf("MOMO%d%s", time.Now().UnixMilli(), suffix)
}
