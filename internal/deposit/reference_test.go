package deposit

import (
	"regexp"
	"testing"

	"github.com/payflow-sz/payflow/internal/ledger"
)

var referenceShape = regexp.MustCompile(`^(BT|MM)\d{8}[0-9A-Z]{4}$`)

func TestNewReferenceNumberShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		bt := NewReferenceNumber(ledger.MethodBankTransfer)
		if !referenceShape.MatchString(bt) || bt[:2] != "BT" {
			t.Fatalf("bad bank reference %q", bt)
		}
		mm := NewReferenceNumber(ledger.MethodMoMoSend)
		if !referenceShape.MatchString(mm) || mm[:2] != "MM" {
			t.Fatalf("bad momo reference %q", mm)
		}
	}
}
