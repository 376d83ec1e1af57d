package deposit

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/payflow-sz/payflow/internal/ledger"
)

const referenceSuffixLen = 4

const base36Upper = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewReferenceNumber generates a human-presentable deposit reference:
// method prefix, the last eight digits of the current unix-millisecond clock,
// and a four-character random suffix. Uniqueness is only probabilistic, so
// callers must still collision-check against the store before accepting one.
func NewReferenceNumber(method ledger.Method) string {
	prefix := "MM"
	if method == ledger.MethodBankTransfer {
		prefix = "BT"
	}

	millis := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if len(millis) > 8 {
		millis = millis[len(millis)-8:]
	}

	suffix := make([]byte, referenceSuffixLen)
	for i := range suffix {
		suffix[i] = base36Upper[rand.Intn(len(base36Upper))]
	}

	return prefix + millis + string(suffix)
}
