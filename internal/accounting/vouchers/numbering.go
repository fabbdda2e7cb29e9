package vouchers

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// SequenceKey names the counter a voucher number is drawn from: one per
// tenant, type prefix and calendar month of the voucher date.
func SequenceKey(tenantID int64, t Type, date time.Time) string {
	return shared.VoucherSequenceKey(tenantID, t.Prefix(), date.Year(), int(date.Month()))
}

// FormatNumber renders PREFIX+YYYY+MM+NNNN. Sequences past 9999 widen
// rather than wrap.
func FormatNumber(t Type, date time.Time, seq int64) string {
	return fmt.Sprintf("%s%04d%02d%04d", t.Prefix(), date.Year(), int(date.Month()), seq)
}
