package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// LedgerRow is a ledger together with the group it is classified by.
type LedgerRow struct {
	ID             int64
	TenantID       int64
	GroupID        int64
	GroupName      string
	GroupType      groups.Type
	Name           string
	BalanceType    posting.Polarity
	Opening        decimal.Decimal
	CurrentBalance decimal.Decimal
	IsActive       bool
}

// Period bounds a report by voucher date, both ends inclusive. A nil From
// reaches back to the opening balances.
type Period struct {
	From *time.Time `json:"from,omitempty"`
	To   time.Time  `json:"to"`
}

// BeforeStart reports whether d falls before the period.
func (p Period) BeforeStart(d time.Time) bool {
	return p.From != nil && d.Before(*p.From)
}

// Cursor is the keyset position of the last posting read.
type Cursor struct {
	Date      time.Time
	VoucherID int64
}

// PostingQuery selects posted vouchers in (date, id) order after a cursor.
type PostingQuery struct {
	TenantID int64
	LedgerID int64
	To       *time.Time
	After    Cursor
	Limit    int
}

// Mismatch is a ledger whose stored balance disagrees with its replay.
type Mismatch struct {
	TenantID int64           `json:"tenant_id"`
	LedgerID int64           `json:"ledger_id"`
	Name     string          `json:"name"`
	Stored   decimal.Decimal `json:"stored"`
	Replayed decimal.Decimal `json:"replayed"`
}

var (
	ErrLedgerNotFound = fmt.Errorf("%w: reports: ledger not found", shared.ErrNotFound)

	ErrInvertedRange = shared.NewValidationError("reports: from must not be after to", "from", "to")
)

// RangeTooLong rejects a period wider than limit.
func RangeTooLong(limit time.Duration) error {
	return shared.NewValidationError(fmt.Sprintf("reports: date range exceeds %d days", int(limit.Hours()/24)), "from", "to")
}
