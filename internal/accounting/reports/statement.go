package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
)

// OpeningEntryLabel describes the brought-forward row of a statement.
const OpeningEntryLabel = "Opening Balance"

// StatementEntry is one row of a ledger statement.
type StatementEntry struct {
	VoucherID     int64           `json:"voucher_id,omitempty"`
	VoucherNumber string          `json:"voucher_number,omitempty"`
	VoucherType   string          `json:"voucher_type,omitempty"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Counterparty  string          `json:"counterparty,omitempty"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Balance       decimal.Decimal `json:"balance"`
	Label         string          `json:"label"`
}

// Statement lists the postings of one ledger with a running balance.
type Statement struct {
	LedgerID       int64            `json:"ledger_id"`
	Name           string           `json:"name"`
	BalanceType    posting.Polarity `json:"balance_type"`
	Period         Period           `json:"period"`
	BroughtForward decimal.Decimal  `json:"brought_forward"`
	Entries        []StatementEntry `json:"entries"`
	TotalDebits    decimal.Decimal  `json:"total_debits"`
	TotalCredits   decimal.Decimal  `json:"total_credits"`
	Closing        decimal.Decimal  `json:"closing"`
	ClosingLabel   string           `json:"closing_label"`
}

type statementBuilder struct {
	ledger  LedgerRow
	period  Period
	names   map[int64]string
	forward *posting.Running
	inRange *posting.Running
	entries []StatementEntry
}

func newStatementBuilder(ledger LedgerRow, period Period, ledgers []LedgerRow) *statementBuilder {
	names := make(map[int64]string, len(ledgers))
	for _, l := range ledgers {
		names[l.ID] = l.Name
	}
	return &statementBuilder{
		ledger:  ledger,
		period:  period,
		names:   names,
		forward: posting.NewRunning(ledger.ID, ledger.BalanceType, ledger.Opening),
	}
}

func (b *statementBuilder) apply(p posting.Posting) {
	if b.period.BeforeStart(p.Date) {
		b.forward.Apply(p)
		return
	}
	if b.inRange == nil {
		b.inRange = posting.NewRunning(b.ledger.ID, b.ledger.BalanceType, b.forward.Balance)
	}
	side, _ := b.inRange.Apply(p)
	if side == posting.SideNone {
		return
	}
	entry := StatementEntry{
		VoucherID:     p.VoucherID,
		VoucherNumber: p.VoucherNumber,
		VoucherType:   p.VoucherType,
		Date:          p.Date,
		Description:   p.Description,
		Counterparty:  b.names[p.Counterparty(b.ledger.ID)],
		Balance:       b.inRange.Balance,
		Label:         posting.Label(b.ledger.BalanceType, b.inRange.Balance),
	}
	if side == posting.SideDebit {
		entry.Debit = p.Amount
	} else {
		entry.Credit = p.Amount
	}
	b.entries = append(b.entries, entry)
}

// result prepends an opening row when the brought-forward balance sits on
// the ledger's own side. The row is dated at the period start, or at the first
// entry when the period is open-ended, and undated when there is none.
func (b *statementBuilder) result() Statement {
	forward := b.forward.Balance
	st := Statement{
		LedgerID:       b.ledger.ID,
		Name:           b.ledger.Name,
		BalanceType:    b.ledger.BalanceType,
		Period:         b.period,
		BroughtForward: forward,
		Closing:        forward,
	}
	if forward.IsPositive() {
		var date time.Time
		switch {
		case b.period.From != nil:
			date = *b.period.From
		case len(b.entries) > 0:
			date = b.entries[0].Date
		}
		opening := StatementEntry{
			Date:        date,
			Description: OpeningEntryLabel,
			Balance:     forward,
			Label:       posting.Label(b.ledger.BalanceType, forward),
		}
		if b.ledger.BalanceType == posting.PolarityCredit {
			opening.Credit = forward
		} else {
			opening.Debit = forward
		}
		st.Entries = append(st.Entries, opening)
	}
	st.Entries = append(st.Entries, b.entries...)
	if b.inRange != nil {
		st.TotalDebits = b.inRange.TotalDebits
		st.TotalCredits = b.inRange.TotalCredits
		st.Closing = b.inRange.Balance
	}
	st.ClosingLabel = posting.Label(b.ledger.BalanceType, st.Closing)
	return st
}
