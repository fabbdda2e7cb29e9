package reports

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Activity classifies a cash movement.
type Activity string

const (
	ActivityOperating Activity = "OPERATING"
	ActivityInvesting Activity = "INVESTING"
	ActivityFinancing Activity = "FINANCING"
)

// IsCashLedger reports whether a ledger name marks it as cash or bank.
func IsCashLedger(name string) bool {
	key := shared.NameKey(name)
	return strings.Contains(key, "cash") || strings.Contains(key, "bank")
}

// contraVoucher moves funds between cash and cash-like positions.
const contraVoucher = "CONTRA"

// Classify maps a voucher to its cash flow activity. Description keywords
// decide first. A contra voucher that still reaches the statement moved cash
// into or out of a position outside the cash set, which is never operating.
func Classify(voucherType, description string) Activity {
	key := shared.NameKey(description)
	switch {
	case strings.Contains(key, "investment"):
		return ActivityInvesting
	case strings.Contains(key, "loan"):
		return ActivityFinancing
	case strings.EqualFold(voucherType, contraVoucher):
		return ActivityInvesting
	}
	return ActivityOperating
}

// CashFlowLine is one voucher moving cash in or out.
type CashFlowLine struct {
	VoucherID     int64           `json:"voucher_id"`
	VoucherNumber string          `json:"voucher_number"`
	VoucherType   string          `json:"voucher_type"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description,omitempty"`
	Counterparty  string          `json:"counterparty"`
	Inflow        decimal.Decimal `json:"inflow"`
	Outflow       decimal.Decimal `json:"outflow"`
}

// CashFlowSection totals one activity.
type CashFlowSection struct {
	Activity Activity        `json:"activity"`
	Lines    []CashFlowLine  `json:"lines"`
	Inflow   decimal.Decimal `json:"inflow"`
	Outflow  decimal.Decimal `json:"outflow"`
	Net      decimal.Decimal `json:"net"`
}

func (s *CashFlowSection) add(line CashFlowLine) {
	s.Lines = append(s.Lines, line)
	s.Inflow = s.Inflow.Add(line.Inflow)
	s.Outflow = s.Outflow.Add(line.Outflow)
	s.Net = s.Inflow.Sub(s.Outflow)
}

// CashFlow explains the change in cash and bank balances over a period.
type CashFlow struct {
	Period      Period          `json:"period"`
	CashLedgers []string        `json:"cash_ledgers"`
	Opening     decimal.Decimal `json:"opening"`
	Operating   CashFlowSection `json:"operating"`
	Investing   CashFlowSection `json:"investing"`
	Financing   CashFlowSection `json:"financing"`
	NetChange   decimal.Decimal `json:"net_change"`
	Closing     decimal.Decimal `json:"closing"`
}

// cashFlowBuilder consumes postings in date order. Postings before the period
// only move the opening position; transfers between two cash ledgers are
// skipped since they do not change total cash.
type cashFlowBuilder struct {
	period  Period
	names   map[int64]string
	cash    map[int64]bool
	opening decimal.Decimal
	flow    CashFlow
}

func newCashFlowBuilder(period Period, ledgers []LedgerRow) *cashFlowBuilder {
	b := &cashFlowBuilder{
		period: period,
		names:  make(map[int64]string, len(ledgers)),
		cash:   make(map[int64]bool),
		flow: CashFlow{
			Period:    period,
			Operating: CashFlowSection{Activity: ActivityOperating},
			Investing: CashFlowSection{Activity: ActivityInvesting},
			Financing: CashFlowSection{Activity: ActivityFinancing},
		},
	}
	for _, l := range ledgers {
		b.names[l.ID] = l.Name
		if IsCashLedger(l.Name) {
			b.cash[l.ID] = true
			b.opening = b.opening.Add(posting.Signed(l.BalanceType, l.Opening))
			b.flow.CashLedgers = append(b.flow.CashLedgers, l.Name)
		}
	}
	return b
}

func (b *cashFlowBuilder) apply(p posting.Posting) {
	debitCash, creditCash := b.cash[p.DebitLedgerID], b.cash[p.CreditLedgerID]
	if debitCash == creditCash {
		return
	}
	signed := p.Amount
	if creditCash {
		signed = signed.Neg()
	}
	if b.period.BeforeStart(p.Date) {
		b.opening = b.opening.Add(signed)
		return
	}
	line := CashFlowLine{
		VoucherID:     p.VoucherID,
		VoucherNumber: p.VoucherNumber,
		VoucherType:   p.VoucherType,
		Date:          p.Date,
		Description:   p.Description,
	}
	if debitCash {
		line.Inflow = p.Amount
		line.Counterparty = b.names[p.CreditLedgerID]
	} else {
		line.Outflow = p.Amount
		line.Counterparty = b.names[p.DebitLedgerID]
	}
	switch Classify(p.VoucherType, p.Description) {
	case ActivityInvesting:
		b.flow.Investing.add(line)
	case ActivityFinancing:
		b.flow.Financing.add(line)
	default:
		b.flow.Operating.add(line)
	}
}

func (b *cashFlowBuilder) result() CashFlow {
	flow := b.flow
	flow.Opening = b.opening
	flow.NetChange = flow.Operating.Net.Add(flow.Investing.Net).Add(flow.Financing.Net)
	flow.Closing = flow.Opening.Add(flow.NetChange)
	return flow
}
