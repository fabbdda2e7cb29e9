package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
)

// LedgerSummaryRow is one ledger's movement to date.
type LedgerSummaryRow struct {
	LedgerID     int64            `json:"ledger_id"`
	Name         string           `json:"name"`
	Group        string           `json:"group"`
	GroupType    groups.Type      `json:"group_type"`
	BalanceType  posting.Polarity `json:"balance_type"`
	Opening      decimal.Decimal  `json:"opening"`
	TotalDebits  decimal.Decimal  `json:"total_debits"`
	TotalCredits decimal.Decimal  `json:"total_credits"`
	Closing      decimal.Decimal  `json:"closing"`
	Label        string           `json:"label"`
}

// LedgerSummary lists every ledger with its totals.
type LedgerSummary struct {
	AsOf time.Time          `json:"as_of"`
	Rows []LedgerSummaryRow `json:"rows"`
}

// BuildLedgerSummary lists accounts in the order given.
func BuildLedgerSummary(asOf time.Time, accounts []AccountBalance) LedgerSummary {
	out := LedgerSummary{AsOf: asOf, Rows: make([]LedgerSummaryRow, 0, len(accounts))}
	for _, acc := range accounts {
		out.Rows = append(out.Rows, LedgerSummaryRow{
			LedgerID:     acc.Ledger.ID,
			Name:         acc.Ledger.Name,
			Group:        acc.Ledger.GroupName,
			GroupType:    acc.Ledger.GroupType,
			BalanceType:  acc.Ledger.BalanceType,
			Opening:      acc.Opening,
			TotalDebits:  acc.Debit,
			TotalCredits: acc.Credit,
			Closing:      acc.Balance,
			Label:        acc.Label(),
		})
	}
	return out
}
