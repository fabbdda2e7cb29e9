package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
)

// BalanceSheetAccount summarises a ledger for assets, liabilities, or capital.
type BalanceSheetAccount struct {
	LedgerID int64           `json:"ledger_id"`
	Name     string          `json:"name"`
	Group    string          `json:"group"`
	Balance  decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	AsOf                       time.Time           `json:"as_of"`
	Assets                     BalanceSheetSection `json:"assets"`
	Liabilities                BalanceSheetSection `json:"liabilities"`
	Capital                    BalanceSheetSection `json:"capital"`
	NetProfit                  decimal.Decimal     `json:"net_profit"`
	OpeningDifference          decimal.Decimal     `json:"opening_difference"`
	TotalLiabilitiesAndCapital decimal.Decimal     `json:"total_liabilities_and_capital"`
}

// Balanced reports whether both sides agree.
func (bs BalanceSheet) Balanced() bool {
	return bs.Assets.Total.Equal(bs.TotalLiabilitiesAndCapital)
}

// BuildBalanceSheet states assets debit-positive and liabilities and capital
// credit-positive. Net profit to date and any opening difference are carried
// on the liabilities side.
func BuildBalanceSheet(asOf time.Time, accounts []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	capital := BalanceSheetSection{Label: "Capital"}
	openings := decimal.Zero

	for _, acc := range accounts {
		openings = openings.Add(acc.SignedOpening())
		closing := acc.Closing()
		row := BalanceSheetAccount{LedgerID: acc.Ledger.ID, Name: acc.Ledger.Name, Group: acc.Ledger.GroupName}
		switch acc.Ledger.GroupType {
		case groups.TypeAsset:
			row.Balance = closing
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case groups.TypeLiability:
			row.Balance = closing.Neg()
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case groups.TypeCapital:
			row.Balance = closing.Neg()
			capital.Accounts = append(capital.Accounts, row)
			capital.Total = capital.Total.Add(row.Balance)
		}
	}

	byName := func(s BalanceSheetSection) func(i, j int) bool {
		return func(i, j int) bool { return s.Accounts[i].Name < s.Accounts[j].Name }
	}
	sort.Slice(assets.Accounts, byName(assets))
	sort.Slice(liabilities.Accounts, byName(liabilities))
	sort.Slice(capital.Accounts, byName(capital))

	netProfit := signedNetProfit(accounts)
	return BalanceSheet{
		AsOf:                       asOf,
		Assets:                     assets,
		Liabilities:                liabilities,
		Capital:                    capital,
		NetProfit:                  netProfit,
		OpeningDifference:          openings,
		TotalLiabilitiesAndCapital: liabilities.Total.Add(capital.Total).Add(netProfit).Add(openings),
	}
}
