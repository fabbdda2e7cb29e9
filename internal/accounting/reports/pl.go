package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
)

// ProfitAndLossAccount represents an income or expense ledger.
type ProfitAndLossAccount struct {
	LedgerID int64           `json:"ledger_id"`
	Name     string          `json:"name"`
	Group    string          `json:"group"`
	Amount   decimal.Decimal `json:"amount"`
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string                 `json:"label"`
	Accounts []ProfitAndLossAccount `json:"accounts"`
	Total    decimal.Decimal        `json:"total"`
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	Period    Period               `json:"period"`
	Income    ProfitAndLossSection `json:"income"`
	Expense   ProfitAndLossSection `json:"expense"`
	NetProfit decimal.Decimal      `json:"net_profit"`
}

// BuildProfitAndLoss reports each income and expense ledger at the absolute
// value of its balance; the section carries the sign.
func BuildProfitAndLoss(period Period, accounts []AccountBalance) ProfitAndLoss {
	income := ProfitAndLossSection{Label: "Income"}
	expense := ProfitAndLossSection{Label: "Expense"}

	for _, acc := range accounts {
		row := ProfitAndLossAccount{LedgerID: acc.Ledger.ID, Name: acc.Ledger.Name, Group: acc.Ledger.GroupName, Amount: acc.Balance.Abs()}
		switch acc.Ledger.GroupType {
		case groups.TypeIncome:
			income.Accounts = append(income.Accounts, row)
			income.Total = income.Total.Add(row.Amount)
		case groups.TypeExpense:
			expense.Accounts = append(expense.Accounts, row)
			expense.Total = expense.Total.Add(row.Amount)
		}
	}

	sort.Slice(income.Accounts, func(i, j int) bool { return income.Accounts[i].Name < income.Accounts[j].Name })
	sort.Slice(expense.Accounts, func(i, j int) bool { return expense.Accounts[i].Name < expense.Accounts[j].Name })

	return ProfitAndLoss{
		Period:    period,
		Income:    income,
		Expense:   expense,
		NetProfit: income.Total.Sub(expense.Total),
	}
}

// signedNetProfit is income less expense computed from debit-positive
// closings, so a contra balance on an income ledger reduces profit.
func signedNetProfit(accounts []AccountBalance) decimal.Decimal {
	net := decimal.Zero
	for _, acc := range accounts {
		if acc.Ledger.GroupType.Family() == groups.FamilyProfitAndLoss {
			net = net.Sub(acc.Closing())
		}
	}
	return net
}
