package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// OpeningDifferenceLabel names the balancing row for unbalanced openings.
const OpeningDifferenceLabel = "Difference in Opening Balances"

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	LedgerID int64           `json:"ledger_id"`
	Name     string          `json:"name"`
	Debit    decimal.Decimal `json:"debit"`
	Credit   decimal.Decimal `json:"credit"`
}

// TrialBalanceGroup aggregates accounts under their group.
type TrialBalanceGroup struct {
	Key      string                `json:"group"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// TrialBalance lists every ledger's closing balance in the debit or credit column.
type TrialBalance struct {
	AsOf              time.Time            `json:"as_of"`
	Groups            []TrialBalanceGroup  `json:"groups"`
	OpeningDifference *TrialBalanceAccount `json:"opening_difference,omitempty"`
	TotalDebit        decimal.Decimal      `json:"total_debit"`
	TotalCredit       decimal.Decimal      `json:"total_credit"`
}

// Balanced reports whether the columns agree.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// BuildTrialBalance places positive closings in the debit column and negative
// ones in the credit column. When the opening balances do not themselves net
// to zero the difference is carried on a separate row.
func BuildTrialBalance(asOf time.Time, accounts []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	openings := decimal.Zero
	result := TrialBalance{AsOf: asOf}
	for _, acc := range accounts {
		key := acc.Ledger.GroupName
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{LedgerID: acc.Ledger.ID, Name: acc.Ledger.Name}
		closing := acc.Closing()
		if closing.IsNegative() {
			row.Credit = closing.Neg()
		} else {
			row.Debit = closing
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
		openings = openings.Add(acc.SignedOpening())
	}

	sort.Strings(keys)
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Name < grp.Accounts[j].Name
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}

	if !openings.IsZero() {
		diff := &TrialBalanceAccount{Name: OpeningDifferenceLabel}
		if openings.IsPositive() {
			diff.Credit = openings
		} else {
			diff.Debit = openings.Neg()
		}
		result.OpeningDifference = diff
		result.TotalDebit = result.TotalDebit.Add(diff.Debit)
		result.TotalCredit = result.TotalCredit.Add(diff.Credit)
	}
	return result
}
