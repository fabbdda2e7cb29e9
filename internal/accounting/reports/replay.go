package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
)

// AccountBalance is the replayed state of one ledger.
type AccountBalance struct {
	Ledger  LedgerRow
	Opening decimal.Decimal
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Balance decimal.Decimal
}

// Closing returns the closing balance in debit-positive terms.
func (a AccountBalance) Closing() decimal.Decimal {
	return posting.Signed(a.Ledger.BalanceType, a.Balance)
}

// SignedOpening returns the opening balance in debit-positive terms.
func (a AccountBalance) SignedOpening() decimal.Decimal {
	return posting.Signed(a.Ledger.BalanceType, a.Opening)
}

// Label is Dr or Cr for the closing balance.
func (a AccountBalance) Label() string {
	return posting.Label(a.Ledger.BalanceType, a.Balance)
}

// replayer folds a stream of postings onto every in-scope ledger at once.
type replayer struct {
	ledgers map[int64]LedgerRow
	running map[int64]*posting.Running
}

// newReplayer starts each ledger at its opening balance, or at zero when
// withOpening is false.
func newReplayer(ledgers []LedgerRow, withOpening bool) *replayer {
	r := &replayer{
		ledgers: make(map[int64]LedgerRow, len(ledgers)),
		running: make(map[int64]*posting.Running, len(ledgers)),
	}
	for _, l := range ledgers {
		opening := decimal.Zero
		if withOpening {
			opening = l.Opening
		}
		r.ledgers[l.ID] = l
		r.running[l.ID] = posting.NewRunning(l.ID, l.BalanceType, opening)
	}
	return r
}

func (r *replayer) apply(p posting.Posting) {
	if run, ok := r.running[p.DebitLedgerID]; ok {
		run.Apply(p)
	}
	if run, ok := r.running[p.CreditLedgerID]; ok {
		run.Apply(p)
	}
}

func (r *replayer) balance(id int64) (AccountBalance, bool) {
	run, ok := r.running[id]
	if !ok {
		return AccountBalance{}, false
	}
	return AccountBalance{
		Ledger:  r.ledgers[id],
		Opening: run.Opening,
		Debit:   run.TotalDebits,
		Credit:  run.TotalCredits,
		Balance: run.Balance,
	}, true
}

// balances returns every ledger ordered by group then ledger name.
func (r *replayer) balances() []AccountBalance {
	out := make([]AccountBalance, 0, len(r.running))
	for id := range r.running {
		b, _ := r.balance(id)
		out = append(out, b)
	}
	sortBalances(out)
	return out
}

func sortBalances(accounts []AccountBalance) {
	sort.Slice(accounts, func(i, j int) bool {
		a, b := accounts[i].Ledger, accounts[j].Ledger
		if a.GroupName != b.GroupName {
			return a.GroupName < b.GroupName
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
