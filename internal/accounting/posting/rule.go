// Package posting implements the double-entry posting rule shared by the
// transaction engine and the reporting replay.
package posting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Polarity is the side on which a ledger's balance naturally increases.
type Polarity string

const (
	PolarityDebit  Polarity = "DEBIT"
	PolarityCredit Polarity = "CREDIT"
)

// ParsePolarity accepts Debit/Credit in any case.
func ParsePolarity(raw string) (Polarity, error) {
	switch Polarity(strings.ToUpper(strings.TrimSpace(raw))) {
	case PolarityDebit:
		return PolarityDebit, nil
	case PolarityCredit:
		return PolarityCredit, nil
	}
	return "", shared.NewValidationError(fmt.Sprintf("balance type must be DEBIT or CREDIT, got %q", raw), "balance_type")
}

// Valid reports whether p is one of the two polarities.
func (p Polarity) Valid() bool {
	return p == PolarityDebit || p == PolarityCredit
}

// Opposite returns the other polarity.
func (p Polarity) Opposite() Polarity {
	if p == PolarityDebit {
		return PolarityCredit
	}
	return PolarityDebit
}

// Side identifies which party of a posting a ledger is.
type Side int

const (
	SideNone Side = iota
	SideDebit
	SideCredit
)

// Delta returns how a posting of amount moves the balance of a ledger with
// polarity p sitting on side: +amount when the side matches the polarity,
// -amount otherwise.
func Delta(p Polarity, side Side, amount decimal.Decimal) decimal.Decimal {
	switch {
	case side == SideDebit && p == PolarityDebit, side == SideCredit && p == PolarityCredit:
		return amount
	case side == SideDebit, side == SideCredit:
		return amount.Neg()
	}
	return decimal.Zero
}

// Signed converts a natural balance into debit-positive terms.
func Signed(p Polarity, balance decimal.Decimal) decimal.Decimal {
	if p == PolarityCredit {
		return balance.Neg()
	}
	return balance
}

// Label returns Dr or Cr for a natural balance of a ledger with polarity p.
func Label(p Polarity, balance decimal.Decimal) string {
	if Signed(p, balance).IsNegative() {
		return "Cr"
	}
	return "Dr"
}

// Posting is one posted voucher as seen by the replay.
type Posting struct {
	VoucherID      int64
	VoucherNumber  string
	VoucherType    string
	Date           time.Time
	Description    string
	Amount         decimal.Decimal
	DebitLedgerID  int64
	CreditLedgerID int64
}

// SideOf reports which side of the posting ledgerID is on.
func (p Posting) SideOf(ledgerID int64) Side {
	switch ledgerID {
	case p.DebitLedgerID:
		return SideDebit
	case p.CreditLedgerID:
		return SideCredit
	}
	return SideNone
}

// Counterparty returns the other ledger of the posting.
func (p Posting) Counterparty(ledgerID int64) int64 {
	if ledgerID == p.DebitLedgerID {
		return p.CreditLedgerID
	}
	return p.DebitLedgerID
}

// Running accumulates a ledger balance while postings are replayed in
// chronological order.
type Running struct {
	LedgerID     int64
	Polarity     Polarity
	Opening      decimal.Decimal
	Balance      decimal.Decimal
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
}

// NewRunning starts a replay from the opening balance.
func NewRunning(ledgerID int64, polarity Polarity, opening decimal.Decimal) *Running {
	return &Running{LedgerID: ledgerID, Polarity: polarity, Opening: opening, Balance: opening}
}

// Apply folds p into the running balance. Postings not touching the ledger
// are ignored and reported with SideNone.
func (r *Running) Apply(p Posting) (Side, decimal.Decimal) {
	side := p.SideOf(r.LedgerID)
	if side == SideNone {
		return SideNone, decimal.Zero
	}
	delta := Delta(r.Polarity, side, p.Amount)
	r.Balance = r.Balance.Add(delta)
	if side == SideDebit {
		r.TotalDebits = r.TotalDebits.Add(p.Amount)
	} else {
		r.TotalCredits = r.TotalCredits.Add(p.Amount)
	}
	return side, delta
}

// Replay folds postings onto the opening balance.
func Replay(ledgerID int64, polarity Polarity, opening decimal.Decimal, postings []Posting) Running {
	running := NewRunning(ledgerID, polarity, opening)
	for _, p := range postings {
		running.Apply(p)
	}
	return *running
}
