package vouchers

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Type is the kind of business document a voucher records.
type Type string

const (
	TypeReceipt    Type = "RECEIPT"
	TypePayment    Type = "PAYMENT"
	TypeJournal    Type = "JOURNAL"
	TypeContra     Type = "CONTRA"
	TypeDebitNote  Type = "DEBIT_NOTE"
	TypeCreditNote Type = "CREDIT_NOTE"
)

// Types lists every voucher type.
func Types() []Type {
	return []Type{TypeReceipt, TypePayment, TypeJournal, TypeContra, TypeDebitNote, TypeCreditNote}
}

// ParseType accepts the voucher type in any case, with '-' or ' ' for '_'.
func ParseType(raw string) (Type, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, t := range Types() {
		if Type(norm) == t {
			return t, nil
		}
	}
	return "", shared.NewValidationError(fmt.Sprintf("unknown voucher type %q", raw), "type")
}

// Prefix is the first three letters of the type, used in voucher numbers.
func (t Type) Prefix() string {
	return string(t)[:3]
}

// Status is the lifecycle state of a voucher.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// Voucher is a two-party double-entry transaction.
type Voucher struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	Number         string          `json:"voucher_number"`
	Type           Type            `json:"type"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	DebitLedgerID  int64           `json:"debit_ledger_id"`
	CreditLedgerID int64           `json:"credit_ledger_id"`
	Status         Status          `json:"status"`
	PostedAt       *time.Time      `json:"posted_at,omitempty"`
	PostedBy       *int64          `json:"posted_by,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy    *int64          `json:"cancelled_by,omitempty"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	UpdatedBy      int64           `json:"updated_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Posting converts the voucher into its posting form.
func (v Voucher) Posting() posting.Posting {
	return posting.Posting{
		VoucherID:      v.ID,
		VoucherNumber:  v.Number,
		VoucherType:    string(v.Type),
		Date:           v.Date,
		Description:    v.Description,
		Amount:         v.Amount,
		DebitLedgerID:  v.DebitLedgerID,
		CreditLedgerID: v.CreditLedgerID,
	}
}

// CreateInput records a new voucher, optionally posting it in the same unit of work.
type CreateInput struct {
	Type            string          `json:"type" validate:"required"`
	Date            time.Time       `json:"date" validate:"required"`
	Description     string          `json:"description" validate:"max=500"`
	Reference       string          `json:"reference" validate:"max=100"`
	Amount          decimal.Decimal `json:"amount"`
	DebitLedgerID   int64           `json:"debit_ledger_id" validate:"required,gt=0"`
	CreditLedgerID  int64           `json:"credit_ledger_id" validate:"required,gt=0"`
	PostImmediately bool            `json:"post_immediately"`
	IdempotencyKey  *uuid.UUID      `json:"idempotency_key,omitempty"`
}

// UpdateInput changes a draft voucher; nil fields are untouched.
type UpdateInput struct {
	Date           *time.Time       `json:"date"`
	Description    *string          `json:"description" validate:"omitempty,max=500"`
	Reference      *string          `json:"reference" validate:"omitempty,max=100"`
	Amount         *decimal.Decimal `json:"amount"`
	DebitLedgerID  *int64           `json:"debit_ledger_id" validate:"omitempty,gt=0"`
	CreditLedgerID *int64           `json:"credit_ledger_id" validate:"omitempty,gt=0"`
}

// Empty reports whether the update changes nothing.
func (in UpdateInput) Empty() bool {
	return in.Date == nil && in.Description == nil && in.Reference == nil && in.Amount == nil &&
		in.DebitLedgerID == nil && in.CreditLedgerID == nil
}

// ListFilter narrows voucher listings.
type ListFilter struct {
	TenantID int64
	Type     Type
	Status   Status
	LedgerID int64
	From     *time.Time
	To       *time.Time
	GroupIDs []int64
	Page     shared.Pagination
}

// StatRow counts vouchers per type, status and posted flag.
type StatRow struct {
	Type   Type            `json:"type"`
	Status Status          `json:"status"`
	Posted bool            `json:"posted"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// LedgerRef is the slice of a ledger the posting engine needs.
type LedgerRef struct {
	ID             int64
	GroupID        int64
	Name           string
	BalanceType    posting.Polarity
	CurrentBalance decimal.Decimal
	IsActive       bool
}

var (
	ErrVoucherNotFound  = fmt.Errorf("%w: vouchers: voucher not found", shared.ErrNotFound)
	ErrLedgerNotFound   = fmt.Errorf("%w: vouchers: ledger not found", shared.ErrNotFound)
	ErrAlreadyPosted    = fmt.Errorf("%w: vouchers: voucher is already posted", shared.ErrConflict)
	ErrAlreadyCancelled = fmt.Errorf("%w: vouchers: voucher is already cancelled", shared.ErrConflict)
	ErrNotDraft         = fmt.Errorf("%w: vouchers: only draft vouchers can be changed", shared.ErrConflict)
	ErrPostedImmutable  = fmt.Errorf("%w: vouchers: posted vouchers cannot be deleted", shared.ErrConflict)
	ErrDuplicateNumber  = fmt.Errorf("%w: vouchers: voucher number already issued", shared.ErrConflict)
	ErrDuplicateRequest = fmt.Errorf("%w: vouchers: idempotency key already used", shared.ErrConflict)
	ErrPartialPosting   = fmt.Errorf("%w: vouchers: ledger balance update did not apply", shared.ErrIntegrity)
	ErrUnbalanced       = fmt.Errorf("%w: vouchers: posting does not net to zero", shared.ErrIntegrity)

	ErrNonPositiveAmount = shared.NewValidationError("vouchers: amount must be greater than zero", "amount")
	ErrSelfReference     = shared.NewValidationError("vouchers: debit and credit ledgers must differ", "credit_ledger_id", "debit_ledger_id")
	ErrInactiveLedger    = shared.NewValidationError("vouchers: ledger is inactive", "credit_ledger_id", "debit_ledger_id")
)
