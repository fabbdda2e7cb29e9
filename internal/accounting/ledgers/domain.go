package ledgers

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Patchable field names, shared by update payloads and allow-lists.
const (
	FieldName           = "name"
	FieldAlias          = "alias"
	FieldDescription    = "description"
	FieldGroup          = "group_id"
	FieldOpeningBalance = "opening_balance"
	FieldBalanceType    = "balance_type"
	FieldActive         = "is_active"
)

// AllFields is the allow-list stamped onto custom ledgers.
func AllFields() []string {
	return []string{FieldName, FieldAlias, FieldDescription, FieldGroup, FieldOpeningBalance, FieldBalanceType, FieldActive}
}

// Ledger is a posting account.
type Ledger struct {
	ID             int64            `json:"id"`
	TenantID       int64            `json:"tenant_id"`
	GroupID        int64            `json:"group_id"`
	Name           string           `json:"name"`
	Alias          string           `json:"alias,omitempty"`
	Description    string           `json:"description,omitempty"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	BalanceType    posting.Polarity `json:"balance_type"`
	CurrentBalance decimal.Decimal  `json:"current_balance"`
	IsDefault      bool             `json:"is_default"`
	IsEditable     bool             `json:"is_editable"`
	IsDeletable    bool             `json:"is_deletable"`
	EditableFields []string         `json:"editable_fields"`
	IsActive       bool             `json:"is_active"`
	CreatedBy      int64            `json:"created_by"`
	UpdatedBy      int64            `json:"updated_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Editable reports whether field may be patched on this ledger.
func (l Ledger) Editable(field string) bool {
	if !l.IsDefault && l.IsEditable {
		return true
	}
	for _, f := range l.EditableFields {
		if f == field {
			return true
		}
	}
	return false
}

// CreateInput is a new custom ledger.
type CreateInput struct {
	Name           string          `json:"name" validate:"required,max=150"`
	Alias          string          `json:"alias" validate:"max=150"`
	Description    string          `json:"description" validate:"max=500"`
	GroupID        int64           `json:"group_id" validate:"required,gt=0"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	BalanceType    string          `json:"balance_type" validate:"required"`
}

// UpdateInput is a partial update; nil fields are untouched.
type UpdateInput struct {
	Name           *string          `json:"name" validate:"omitempty,min=1,max=150"`
	Alias          *string          `json:"alias" validate:"omitempty,max=150"`
	Description    *string          `json:"description" validate:"omitempty,max=500"`
	GroupID        *int64           `json:"group_id" validate:"omitempty,gt=0"`
	OpeningBalance *decimal.Decimal `json:"opening_balance"`
	BalanceType    *string          `json:"balance_type"`
	IsActive       *bool            `json:"is_active"`
}

// Fields lists the field names the update touches.
func (in UpdateInput) Fields() []string {
	var out []string
	if in.Name != nil {
		out = append(out, FieldName)
	}
	if in.Alias != nil {
		out = append(out, FieldAlias)
	}
	if in.Description != nil {
		out = append(out, FieldDescription)
	}
	if in.GroupID != nil {
		out = append(out, FieldGroup)
	}
	if in.OpeningBalance != nil {
		out = append(out, FieldOpeningBalance)
	}
	if in.BalanceType != nil {
		out = append(out, FieldBalanceType)
	}
	if in.IsActive != nil {
		out = append(out, FieldActive)
	}
	return out
}

// ListFilter narrows ledger listings.
type ListFilter struct {
	GroupID    int64
	ActiveOnly bool
}

// Balance is a ledger balance derived from its posting history.
type Balance struct {
	LedgerID     int64            `json:"ledger_id"`
	Name         string           `json:"name"`
	BalanceType  posting.Polarity `json:"balance_type"`
	Opening      decimal.Decimal  `json:"opening"`
	TotalDebits  decimal.Decimal  `json:"total_debits"`
	TotalCredits decimal.Decimal  `json:"total_credits"`
	Balance      decimal.Decimal  `json:"balance"`
	Label        string           `json:"label"`
	AsOf         *time.Time       `json:"as_of,omitempty"`
}

var (
	ErrLedgerNotFound = fmt.Errorf("%w: ledgers: ledger not found", shared.ErrNotFound)
	ErrGroupNotFound  = fmt.Errorf("%w: ledgers: group not found", shared.ErrNotFound)
	ErrDuplicateName  = fmt.Errorf("%w: ledgers: a ledger with this name already exists", shared.ErrConflict)
	ErrDefaultLedger  = fmt.Errorf("%w: ledgers: default ledgers cannot be deleted", shared.ErrPermissionDenied)
	ErrLedgerInUse    = fmt.Errorf("%w: ledgers: ledger is referenced by transactions", shared.ErrPermissionDenied)
	ErrNonZeroBalance = fmt.Errorf("%w: ledgers: ledger carries a non-zero balance", shared.ErrPermissionDenied)

	ErrNegativeOpening = shared.NewValidationError("ledgers: opening balance must not be negative", FieldOpeningBalance)
)
