package groups

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Type classifies a group and every ledger beneath it.
type Type string

const (
	TypeAsset     Type = "ASSET"
	TypeLiability Type = "LIABILITY"
	TypeCapital   Type = "CAPITAL"
	TypeIncome    Type = "INCOME"
	TypeExpense   Type = "EXPENSE"
)

// Valid reports whether t is a known group type.
func (t Type) Valid() bool {
	_, ok := Taxonomy[t]
	return ok
}

// ParseType accepts the group type in any case.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", shared.NewValidationError(fmt.Sprintf("unknown group type %q", raw), "type")
	}
	return t, nil
}

// OnBalanceSheet reports whether ledgers of this type appear on the balance sheet
// rather than the profit and loss statement.
func (t Type) OnBalanceSheet() bool {
	return t.Family() == FamilyBalanceSheet
}

// Group is a node of the chart of accounts tree.
type Group struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	Name        string    `json:"name"`
	Type        Type      `json:"type"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	IsDefault   bool      `json:"is_default"`
	IsEditable  bool      `json:"is_editable"`
	IsDeletable bool      `json:"is_deletable"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsRoot reports whether the group has no parent.
func (g Group) IsRoot() bool {
	return g.ParentID == nil
}

// CreateInput captures a new sub-group request. The type always comes from the parent.
type CreateInput struct {
	Name      string `json:"name" validate:"required,max=120"`
	ParentID  int64  `json:"parent_id" validate:"required,gt=0"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
}

// UpdateInput carries the mutable group fields; nil means unchanged.
type UpdateInput struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=120"`
	ParentID  *int64  `json:"parent_id" validate:"omitempty,gt=0"`
	SortOrder *int    `json:"sort_order" validate:"omitempty,gte=0"`
	IsActive  *bool   `json:"is_active"`
}

// Empty reports whether the update changes nothing.
func (in UpdateInput) Empty() bool {
	return in.Name == nil && in.ParentID == nil && in.SortOrder == nil && in.IsActive == nil
}
