package permissions

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Action is the closed set of capabilities a grant can confer.
type Action string

const (
	ActionViewLedger        Action = "view_ledger"
	ActionCreateLedger      Action = "create_ledger"
	ActionEditLedger        Action = "edit_ledger"
	ActionDeleteLedger      Action = "delete_ledger"
	ActionCreateTransaction Action = "create_transaction"
	ActionEditTransaction   Action = "edit_transaction"
	ActionDeleteTransaction Action = "delete_transaction"
	ActionViewTransaction   Action = "view_transaction"
	ActionViewReport        Action = "view_report"
	ActionExportReport      Action = "export_report"
	ActionViewBalance       Action = "view_balance"
	ActionModifyBalance     Action = "modify_balance"
	ActionSetOpeningBalance Action = "set_opening_balance"
	ActionCreateSubGroup    Action = "create_sub_group"
	ActionEditGroup         Action = "edit_group"
	ActionDeleteGroup       Action = "delete_group"
)

// Actions lists every action in declaration order.
func Actions() []Action {
	return []Action{
		ActionViewLedger, ActionCreateLedger, ActionEditLedger, ActionDeleteLedger,
		ActionCreateTransaction, ActionEditTransaction, ActionDeleteTransaction, ActionViewTransaction,
		ActionViewReport, ActionExportReport, ActionViewBalance, ActionModifyBalance, ActionSetOpeningBalance,
		ActionCreateSubGroup, ActionEditGroup, ActionDeleteGroup,
	}
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	var probe Capabilities
	_, ok := probe.flag(a)
	return ok
}

// ParseAction rejects unknown action names instead of silently denying them.
func ParseAction(raw string) (Action, error) {
	a := Action(raw)
	if !a.Valid() {
		return "", shared.NewValidationError(fmt.Sprintf("unknown action %q", raw), "action")
	}
	return a, nil
}

// Capabilities are the per-action flags of a grant.
type Capabilities struct {
	CanViewLedger        bool `json:"can_view_ledger"`
	CanCreateLedger      bool `json:"can_create_ledger"`
	CanEditLedger        bool `json:"can_edit_ledger"`
	CanDeleteLedger      bool `json:"can_delete_ledger"`
	CanCreateTransaction bool `json:"can_create_transaction"`
	CanEditTransaction   bool `json:"can_edit_transaction"`
	CanDeleteTransaction bool `json:"can_delete_transaction"`
	CanViewTransaction   bool `json:"can_view_transaction"`
	CanViewReport        bool `json:"can_view_report"`
	CanExportReport      bool `json:"can_export_report"`
	CanViewBalance       bool `json:"can_view_balance"`
	CanModifyBalance     bool `json:"can_modify_balance"`
	CanSetOpeningBalance bool `json:"can_set_opening_balance"`
	CanCreateSubGroup    bool `json:"can_create_sub_group"`
	CanEditGroup         bool `json:"can_edit_group"`
	CanDeleteGroup       bool `json:"can_delete_group"`
}

func (c Capabilities) flag(a Action) (bool, bool) {
	switch a {
	case ActionViewLedger:
		return c.CanViewLedger, true
	case ActionCreateLedger:
		return c.CanCreateLedger, true
	case ActionEditLedger:
		return c.CanEditLedger, true
	case ActionDeleteLedger:
		return c.CanDeleteLedger, true
	case ActionCreateTransaction:
		return c.CanCreateTransaction, true
	case ActionEditTransaction:
		return c.CanEditTransaction, true
	case ActionDeleteTransaction:
		return c.CanDeleteTransaction, true
	case ActionViewTransaction:
		return c.CanViewTransaction, true
	case ActionViewReport:
		return c.CanViewReport, true
	case ActionExportReport:
		return c.CanExportReport, true
	case ActionViewBalance:
		return c.CanViewBalance, true
	case ActionModifyBalance:
		return c.CanModifyBalance, true
	case ActionSetOpeningBalance:
		return c.CanSetOpeningBalance, true
	case ActionCreateSubGroup:
		return c.CanCreateSubGroup, true
	case ActionEditGroup:
		return c.CanEditGroup, true
	case ActionDeleteGroup:
		return c.CanDeleteGroup, true
	}
	return false, false
}

// Allows reports whether the flag for a is set. Unknown actions are never allowed.
func (c Capabilities) Allows(a Action) bool {
	allowed, _ := c.flag(a)
	return allowed
}

// Status of a grant row.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// GroupPermission grants a user capabilities on one group.
type GroupPermission struct {
	ID       int64 `json:"id"`
	TenantID int64 `json:"tenant_id"`
	UserID   int64 `json:"user_id"`
	GroupID  int64 `json:"group_id"`
	Capabilities
	IsRestricted  bool       `json:"is_restricted"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	Status        Status     `json:"status"`
	GrantedBy     int64      `json:"granted_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// EffectiveAt reports whether now lies inside the grant's window.
func (p GroupPermission) EffectiveAt(now time.Time) bool {
	if p.EffectiveFrom != nil && now.Before(*p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && now.After(*p.EffectiveTo) {
		return false
	}
	return true
}

// Usable reports whether the grant can confer anything at now.
func (p GroupPermission) Usable(now time.Time) bool {
	return p.Status == StatusActive && !p.IsRestricted && p.EffectiveAt(now)
}

// Grants reports whether the grant confers a at now.
func (p GroupPermission) Grants(a Action, now time.Time) bool {
	return p.Usable(now) && p.Allows(a)
}

// GrantInput creates or replaces the grant of a user on a group.
type GrantInput struct {
	UserID  int64 `json:"user_id" validate:"required,gt=0"`
	GroupID int64 `json:"group_id" validate:"required,gt=0"`
	Capabilities
	IsRestricted  bool       `json:"is_restricted"`
	EffectiveFrom *time.Time `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to"`
}

var (
	ErrGrantNotFound = fmt.Errorf("%w: permissions: grant not found", shared.ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("%w: permissions: user not found", shared.ErrNotFound)
	ErrAdminOnly     = fmt.Errorf("%w: permissions: only administrators manage grants", shared.ErrPermissionDenied)
	ErrBadWindow     = shared.NewValidationError("permissions: effective_to must not precede effective_from", "effective_from", "effective_to")
)
