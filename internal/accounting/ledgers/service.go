package ledgers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// AuditPort records ledger changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Authorizer checks group-scoped capabilities.
type Authorizer interface {
	HasPermission(ctx context.Context, actor shared.Actor, groupID int64, action permissions.Action) bool
	Authorize(ctx context.Context, actor shared.Actor, groupID int64, action permissions.Action) error
}

// Service manages ledgers.
type Service struct {
	repo  Repository
	authz Authorizer
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, authz Authorizer, audit AuditPort) *Service {
	return &Service{repo: repo, authz: authz, audit: audit, now: time.Now}
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create adds a custom ledger. Custom ledgers are fully editable and deletable.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Ledger, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.Validate(in); err != nil {
		return Ledger{}, err
	}
	polarity, err := posting.ParsePolarity(in.BalanceType)
	if err != nil {
		return Ledger{}, err
	}
	if in.OpeningBalance.IsNegative() {
		return Ledger{}, ErrNegativeOpening
	}
	if err := s.requireGroup(ctx, actor.TenantID, in.GroupID); err != nil {
		return Ledger{}, err
	}
	if err := s.authz.Authorize(ctx, actor, in.GroupID, permissions.ActionCreateLedger); err != nil {
		return Ledger{}, err
	}
	if !in.OpeningBalance.IsZero() {
		if err := s.authz.Authorize(ctx, actor, in.GroupID, permissions.ActionSetOpeningBalance); err != nil {
			return Ledger{}, err
		}
	}

	var created Ledger
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.GroupExists(ctx, actor.TenantID, in.GroupID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrGroupNotFound
		}
		key := shared.NameKey(in.Name)
		taken, err := tx.NameTaken(ctx, actor.TenantID, key, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateName
		}
		created, err = tx.InsertLedger(ctx, Ledger{
			TenantID:       actor.TenantID,
			GroupID:        in.GroupID,
			Name:           in.Name,
			Alias:          strings.TrimSpace(in.Alias),
			Description:    in.Description,
			OpeningBalance: in.OpeningBalance,
			BalanceType:    polarity,
			CurrentBalance: in.OpeningBalance,
			IsEditable:     true,
			IsDeletable:    true,
			EditableFields: AllFields(),
			IsActive:       true,
			CreatedBy:      actor.UserID,
			CreatedAt:      s.now(),
		}, key)
		return err
	})
	if err != nil {
		return Ledger{}, err
	}
	s.record(ctx, actor, "ledger.create", created.ID, map[string]any{
		"name":            created.Name,
		"group_id":        created.GroupID,
		"opening_balance": created.OpeningBalance.String(),
	})
	return created, nil
}

// requireGroup reports an unknown or foreign group as not found before any
// permission check runs, so a missing target never surfaces as a denial.
// Writers re-check inside their unit of work.
func (s *Service) requireGroup(ctx context.Context, tenantID, groupID int64) error {
	return s.repo.WithSnapshot(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.GroupExists(ctx, tenantID, groupID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrGroupNotFound
		}
		return nil
	})
}

// Update patches a ledger. Patching a field outside a protected ledger's
// allow-list rejects the whole update and names the offending fields.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, in UpdateInput) (Ledger, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := shared.Validate(in); err != nil {
		return Ledger{}, err
	}
	touched := in.Fields()
	if len(touched) == 0 {
		return Ledger{}, shared.NewValidationError("ledgers: nothing to update")
	}
	var polarity posting.Polarity
	if in.BalanceType != nil {
		p, err := posting.ParsePolarity(*in.BalanceType)
		if err != nil {
			return Ledger{}, err
		}
		polarity = p
	}
	if in.OpeningBalance != nil && in.OpeningBalance.IsNegative() {
		return Ledger{}, ErrNegativeOpening
	}

	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return Ledger{}, err
	}
	if err := s.authz.Authorize(ctx, actor, current.GroupID, permissions.ActionEditLedger); err != nil {
		return Ledger{}, err
	}
	if in.OpeningBalance != nil {
		if err := s.authz.Authorize(ctx, actor, current.GroupID, permissions.ActionSetOpeningBalance); err != nil {
			return Ledger{}, err
		}
	}
	if in.GroupID != nil && *in.GroupID != current.GroupID {
		if err := s.requireGroup(ctx, actor.TenantID, *in.GroupID); err != nil {
			return Ledger{}, err
		}
		if err := s.authz.Authorize(ctx, actor, *in.GroupID, permissions.ActionCreateLedger); err != nil {
			return Ledger{}, err
		}
	}

	var updated Ledger
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.GetLedgerForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		var rejected []string
		for _, f := range touched {
			if !l.Editable(f) {
				rejected = append(rejected, f)
			}
		}
		if len(rejected) > 0 {
			return shared.NewValidationError("ledgers: fields are not editable on this ledger", rejected...)
		}
		if in.Name != nil {
			taken, err := tx.NameTaken(ctx, actor.TenantID, shared.NameKey(*in.Name), l.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateName
			}
			l.Name = *in.Name
		}
		if in.GroupID != nil {
			exists, err := tx.GroupExists(ctx, actor.TenantID, *in.GroupID)
			if err != nil {
				return err
			}
			if !exists {
				return ErrGroupNotFound
			}
			l.GroupID = *in.GroupID
		}
		if in.Alias != nil {
			l.Alias = strings.TrimSpace(*in.Alias)
		}
		if in.Description != nil {
			l.Description = *in.Description
		}
		if in.IsActive != nil {
			l.IsActive = *in.IsActive
		}
		if in.OpeningBalance != nil || in.BalanceType != nil {
			if in.OpeningBalance != nil {
				l.OpeningBalance = *in.OpeningBalance
			}
			if in.BalanceType != nil {
				l.BalanceType = polarity
			}
			postings, err := tx.ListPostings(ctx, actor.TenantID, l.ID, nil)
			if err != nil {
				return err
			}
			l.CurrentBalance = posting.Replay(l.ID, l.BalanceType, l.OpeningBalance, postings).Balance
		}
		l.UpdatedBy = actor.UserID
		l.UpdatedAt = s.now()
		if err := tx.UpdateLedger(ctx, l, shared.NameKey(l.Name)); err != nil {
			return err
		}
		updated = l
		return nil
	})
	if err != nil {
		return Ledger{}, err
	}
	s.record(ctx, actor, "ledger.update", id, map[string]any{"fields": touched})
	return updated, nil
}

// Delete removes an unused ledger with a zero balance.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, current.GroupID, permissions.ActionDeleteLedger); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.GetLedgerForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if !l.IsDeletable {
			return ErrDefaultLedger
		}
		refs, err := tx.CountVouchers(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrLedgerInUse
		}
		// Without postings the derived balance is the opening balance.
		if !l.OpeningBalance.IsZero() {
			return ErrNonZeroBalance
		}
		return tx.DeleteLedger(ctx, actor.TenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "ledger.delete", id, map[string]any{"name": current.Name})
	return nil
}

// Get returns a ledger the actor may view.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Ledger, error) {
	var l Ledger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		l, err = tx.GetLedger(ctx, actor.TenantID, id)
		return err
	})
	if err != nil {
		return Ledger{}, err
	}
	if err := s.authz.Authorize(ctx, actor, l.GroupID, permissions.ActionViewLedger); err != nil {
		return Ledger{}, err
	}
	return l, nil
}

// List returns the ledgers visible to the actor.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Ledger, error) {
	var all []Ledger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		all, err = tx.ListLedgers(ctx, actor.TenantID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	visible := make(map[int64]bool)
	out := make([]Ledger, 0, len(all))
	for _, l := range all {
		allowed, seen := visible[l.GroupID]
		if !seen {
			allowed = s.authz.HasPermission(ctx, actor, l.GroupID, permissions.ActionViewLedger)
			visible[l.GroupID] = allowed
		}
		if allowed {
			out = append(out, l)
		}
	}
	return out, nil
}

// BalanceAsOf replays the ledger's posted history up to and including asOf,
// or all of it when asOf is nil.
func (s *Service) BalanceAsOf(ctx context.Context, actor shared.Actor, id int64, asOf *time.Time) (Balance, error) {
	var bal Balance
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.GetLedger(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(ctx, actor, l.GroupID, permissions.ActionViewBalance); err != nil {
			return err
		}
		postings, err := tx.ListPostings(ctx, actor.TenantID, id, asOf)
		if err != nil {
			return err
		}
		run := posting.Replay(l.ID, l.BalanceType, l.OpeningBalance, postings)
		bal = Balance{
			LedgerID:     l.ID,
			Name:         l.Name,
			BalanceType:  l.BalanceType,
			Opening:      l.OpeningBalance,
			TotalDebits:  run.TotalDebits,
			TotalCredits: run.TotalCredits,
			Balance:      run.Balance,
			Label:        posting.Label(l.BalanceType, run.Balance),
			AsOf:         asOf,
		}
		return nil
	})
	return bal, err
}

// SeedLedger describes a protected ledger installed for every tenant.
type SeedLedger struct {
	Name           string
	Group          string
	BalanceType    posting.Polarity
	EditableFields []string
}

// DefaultLedgers lists the protected ledgers every tenant starts with.
func DefaultLedgers() []SeedLedger {
	return []SeedLedger{
		{Name: "Cash", Group: "Cash-in-Hand", BalanceType: posting.PolarityDebit,
			EditableFields: []string{FieldAlias, FieldDescription, FieldOpeningBalance}},
		{Name: "Profit & Loss A/c", Group: "Capital Account", BalanceType: posting.PolarityCredit,
			EditableFields: []string{FieldDescription, FieldOpeningBalance}},
	}
}

// Seed installs the default ledgers. groupIDs maps default group names to ids.
func (s *Service) Seed(ctx context.Context, tenantID, createdBy int64, groupIDs map[string]int64) ([]Ledger, error) {
	var seeded []Ledger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seeded = seeded[:0]
		for _, sl := range DefaultLedgers() {
			key := shared.NameKey(sl.Name)
			taken, err := tx.NameTaken(ctx, tenantID, key, 0)
			if err != nil {
				return err
			}
			if taken {
				continue
			}
			groupID, ok := groupIDs[sl.Group]
			if !ok {
				return fmt.Errorf("ledgers: seed group %q missing", sl.Group)
			}
			l, err := tx.InsertLedger(ctx, Ledger{
				TenantID:       tenantID,
				GroupID:        groupID,
				Name:           sl.Name,
				OpeningBalance: decimal.Zero,
				BalanceType:    sl.BalanceType,
				CurrentBalance: decimal.Zero,
				IsDefault:      true,
				EditableFields: sl.EditableFields,
				IsActive:       true,
				CreatedBy:      createdBy,
				CreatedAt:      s.now(),
			}, key)
			if err != nil {
				return fmt.Errorf("ledgers: seed %q: %w", sl.Name, err)
			}
			seeded = append(seeded, l)
		}
		return nil
	})
	return seeded, err
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "ledger",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
