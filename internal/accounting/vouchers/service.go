package vouchers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// AuditPort records voucher changes after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Authorizer checks capabilities on the groups owning the voucher's ledgers.
type Authorizer interface {
	HasPermission(ctx context.Context, actor shared.Actor, groupID int64, action permissions.Action) bool
	HasAnyPermission(ctx context.Context, actor shared.Actor, action permissions.Action) bool
	AccessibleGroups(ctx context.Context, actor shared.Actor) ([]groups.Group, error)
}

// Recorder observes lifecycle transitions.
type Recorder interface {
	VoucherTransition(voucherType, status string)
}

// Service is the transaction engine: it records vouchers and applies their
// postings to ledger balances atomically.
type Service struct {
	repo     Repository
	authz    Authorizer
	audit    AuditPort
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewService constructs the engine.
func NewService(repo Repository, authz Authorizer, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, audit: audit, logger: logger, now: time.Now}
}

// WithRecorder attaches a transition observer.
func (s *Service) WithRecorder(r Recorder) {
	s.recorder = r
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) authorize(ctx context.Context, actor shared.Actor, action permissions.Action, refs ...LedgerRef) error {
	for _, ref := range refs {
		if !s.authz.HasPermission(ctx, actor, ref.GroupID, action) {
			return fmt.Errorf("%w: %s on ledger %q", shared.ErrPermissionDenied, action, ref.Name)
		}
	}
	return nil
}

func checkParties(amount decimal.Decimal, debitID, creditID int64) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if debitID == creditID {
		return ErrSelfReference
	}
	return nil
}

func getParties(ctx context.Context, tx TxRepository, tenantID, debitID, creditID int64) (LedgerRef, LedgerRef, error) {
	debit, err := tx.GetLedger(ctx, tenantID, debitID)
	if err != nil {
		return LedgerRef{}, LedgerRef{}, err
	}
	credit, err := tx.GetLedger(ctx, tenantID, creditID)
	if err != nil {
		return LedgerRef{}, LedgerRef{}, err
	}
	return debit, credit, nil
}

// loadParties also requires both ledgers to be active.
func loadParties(ctx context.Context, tx TxRepository, tenantID, debitID, creditID int64) (LedgerRef, LedgerRef, error) {
	debit, credit, err := getParties(ctx, tx, tenantID, debitID, creditID)
	if err != nil {
		return LedgerRef{}, LedgerRef{}, err
	}
	if !debit.IsActive || !credit.IsActive {
		return LedgerRef{}, LedgerRef{}, ErrInactiveLedger
	}
	return debit, credit, nil
}

// Create records a draft voucher and, when asked, posts it in the same unit of work.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Voucher, error) {
	if err := shared.Validate(in); err != nil {
		return Voucher{}, err
	}
	vtype, err := ParseType(in.Type)
	if err != nil {
		return Voucher{}, err
	}
	if err := checkParties(in.Amount, in.DebitLedgerID, in.CreditLedgerID); err != nil {
		return Voucher{}, err
	}
	date := dateOnly(in.Date)

	var created Voucher
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != nil {
			if err := tx.ClaimIdempotencyKey(ctx, actor.TenantID, *in.IdempotencyKey); err != nil {
				return err
			}
		}
		debit, credit, err := loadParties(ctx, tx, actor.TenantID, in.DebitLedgerID, in.CreditLedgerID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, permissions.ActionCreateTransaction, debit, credit); err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, SequenceKey(actor.TenantID, vtype, date))
		if err != nil {
			return fmt.Errorf("vouchers: allocate number: %w", err)
		}
		now := s.now()
		v, err := tx.InsertVoucher(ctx, Voucher{
			TenantID:       actor.TenantID,
			Number:         FormatNumber(vtype, date, seq),
			Type:           vtype,
			Date:           date,
			Description:    strings.TrimSpace(in.Description),
			Reference:      strings.TrimSpace(in.Reference),
			Amount:         in.Amount,
			DebitLedgerID:  debit.ID,
			CreditLedgerID: credit.ID,
			Status:         StatusDraft,
			CreatedBy:      actor.UserID,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		if in.PostImmediately {
			if err := s.applyPosting(ctx, tx, v, false); err != nil {
				return err
			}
			markPosted(&v, actor.UserID, now)
			if err := tx.UpdateVoucher(ctx, v); err != nil {
				return err
			}
		}
		created = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.after(ctx, actor, "voucher.create", created, map[string]any{"number": created.Number, "amount": created.Amount.String()})
	return created, nil
}

// Post moves a draft voucher to Posted and applies its amounts.
func (s *Service) Post(ctx context.Context, actor shared.Actor, id int64) (Voucher, error) {
	var posted Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		switch v.Status {
		case StatusPosted:
			return ErrAlreadyPosted
		case StatusCancelled:
			return ErrAlreadyCancelled
		}
		debit, credit, err := loadParties(ctx, tx, actor.TenantID, v.DebitLedgerID, v.CreditLedgerID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, permissions.ActionCreateTransaction, debit, credit); err != nil {
			return err
		}
		if err := s.applyPosting(ctx, tx, v, false); err != nil {
			return err
		}
		markPosted(&v, actor.UserID, s.now())
		if err := tx.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		posted = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.after(ctx, actor, "voucher.post", posted, map[string]any{"number": posted.Number})
	return posted, nil
}

// Cancel voids a voucher. A posted voucher has its amounts reversed.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, reason string) (Voucher, error) {
	var cancelled Voucher
	var wasPosted bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if v.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		debit, credit, err := getParties(ctx, tx, actor.TenantID, v.DebitLedgerID, v.CreditLedgerID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, permissions.ActionEditTransaction, debit, credit); err != nil {
			return err
		}
		wasPosted = v.Status == StatusPosted
		if wasPosted {
			if err := s.applyPosting(ctx, tx, v, true); err != nil {
				return err
			}
		}
		now := s.now()
		userID := actor.UserID
		v.Status = StatusCancelled
		v.CancelledAt = &now
		v.CancelledBy = &userID
		v.CancelReason = strings.TrimSpace(reason)
		v.UpdatedBy = actor.UserID
		v.UpdatedAt = now
		if err := tx.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		cancelled = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.after(ctx, actor, "voucher.cancel", cancelled, map[string]any{"number": cancelled.Number, "reversed": wasPosted, "reason": cancelled.CancelReason})
	return cancelled, nil
}

// Update edits a draft voucher. Its number is kept even if the date moves.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, in UpdateInput) (Voucher, error) {
	if err := shared.Validate(in); err != nil {
		return Voucher{}, err
	}
	if in.Empty() {
		return Voucher{}, shared.NewValidationError("vouchers: nothing to update")
	}
	var updated Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if v.Status != StatusDraft {
			return ErrNotDraft
		}
		oldDebit, oldCredit, err := getParties(ctx, tx, actor.TenantID, v.DebitLedgerID, v.CreditLedgerID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, permissions.ActionEditTransaction, oldDebit, oldCredit); err != nil {
			return err
		}
		if in.Date != nil {
			v.Date = dateOnly(*in.Date)
		}
		if in.Description != nil {
			v.Description = strings.TrimSpace(*in.Description)
		}
		if in.Reference != nil {
			v.Reference = strings.TrimSpace(*in.Reference)
		}
		if in.Amount != nil {
			v.Amount = *in.Amount
		}
		if in.DebitLedgerID != nil {
			v.DebitLedgerID = *in.DebitLedgerID
		}
		if in.CreditLedgerID != nil {
			v.CreditLedgerID = *in.CreditLedgerID
		}
		if err := checkParties(v.Amount, v.DebitLedgerID, v.CreditLedgerID); err != nil {
			return err
		}
		debit, credit, err := loadParties(ctx, tx, actor.TenantID, v.DebitLedgerID, v.CreditLedgerID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, permissions.ActionEditTransaction, debit, credit); err != nil {
			return err
		}
		v.UpdatedBy = actor.UserID
		v.UpdatedAt = s.now()
		if err := tx.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		updated = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.after(ctx, actor, "voucher.update", updated, map[string]any{"number": updated.Number})
	return updated, nil
}

// Delete removes a voucher that has never been posted.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	var deleted Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if v.Status == StatusPosted || v.PostedAt != nil {
			return ErrPostedImmutable
		}
		debit, credit, err := getParties(ctx, tx, actor.TenantID, v.DebitLedgerID, v.CreditLedgerID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, permissions.ActionDeleteTransaction, debit, credit); err != nil {
			return err
		}
		deleted = v
		return tx.DeleteVoucher(ctx, actor.TenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "voucher.delete", deleted.ID, map[string]any{"number": deleted.Number})
	return nil
}

// Get returns a voucher whose ledgers the actor may view.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Voucher, error) {
	var v Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		v, err = tx.GetVoucher(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		debit, credit, err := getParties(ctx, tx, actor.TenantID, v.DebitLedgerID, v.CreditLedgerID)
		if err != nil {
			return err
		}
		if s.authz.HasPermission(ctx, actor, debit.GroupID, permissions.ActionViewTransaction) ||
			s.authz.HasPermission(ctx, actor, credit.GroupID, permissions.ActionViewTransaction) {
			return nil
		}
		return fmt.Errorf("%w: %s", shared.ErrPermissionDenied, permissions.ActionViewTransaction)
	})
	return v, err
}

// List pages through vouchers touching a ledger of a group the actor may view.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Voucher, shared.Pagination, error) {
	filter.TenantID = actor.TenantID
	filter.Page.Page, filter.Page.PerPage = shared.NormalizePage(filter.Page.Page, filter.Page.PerPage)
	if !actor.IsAdmin() {
		accessible, err := s.authz.AccessibleGroups(ctx, actor)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		filter.GroupIDs = []int64{}
		for _, g := range accessible {
			if s.authz.HasPermission(ctx, actor, g.ID, permissions.ActionViewTransaction) {
				filter.GroupIDs = append(filter.GroupIDs, g.ID)
			}
		}
		if len(filter.GroupIDs) == 0 {
			return []Voucher{}, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, 0), nil
		}
	}
	var (
		out   []Voucher
		total int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, total, err = tx.ListVouchers(ctx, filter)
		return err
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Stats counts vouchers by type, status and posted flag.
func (s *Service) Stats(ctx context.Context, actor shared.Actor, from, to *time.Time) ([]StatRow, error) {
	if !s.authz.HasAnyPermission(ctx, actor, permissions.ActionViewReport) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPermissionDenied, permissions.ActionViewReport)
	}
	var rows []StatRow
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rows, err = tx.Stats(ctx, actor.TenantID, from, to)
		return err
	})
	return rows, err
}

// applyPosting moves both ledger balances by the voucher amount, or by its
// negation when reverse is set. Ledger rows are locked in ascending id order
// so concurrent postings over the same pair cannot deadlock.
func (s *Service) applyPosting(ctx context.Context, tx TxRepository, v Voucher, reverse bool) error {
	p := v.Posting()
	if reverse {
		p.Amount = p.Amount.Neg()
	}
	ids := []int64{v.DebitLedgerID, v.CreditLedgerID}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	net := decimal.Zero
	for _, id := range ids {
		ledger, err := tx.LockLedger(ctx, v.TenantID, id)
		if err != nil {
			return err
		}
		run := posting.NewRunning(ledger.ID, ledger.BalanceType, ledger.CurrentBalance)
		_, delta := run.Apply(p)
		net = net.Add(posting.Signed(ledger.BalanceType, delta))
		affected, err := tx.SetLedgerBalance(ctx, v.TenantID, id, run.Balance)
		if err != nil {
			return err
		}
		if affected != 1 {
			s.logger.Error("ledger balance update affected unexpected rows",
				slog.Int64("tenant_id", v.TenantID),
				slog.Int64("voucher_id", v.ID),
				slog.Int64("ledger_id", id),
				slog.Int64("rows", affected))
			return ErrPartialPosting
		}
	}
	if !net.IsZero() {
		s.logger.Error("posting does not net to zero", slog.Int64("voucher_id", v.ID), slog.String("net", net.String()))
		return ErrUnbalanced
	}
	return nil
}

func markPosted(v *Voucher, userID int64, now time.Time) {
	v.Status = StatusPosted
	v.PostedAt = &now
	v.PostedBy = &userID
	v.UpdatedBy = userID
	v.UpdatedAt = now
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) after(ctx context.Context, actor shared.Actor, action string, v Voucher, meta map[string]any) {
	if s.recorder != nil {
		s.recorder.VoucherTransition(string(v.Type), string(v.Status))
	}
	s.record(ctx, actor, action, v.ID, meta)
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "voucher",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
