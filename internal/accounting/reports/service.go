package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/permissions"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// Authorizer gates report access.
type Authorizer interface {
	HasPermission(ctx context.Context, actor shared.Actor, groupID int64, action permissions.Action) bool
	HasAnyPermission(ctx context.Context, actor shared.Actor, action permissions.Action) bool
}

// Config bounds report work.
type Config struct {
	MaxRange  time.Duration
	BatchSize int
}

const (
	defaultMaxRange  = 366 * 24 * time.Hour
	defaultBatchSize = 500
)

// Service computes reports by replaying posted vouchers inside one snapshot.
// Identical concurrent requests share a single computation; nothing is cached.
type Service struct {
	repo   Repository
	authz  Authorizer
	cfg    Config
	logger *slog.Logger
	flight singleflight.Group
	now    func() time.Time
}

// NewService constructs the reporting engine.
func NewService(repo Repository, authz Authorizer, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = defaultMaxRange
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, cfg: cfg, logger: logger, now: time.Now}
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) requireReports(ctx context.Context, actor shared.Actor) error {
	if s.authz.HasAnyPermission(ctx, actor, permissions.ActionViewReport) {
		return nil
	}
	return fmt.Errorf("%w: %s", shared.ErrPermissionDenied, permissions.ActionViewReport)
}

func (s *Service) asOf(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return dateOnly(t)
}

// normalize fills a missing end date and enforces the range limit.
func (s *Service) normalize(p Period) (Period, error) {
	p.To = s.asOf(p.To)
	if p.From == nil {
		return p, nil
	}
	from := dateOnly(*p.From)
	p.From = &from
	if from.After(p.To) {
		return Period{}, ErrInvertedRange
	}
	if p.To.Sub(from) > s.cfg.MaxRange {
		return Period{}, RangeTooLong(s.cfg.MaxRange)
	}
	return p, nil
}

// stream feeds every matching posting to fn one keyset batch at a time.
func (s *Service) stream(ctx context.Context, rd Reader, q PostingQuery, fn func(posting.Posting)) error {
	q.Limit = s.cfg.BatchSize
	for {
		batch, err := rd.Postings(ctx, q)
		if err != nil {
			return fmt.Errorf("reports: read postings: %w", err)
		}
		for _, p := range batch {
			fn(p)
		}
		if len(batch) < q.Limit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		last := batch[len(batch)-1]
		q.After = Cursor{Date: last.Date, VoucherID: last.VoucherID}
	}
}

// replayAll replays every ledger of the tenant up to and including to.
func (s *Service) replayAll(ctx context.Context, tenantID int64, to *time.Time, withOpening bool, from *time.Time) ([]AccountBalance, error) {
	var out []AccountBalance
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, rd Reader) error {
		ledgers, err := rd.Ledgers(ctx, tenantID)
		if err != nil {
			return err
		}
		rp := newReplayer(ledgers, withOpening)
		err = s.stream(ctx, rd, PostingQuery{TenantID: tenantID, To: to}, func(p posting.Posting) {
			if from != nil && p.Date.Before(*from) {
				return
			}
			rp.apply(p)
		})
		if err != nil {
			return err
		}
		out = rp.balances()
		return nil
	})
	return out, err
}

// coalesce runs fn once for all concurrent callers sharing key. The shared
// work runs detached from any single caller's cancellation; each caller stops
// waiting when its own context ends.
func coalesce[T any](ctx context.Context, s *Service, key string, fn func(context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// TrialBalance lists every ledger's closing balance as of a date.
func (s *Service) TrialBalance(ctx context.Context, actor shared.Actor, asOf time.Time) (TrialBalance, error) {
	if err := s.requireReports(ctx, actor); err != nil {
		return TrialBalance{}, err
	}
	asOf = s.asOf(asOf)
	key := fmt.Sprintf("tb:%d:%s", actor.TenantID, asOf.Format(time.DateOnly))
	return coalesce(ctx, s, key, func(ctx context.Context) (TrialBalance, error) {
		accounts, err := s.replayAll(ctx, actor.TenantID, &asOf, true, nil)
		if err != nil {
			return TrialBalance{}, err
		}
		return BuildTrialBalance(asOf, accounts), nil
	})
}

// BalanceSheet states assets against liabilities, capital and profit to date.
func (s *Service) BalanceSheet(ctx context.Context, actor shared.Actor, asOf time.Time) (BalanceSheet, error) {
	if err := s.requireReports(ctx, actor); err != nil {
		return BalanceSheet{}, err
	}
	asOf = s.asOf(asOf)
	key := fmt.Sprintf("bs:%d:%s", actor.TenantID, asOf.Format(time.DateOnly))
	return coalesce(ctx, s, key, func(ctx context.Context) (BalanceSheet, error) {
		accounts, err := s.replayAll(ctx, actor.TenantID, &asOf, true, nil)
		if err != nil {
			return BalanceSheet{}, err
		}
		return BuildBalanceSheet(asOf, accounts), nil
	})
}

// ProfitAndLoss reports income and expense for a period. Without a start
// date the opening balances are included; with one only the movement inside
// the period counts.
func (s *Service) ProfitAndLoss(ctx context.Context, actor shared.Actor, period Period) (ProfitAndLoss, error) {
	if err := s.requireReports(ctx, actor); err != nil {
		return ProfitAndLoss{}, err
	}
	period, err := s.normalize(period)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	key := fmt.Sprintf("pl:%d:%s", actor.TenantID, periodKey(period))
	return coalesce(ctx, s, key, func(ctx context.Context) (ProfitAndLoss, error) {
		accounts, err := s.replayAll(ctx, actor.TenantID, &period.To, period.From == nil, period.From)
		if err != nil {
			return ProfitAndLoss{}, err
		}
		return BuildProfitAndLoss(period, accounts), nil
	})
}

// CashFlow explains the movement of cash and bank ledgers over a period.
func (s *Service) CashFlow(ctx context.Context, actor shared.Actor, period Period) (CashFlow, error) {
	if err := s.requireReports(ctx, actor); err != nil {
		return CashFlow{}, err
	}
	period, err := s.normalize(period)
	if err != nil {
		return CashFlow{}, err
	}
	key := fmt.Sprintf("cf:%d:%s", actor.TenantID, periodKey(period))
	return coalesce(ctx, s, key, func(ctx context.Context) (CashFlow, error) {
		var flow CashFlow
		err := s.repo.WithSnapshot(ctx, func(ctx context.Context, rd Reader) error {
			ledgers, err := rd.Ledgers(ctx, actor.TenantID)
			if err != nil {
				return err
			}
			b := newCashFlowBuilder(period, ledgers)
			if err := s.stream(ctx, rd, PostingQuery{TenantID: actor.TenantID, To: &period.To}, b.apply); err != nil {
				return err
			}
			flow = b.result()
			return nil
		})
		return flow, err
	})
}

// LedgerStatement lists one ledger's postings in a period with a running balance.
func (s *Service) LedgerStatement(ctx context.Context, actor shared.Actor, ledgerID int64, period Period) (Statement, error) {
	period, err := s.normalize(period)
	if err != nil {
		return Statement{}, err
	}
	var st Statement
	err = s.repo.WithSnapshot(ctx, func(ctx context.Context, rd Reader) error {
		ledgers, err := rd.Ledgers(ctx, actor.TenantID)
		if err != nil {
			return err
		}
		var target *LedgerRow
		for i := range ledgers {
			if ledgers[i].ID == ledgerID {
				target = &ledgers[i]
				break
			}
		}
		if target == nil {
			return ErrLedgerNotFound
		}
		if !s.authz.HasPermission(ctx, actor, target.GroupID, permissions.ActionViewBalance) {
			return fmt.Errorf("%w: %s on ledger %q", shared.ErrPermissionDenied, permissions.ActionViewBalance, target.Name)
		}
		b := newStatementBuilder(*target, period, ledgers)
		q := PostingQuery{TenantID: actor.TenantID, LedgerID: ledgerID, To: &period.To}
		if err := s.stream(ctx, rd, q, b.apply); err != nil {
			return err
		}
		st = b.result()
		return nil
	})
	return st, err
}

// LedgerSummary lists every ledger's opening, totals and closing as of a date.
func (s *Service) LedgerSummary(ctx context.Context, actor shared.Actor, asOf time.Time) (LedgerSummary, error) {
	if err := s.requireReports(ctx, actor); err != nil {
		return LedgerSummary{}, err
	}
	asOf = s.asOf(asOf)
	key := fmt.Sprintf("ls:%d:%s", actor.TenantID, asOf.Format(time.DateOnly))
	return coalesce(ctx, s, key, func(ctx context.Context) (LedgerSummary, error) {
		accounts, err := s.replayAll(ctx, actor.TenantID, &asOf, true, nil)
		if err != nil {
			return LedgerSummary{}, err
		}
		return BuildLedgerSummary(asOf, accounts), nil
	})
}

// Tenants lists every tenant owning ledgers.
func (s *Service) Tenants(ctx context.Context) ([]int64, error) {
	return s.repo.ListTenants(ctx)
}

// VerifyBalances replays the full history of every ledger of a tenant and
// returns those whose stored balance disagrees.
func (s *Service) VerifyBalances(ctx context.Context, tenantID int64) ([]Mismatch, error) {
	var mismatches []Mismatch
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, rd Reader) error {
		ledgers, err := rd.Ledgers(ctx, tenantID)
		if err != nil {
			return err
		}
		rp := newReplayer(ledgers, true)
		if err := s.stream(ctx, rd, PostingQuery{TenantID: tenantID}, rp.apply); err != nil {
			return err
		}
		for _, l := range ledgers {
			b, _ := rp.balance(l.ID)
			if b.Balance.Equal(l.CurrentBalance) {
				continue
			}
			s.logger.Error("ledger balance drift",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("ledger_id", l.ID),
				slog.String("stored", l.CurrentBalance.String()),
				slog.String("replayed", b.Balance.String()))
			mismatches = append(mismatches, Mismatch{
				TenantID: tenantID,
				LedgerID: l.ID,
				Name:     l.Name,
				Stored:   l.CurrentBalance,
				Replayed: b.Balance,
			})
		}
		return nil
	})
	return mismatches, err
}

func periodKey(p Period) string {
	from := "-"
	if p.From != nil {
		from = p.From.Format(time.DateOnly)
	}
	return from + ":" + p.To.Format(time.DateOnly)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
