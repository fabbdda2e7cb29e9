package vouchers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaledger/internal/accounting/groups"
	"github.com/odyssey-erp/pharmaledger/internal/accounting/posting"
	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

const (
	cashID  = int64(1)
	salesID = int64(2)
	rentID  = int64(3)
	bankID  = int64(4)

	assetGroup   = int64(100)
	incomeGroup  = int64(200)
	expenseGroup = int64(300)
)

var (
	clerk = shared.Actor{TenantID: 5, UserID: 21, Role: "accountant"}
	march = time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
)

func amt(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newEngine(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo(
		LedgerRef{ID: cashID, GroupID: assetGroup, Name: "Cash", BalanceType: posting.PolarityDebit, CurrentBalance: amt("1000"), IsActive: true},
		LedgerRef{ID: salesID, GroupID: incomeGroup, Name: "Sales", BalanceType: posting.PolarityCredit, CurrentBalance: decimal.Zero, IsActive: true},
		LedgerRef{ID: rentID, GroupID: expenseGroup, Name: "Rent", BalanceType: posting.PolarityDebit, CurrentBalance: decimal.Zero, IsActive: true},
		LedgerRef{ID: bankID, GroupID: assetGroup, Name: "Bank", BalanceType: posting.PolarityDebit, CurrentBalance: amt("50"), IsActive: false},
	)
	svc := NewService(repo, stubAuthz{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return march.Add(10 * time.Hour) })
	return svc, repo
}

func sale(amount string) CreateInput {
	return CreateInput{Type: "receipt", Date: march, Amount: amt(amount), DebitLedgerID: cashID, CreditLedgerID: salesID}
}

func TestNumbersArePerTypeAndMonth(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	var numbers []string
	for i := 0; i < 3; i++ {
		v, err := svc.Create(ctx, clerk, CreateInput{Type: "Payment", Date: march, Amount: amt("10"), DebitLedgerID: rentID, CreditLedgerID: cashID})
		require.NoError(t, err)
		numbers = append(numbers, v.Number)
	}
	require.Equal(t, []string{"PAY2024030001", "PAY2024030002", "PAY2024030003"}, numbers)

	receipt, err := svc.Create(ctx, clerk, sale("5"))
	require.NoError(t, err)
	require.Equal(t, "REC2024030001", receipt.Number)

	april := sale("5")
	april.Date = time.Date(2024, 4, 2, 15, 30, 0, 0, time.UTC)
	next, err := svc.Create(ctx, clerk, april)
	require.NoError(t, err)
	require.Equal(t, "REC2024040001", next.Number)
	require.Equal(t, 0, next.Date.Hour())

	require.Equal(t, "DEB", TypeDebitNote.Prefix())
	require.Equal(t, "CRE", TypeCreditNote.Prefix())
	require.Equal(t, "CON", TypeContra.Prefix())
	require.Equal(t, "JOU", TypeJournal.Prefix())
}

func TestConcurrentCreatesNeverShareANumber(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	const n = 40
	var wg sync.WaitGroup
	numbers := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := svc.Create(ctx, clerk, sale("1"))
			if err == nil {
				numbers <- v.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)
	seen := make(map[string]bool)
	for num := range numbers {
		require.False(t, seen[num], num)
		seen[num] = true
	}
	require.Len(t, seen, n)
}

func TestRejectsInvalidParties(t *testing.T) {
	svc, repo := newEngine(t)
	ctx := context.Background()

	self := sale("10")
	self.CreditLedgerID = cashID
	_, err := svc.Create(ctx, clerk, self)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, ErrSelfReference, err)

	_, err = svc.Create(ctx, clerk, sale("0"))
	require.Equal(t, ErrNonPositiveAmount, err)

	missing := sale("10")
	missing.CreditLedgerID = 999
	_, err = svc.Create(ctx, clerk, missing)
	require.ErrorIs(t, err, shared.ErrNotFound)

	inactive := sale("10")
	inactive.DebitLedgerID = bankID
	_, err = svc.Create(ctx, clerk, inactive)
	require.Equal(t, ErrInactiveLedger, err)

	_, err = svc.Create(ctx, clerk, CreateInput{Type: "barter", Date: march, Amount: amt("1"), DebitLedgerID: cashID, CreditLedgerID: salesID})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.state.vouchers)
}

func TestPostThenCancelRestoresBalances(t *testing.T) {
	svc, repo := newEngine(t)
	recorder := &countingRecorder{}
	svc.WithRecorder(recorder)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, sale("500"))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, v.Status)
	require.True(t, repo.balance(cashID).Equal(amt("1000")))

	posted, err := svc.Post(ctx, clerk, v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	require.True(t, repo.balance(cashID).Equal(amt("1500")))
	require.True(t, repo.balance(salesID).Equal(amt("500")))
	require.Equal(t, []int64{cashID, salesID}, repo.lockOrder)

	_, err = svc.Post(ctx, clerk, v.ID)
	require.ErrorIs(t, err, ErrAlreadyPosted)

	cancelled, err := svc.Cancel(ctx, clerk, v.ID, "keyed twice")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "keyed twice", cancelled.CancelReason)
	require.True(t, repo.balance(cashID).Equal(amt("1000")))
	require.True(t, repo.balance(salesID).IsZero())

	_, err = svc.Cancel(ctx, clerk, v.ID, "again")
	require.ErrorIs(t, err, shared.ErrConflict)
	require.True(t, repo.balance(cashID).Equal(amt("1000")))

	_, err = svc.Post(ctx, clerk, v.ID)
	require.ErrorIs(t, err, ErrAlreadyCancelled)

	require.ErrorIs(t, svc.Delete(ctx, clerk, v.ID), ErrPostedImmutable)
	require.Equal(t, 1, recorder.transitions["RECEIPT/POSTED"])
	require.Equal(t, 1, recorder.transitions["RECEIPT/CANCELLED"])
}

func TestCancelDraftLeavesBalancesAlone(t *testing.T) {
	svc, repo := newEngine(t)
	ctx := context.Background()
	v, err := svc.Create(ctx, clerk, sale("70"))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, clerk, v.ID, "")
	require.NoError(t, err)
	require.True(t, repo.balance(cashID).Equal(amt("1000")))
	require.NoError(t, svc.Delete(ctx, clerk, v.ID))
}

func TestPostImmediatelyAppliesInSameUnit(t *testing.T) {
	svc, repo := newEngine(t)
	in := CreateInput{Type: "payment", Date: march, Amount: amt("120.75"), DebitLedgerID: rentID, CreditLedgerID: cashID, PostImmediately: true}
	v, err := svc.Create(context.Background(), clerk, in)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, v.Status)
	require.True(t, repo.balance(rentID).Equal(amt("120.75")))
	require.True(t, repo.balance(cashID).Equal(amt("879.25")))
}

func TestLostLedgerRowRollsBackEverything(t *testing.T) {
	svc, repo := newEngine(t)
	repo.lostRows[salesID] = true
	in := sale("300")
	in.PostImmediately = true

	_, err := svc.Create(context.Background(), clerk, in)
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.True(t, repo.balance(cashID).Equal(amt("1000")))
	require.Empty(t, repo.state.vouchers)
	require.Empty(t, repo.state.sequences)
}

func TestUpdateOnlyTouchesDrafts(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	v, err := svc.Create(ctx, clerk, sale("10"))
	require.NoError(t, err)

	newAmount := amt("12.50")
	desc := "  corrected  "
	updated, err := svc.Update(ctx, clerk, v.ID, UpdateInput{Amount: &newAmount, Description: &desc})
	require.NoError(t, err)
	require.True(t, updated.Amount.Equal(newAmount))
	require.Equal(t, "corrected", updated.Description)
	require.Equal(t, v.Number, updated.Number)

	same := cashID
	_, err = svc.Update(ctx, clerk, v.ID, UpdateInput{CreditLedgerID: &same})
	require.Equal(t, ErrSelfReference, err)

	_, err = svc.Post(ctx, clerk, v.ID)
	require.NoError(t, err)
	_, err = svc.Update(ctx, clerk, v.ID, UpdateInput{Description: &desc})
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	svc, repo := newEngine(t)
	ctx := context.Background()
	key := uuid.New()
	in := sale("25")
	in.IdempotencyKey = &key
	in.PostImmediately = true

	_, err := svc.Create(ctx, clerk, in)
	require.NoError(t, err)
	_, err = svc.Create(ctx, clerk, in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, repo.state.vouchers, 1)
	require.True(t, repo.balance(cashID).Equal(amt("1025")))
}

func TestPermissionsGateEveryTransition(t *testing.T) {
	svc, repo := newEngine(t)
	ctx := context.Background()
	v, err := svc.Create(ctx, clerk, sale("10"))
	require.NoError(t, err)

	svc.authz = stubAuthz{denied: map[int64]bool{incomeGroup: true}}
	_, err = svc.Create(ctx, clerk, sale("10"))
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = svc.Post(ctx, clerk, v.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	require.True(t, repo.balance(cashID).Equal(amt("1000")))

	got, err := svc.Get(ctx, clerk, v.ID)
	require.NoError(t, err, "viewable through the cash side")
	require.Equal(t, v.ID, got.ID)

	svc.authz = stubAuthz{denied: map[int64]bool{incomeGroup: true, assetGroup: true}}
	_, err = svc.Get(ctx, clerk, v.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestListScopesToViewableGroups(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, clerk, sale("10"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, clerk, CreateInput{Type: "journal", Date: march, Amount: amt("3"), DebitLedgerID: rentID, CreditLedgerID: salesID})
	require.NoError(t, err)

	svc.authz = stubAuthz{groups: []groups.Group{{ID: assetGroup}}}
	list, page, err := svc.List(ctx, clerk, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, page.Total)
	require.Equal(t, 20, page.PerPage)

	svc.authz = stubAuthz{}
	_, page, err = svc.List(ctx, clerk, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 0, page.Total)

	stats, err := svc.Stats(ctx, clerk, nil, nil)
	require.NoError(t, err)
	require.Len(t, stats, 2)
}
