package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abbracx/loan-be/internal/pkg/auth"
	"github.com/Abbracx/loan-be/internal/pkg/pagination"
	"github.com/Abbracx/loan-be/internal/service/loan/domain"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
)

var (
	admin = auth.Principal{UserID: "admin", IsStaff: true}
	alice = auth.Principal{UserID: "alice"}
	bob   = auth.Principal{UserID: "bob"}
)

type loanFixture struct {
	*fraudFixture
	svc    *LoanApplicationService
	locker *fakeLocker
}

func newLoanFixture(t *testing.T) *loanFixture {
	t.Helper()
	ff := newFraudFixture(t)
	ff.users.applicants["alice"] = &domain.Applicant{ID: "alice", Email: "alice@x.com"}
	ff.users.applicants["bob"] = &domain.Applicant{ID: "bob", Email: "bob@y.com"}

	locker := newFakeLocker()
	lagos := time.FixedZone("WAT", 3600)
	svc := NewLoanApplicationService(ff.repo, ff.users, ff.svc, locker, ff.cache, 5*time.Minute, lagos, testTracer)
	svc.now = func() time.Time { return fixedNow }
	return &loanFixture{fraudFixture: ff, svc: svc, locker: locker}
}

func (f *loanFixture) create(t *testing.T, userID, amount string) *LoanResponse {
	t.Helper()
	resp, err := f.svc.CreateLoan(context.Background(), &CreateLoanRequest{
		UserID:  userID,
		Amount:  decimal.RequireFromString(amount),
		Purpose: "business expansion",
	})
	require.NoError(t, err)
	return resp
}

func TestCreateLoan_CleanApplicationStaysPending(t *testing.T) {
	f := newLoanFixture(t)

	resp := f.create(t, "alice", "250000.50")

	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.Equal(t, "250000.50", resp.AmountRequested)
	assert.Equal(t, "alice@x.com", resp.UserEmail)
	assert.Equal(t, "2025-03-10T13:00:00.000000+01:00", resp.DateApplied)
	assert.Empty(t, resp.FraudFlags)
	assert.NotNil(t, resp.FraudFlags)
	assert.Empty(t, f.notifier.events)
	assert.Equal(t, 1, f.locker.acquired)
	assert.Equal(t, 1, f.locker.released)
}

func TestCreateLoan_LargeAmountIsFlagged(t *testing.T) {
	f := newLoanFixture(t)

	resp := f.create(t, "alice", "6000000")

	assert.Equal(t, domain.StatusFlagged, resp.Status)
	assert.Equal(t, []FraudFlagResponse{{Reason: amountReason}}, resp.FraudFlags)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, resp.ID, f.notifier.events[0].LoanID)
}

func TestCreateLoan_ThresholdAmountIsNotFlagged(t *testing.T) {
	f := newLoanFixture(t)
	resp := f.create(t, "alice", "5000000.00")
	assert.Equal(t, domain.StatusPending, resp.Status)
}

func TestCreateLoan_ThirdLoanTripsVelocity(t *testing.T) {
	f := newLoanFixture(t)

	assert.Equal(t, domain.StatusPending, f.create(t, "alice", "100").Status)
	assert.Equal(t, domain.StatusPending, f.create(t, "alice", "100").Status)

	third := f.create(t, "alice", "100")
	assert.Equal(t, domain.StatusFlagged, third.Status)
	assert.Equal(t, []FraudFlagResponse{{Reason: velocityReason}}, third.FraudFlags)

	// 其他用户不受影响
	assert.Equal(t, domain.StatusPending, f.create(t, "bob", "100").Status)
}

func TestCreateLoan_ConcurrentSubmissionsAreSerialized(t *testing.T) {
	f := newLoanFixture(t)
	locker := &serialLocker{}
	f.svc.locker = locker

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateLoan(context.Background(), &CreateLoanRequest{
				UserID: "alice", Amount: decimal.NewFromInt(100), Purpose: "rent",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	page, err := f.svc.ListLoans(context.Background(), alice, ListLoansRequest{Status: "flagged", Page: pagination.NewParams(1, 10)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Count)
	assert.EqualValues(t, 1, locker.maxOverlap.Load())
}

func TestCreateLoan_LockTimeout(t *testing.T) {
	f := newLoanFixture(t)
	f.locker.err = port.ErrLockTimeout

	_, err := f.svc.CreateLoan(context.Background(), &CreateLoanRequest{
		UserID: "alice", Amount: decimal.NewFromInt(100), Purpose: "rent",
	})
	assert.ErrorIs(t, err, port.ErrLockTimeout)
	assert.Empty(t, f.repo.loans)
}

func TestCreateLoan_UnknownApplicant(t *testing.T) {
	f := newLoanFixture(t)

	_, err := f.svc.CreateLoan(context.Background(), &CreateLoanRequest{
		UserID: "ghost", Amount: decimal.NewFromInt(100), Purpose: "rent",
	})
	assert.ErrorIs(t, err, domain.ErrApplicantNotFound)
	assert.Zero(t, f.locker.acquired)
}

func TestCreateLoan_InvalidAmount(t *testing.T) {
	f := newLoanFixture(t)

	_, err := f.svc.CreateLoan(context.Background(), &CreateLoanRequest{
		UserID: "alice", Amount: decimal.RequireFromString("10.123"), Purpose: "rent",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLoan)
	assert.Empty(t, f.repo.loans)
	assert.Equal(t, 1, f.locker.released)
}

func TestCreateLoan_InvalidatesListCaches(t *testing.T) {
	f := newLoanFixture(t)
	f.cache.data["loans:list:user:alice:status=:page=1:size=10:order=-date_applied"] = []byte("{}")
	f.cache.data["loans:list:all:status=:page=1:size=10:order=-date_applied"] = []byte("{}")
	f.cache.data["loans:list:user:bob:status=:page=1:size=10:order=-date_applied"] = []byte("{}")

	f.create(t, "alice", "100")

	assert.NotContains(t, f.cache.data, "loans:list:user:alice:status=:page=1:size=10:order=-date_applied")
	assert.NotContains(t, f.cache.data, "loans:list:all:status=:page=1:size=10:order=-date_applied")
	assert.Contains(t, f.cache.data, "loans:list:user:bob:status=:page=1:size=10:order=-date_applied")
}

func TestListLoans_OwnersSeeOnlyTheirOwn(t *testing.T) {
	f := newLoanFixture(t)
	f.create(t, "alice", "100")
	f.create(t, "alice", "200")
	f.create(t, "bob", "300")

	page, err := f.svc.ListLoans(context.Background(), alice, ListLoansRequest{Page: pagination.NewParams(1, 10)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Count)
	for _, l := range page.Results {
		assert.Equal(t, "alice@x.com", l.UserEmail)
	}

	page, err = f.svc.ListLoans(context.Background(), admin, ListLoansRequest{Page: pagination.NewParams(1, 10)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Count)
}

func TestListLoans_CachedUntilInvalidated(t *testing.T) {
	f := newLoanFixture(t)
	f.create(t, "alice", "100")
	req := ListLoansRequest{Page: pagination.NewParams(1, 10)}

	_, err := f.svc.ListLoans(context.Background(), alice, req)
	require.NoError(t, err)
	page, err := f.svc.ListLoans(context.Background(), alice, req)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Count)
	assert.Equal(t, 1, f.repo.listCalls)
	assert.Contains(t, f.cache.data, "loans:list:user:alice:status=:page=1:size=10:order=-date_applied")

	f.create(t, "alice", "100")
	page, err = f.svc.ListLoans(context.Background(), alice, req)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Count)
	assert.Equal(t, 2, f.repo.listCalls)
}

func TestListLoans_Pagination(t *testing.T) {
	f := newLoanFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t, "bob", "100")
	}

	page, err := f.svc.ListLoans(context.Background(), admin, ListLoansRequest{Page: pagination.NewParams(2, 2)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Count)
	assert.Len(t, page.Results, 1)
	assert.Nil(t, page.Next)
	require.NotNil(t, page.Previous)
	assert.Equal(t, 1, *page.Previous)
}

func TestListLoans_InvalidFilters(t *testing.T) {
	f := newLoanFixture(t)

	_, err := f.svc.ListLoans(context.Background(), admin, ListLoansRequest{Status: "archived", Page: pagination.NewParams(1, 10)})
	assert.ErrorIs(t, err, domain.ErrInvalidLoan)

	_, err = f.svc.ListLoans(context.Background(), admin, ListLoansRequest{Ordering: "purpose", Page: pagination.NewParams(1, 10)})
	assert.ErrorIs(t, err, domain.ErrInvalidLoan)
}

func TestListFlagged(t *testing.T) {
	f := newLoanFixture(t)
	f.create(t, "alice", "100")
	flagged := f.create(t, "bob", "9000000")

	_, err := f.svc.ListFlagged(context.Background(), alice, ListLoansRequest{Page: pagination.NewParams(1, 10)})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	page, err := f.svc.ListFlagged(context.Background(), admin, ListLoansRequest{Page: pagination.NewParams(1, 10)})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, flagged.ID, page.Results[0].ID)
	assert.Contains(t, f.cache.data, "loans:flagged:status=flagged:page=1:size=10:order=-date_applied")
}

func TestGetLoan_OwnerOrAdmin(t *testing.T) {
	f := newLoanFixture(t)
	created := f.create(t, "alice", "100")

	got, err := f.svc.GetLoan(context.Background(), alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = f.svc.GetLoan(context.Background(), admin, created.ID)
	require.NoError(t, err)

	_, err = f.svc.GetLoan(context.Background(), bob, created.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.GetLoan(context.Background(), admin, "missing")
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestReview_NonAdminRejectedBeforeLoading(t *testing.T) {
	f := newLoanFixture(t)
	created := f.create(t, "alice", "100")
	calls := f.repo.findCalls

	_, err := f.svc.Approve(context.Background(), alice, created.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Reject(context.Background(), alice, "missing")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Flag(context.Background(), alice, created.ID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, calls, f.repo.findCalls)
}

func TestReview_Transitions(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()

	pending := f.create(t, "alice", "100")
	resp, err := f.svc.Approve(ctx, admin, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, resp.Status)

	// 审核结论可以被改判，也可以被重新标记
	resp, err = f.svc.Approve(ctx, admin, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, resp.Status)
	resp, err = f.svc.Reject(ctx, admin, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, resp.Status)
	resp, err = f.svc.Flag(ctx, admin, pending.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFlagged, resp.Status)

	flagged := f.create(t, "bob", "9000000")
	resp, err = f.svc.Reject(ctx, admin, flagged.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, resp.Status)
	resp, err = f.svc.Approve(ctx, admin, flagged.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, resp.Status)

	_, err = f.svc.Approve(ctx, admin, "missing")
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestReview_ManualFlag(t *testing.T) {
	f := newLoanFixture(t)
	ctx := context.Background()
	created := f.create(t, "alice", "100")

	resp, err := f.svc.Flag(ctx, admin, created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFlagged, resp.Status)

	_, err = f.svc.Flag(ctx, admin, created.ID, "Suspicious documents")
	require.NoError(t, err)

	got, err := f.svc.GetLoan(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []FraudFlagResponse{{Reason: ManualFlagReason}, {Reason: "Suspicious documents"}}, got.FraudFlags)
	assert.Len(t, f.notifier.events, 2)
}

func TestReview_InvalidatesOwnerAndAdminLists(t *testing.T) {
	f := newLoanFixture(t)
	created := f.create(t, "alice", "100")
	f.cache.patterns = nil

	_, err := f.svc.Approve(context.Background(), admin, created.ID)
	require.NoError(t, err)
	assert.Contains(t, f.cache.patterns, "loans:list:user:alice:*")
	assert.Contains(t, f.cache.patterns, "loans:list:all:*")
	assert.Contains(t, f.cache.patterns, "loans:flagged:*")
}

// serialLocker 记录同时持有锁的最大数量。
type serialLocker struct {
	mu         sync.Mutex
	active     atomic.Int32
	maxOverlap atomic.Int32
}

func (l *serialLocker) Lock(_ context.Context, _ string) (func(), error) {
	l.mu.Lock()
	if n := l.active.Add(1); n > l.maxOverlap.Load() {
		l.maxOverlap.Store(n)
	}
	return func() {
		l.active.Add(-1)
		l.mu.Unlock()
	}, nil
}
