package application

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/fraud"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
)

var testTracer trace.Tracer = noop.NewTracerProvider().Tracer("test")

type fakeLoanRepo struct {
	mu         sync.Mutex
	loans      map[string]*domain.LoanApplication
	nextPK     uint
	nextFlagPK uint
	findCalls  int
	listCalls  int
	flagErr    error
	createErr  error
}

func newFakeLoanRepo() *fakeLoanRepo {
	return &fakeLoanRepo{loans: map[string]*domain.LoanApplication{}}
}

func (r *fakeLoanRepo) Create(_ context.Context, loan *domain.LoanApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextPK++
	loan.PKID = r.nextPK
	cp := *loan
	r.loans[loan.ID] = &cp
	return nil
}

func (r *fakeLoanRepo) FindByID(_ context.Context, id string) (*domain.LoanApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	l, ok := r.loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	cp := *l
	cp.FraudFlags = append([]domain.FraudFlag(nil), l.FraudFlags...)
	return &cp, nil
}

func (r *fakeLoanRepo) UpdateStatus(_ context.Context, id string, status domain.Status, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok {
		return domain.ErrLoanNotFound
	}
	l.Status = status
	l.DateUpdated = updatedAt
	return nil
}

func (r *fakeLoanRepo) AddFraudFlags(_ context.Context, loanID string, reasons []string, at time.Time) ([]domain.FraudFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flagErr != nil {
		return nil, r.flagErr
	}
	l, ok := r.loans[loanID]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	flags := make([]domain.FraudFlag, 0, len(reasons))
	for _, reason := range reasons {
		r.nextFlagPK++
		flags = append(flags, domain.FraudFlag{PKID: r.nextFlagPK, LoanID: loanID, Reason: reason, CreatedAt: at})
	}
	l.FraudFlags = append(l.FraudFlags, flags...)
	return flags, nil
}

func (r *fakeLoanRepo) CountByUserSince(_ context.Context, userID string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.loans {
		if l.UserID == userID && !l.DateApplied.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeLoanRepo) List(_ context.Context, q domain.ListQuery) ([]*domain.LoanApplication, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var all []*domain.LoanApplication
	for _, l := range r.loans {
		if q.OwnerID != "" && l.UserID != q.OwnerID {
			continue
		}
		if q.Status != "" && l.Status != q.Status {
			continue
		}
		cp := *l
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PKID > all[j].PKID })
	total := int64(len(all))
	if q.Offset >= len(all) {
		return nil, total, nil
	}
	end := q.Offset + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[q.Offset:end], total, nil
}

// seed 直接写入一条申请，绕过工厂函数以便控制时间。
func (r *fakeLoanRepo) seed(loan *domain.LoanApplication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPK++
	loan.PKID = r.nextPK
	cp := *loan
	r.loans[loan.ID] = &cp
}

type fakeUsers struct {
	applicants  map[string]*domain.Applicant
	domainCount map[string]int64
	countCalls  int
}

func (u *fakeUsers) FindApplicant(_ context.Context, userID string) (*domain.Applicant, error) {
	a, ok := u.applicants[userID]
	if !ok {
		return nil, domain.ErrApplicantNotFound
	}
	return a, nil
}

func (u *fakeUsers) CountUsersByEmailDomain(_ context.Context, d string) (int64, error) {
	u.countCalls++
	return u.domainCount[d], nil
}

type fakeCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	deleted  []string
	patterns []string
	failAll  bool
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errors.New("cache down")
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, pattern)
	if c.failAll {
		return errors.New("cache down")
	}
	for k := range c.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.data, k)
		}
	}
	return nil
}

type fakeNotifier struct {
	events []*domain.LoanFlaggedEvent
	err    error
}

func (n *fakeNotifier) SendLoanFlagged(_ context.Context, e *domain.LoanFlaggedEvent) error {
	n.events = append(n.events, e)
	return n.err
}

type fakeFeed struct {
	events []*domain.LoanFlaggedEvent
}

func (f *fakeFeed) Publish(e *domain.LoanFlaggedEvent) { f.events = append(f.events, e) }

type fakeLocker struct {
	mu       sync.Mutex
	locked   map[string]bool
	acquired int
	released int
	err      error
}

func newFakeLocker() *fakeLocker { return &fakeLocker{locked: map[string]bool{}} }

func (l *fakeLocker) Lock(_ context.Context, userID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked[userID] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locked, userID)
		l.released++
	}, nil
}

type fakeRules struct {
	reasons []string
	err     error
	seen    []fraud.Facts
}

func (r *fakeRules) Evaluate(_ context.Context, f fraud.Facts) ([]string, error) {
	r.seen = append(r.seen, f)
	return r.reasons, r.err
}

var (
	_ domain.LoanRepository     = (*fakeLoanRepo)(nil)
	_ port.UserDirectory        = (*fakeUsers)(nil)
	_ port.Cache                = (*fakeCache)(nil)
	_ port.NotificationProducer = (*fakeNotifier)(nil)
	_ port.FlagFeed             = (*fakeFeed)(nil)
	_ port.UserLocker           = (*fakeLocker)(nil)
	_ port.RuleEngine           = (*fakeRules)(nil)
)
