package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/montebay/storefront/internal/domain/membership"
	"github.com/montebay/storefront/internal/domain/promotion"
)

// memOrderRepo is an in-memory Repository with a real compare-and-set
// usage-reconcile flag.
type memOrderRepo struct {
	orders map[string]*Order
	// beginErr/clearErr/cancelErr inject storage failures.
	beginErr  error
	clearErr  error
	cancelErr error
}

func newMemOrderRepo(orders ...*Order) *memOrderRepo {
	r := &memOrderRepo{orders: make(map[string]*Order)}
	for _, o := range orders {
		cp := *o
		r.orders[o.ID] = &cp
	}
	return r
}

func (r *memOrderRepo) Create(_ context.Context, o *Order) error {
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) MarkPaid(_ context.Context, id string) error {
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = StatusPaid
	o.PaymentStatus = PaymentPaid
	return nil
}

func (r *memOrderRepo) MarkCancelled(_ context.Context, id string, payment PaymentStatus) error {
	if r.cancelErr != nil {
		return r.cancelErr
	}
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = StatusCancelled
	o.PaymentStatus = payment
	return nil
}

func (r *memOrderRepo) BeginUsageReconcile(_ context.Context, id string) (bool, error) {
	if r.beginErr != nil {
		return false, r.beginErr
	}
	o, ok := r.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.UsageReconciled {
		return false, nil
	}
	o.UsageReconciled = true
	return true, nil
}

func (r *memOrderRepo) ClearUsageReconcile(_ context.Context, id string) error {
	if r.clearErr != nil {
		return r.clearErr
	}
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.UsageReconciled = false
	return nil
}

func (r *memOrderRepo) reconciled(id string) bool {
	return r.orders[id].UsageReconciled
}

// recordingPromos captures RecordRedemption calls.
type recordingPromos struct {
	calls     int
	recordErr error
}

func (p *recordingPromos) FindByCode(context.Context, string) (*promotion.Promotion, *promotion.Code, error) {
	return nil, nil, promotion.ErrCodeNotFound
}

func (p *recordingPromos) CustomerRedemptions(context.Context, string, string) (int, error) {
	return 0, nil
}

func (p *recordingPromos) RecordRedemption(context.Context, string, string, string) error {
	p.calls++
	return p.recordErr
}

// flakyLedger wraps a MemoryLedger and fails Consume on demand.
type flakyLedger struct {
	membership.Ledger
	consumeErr error
}

func (l *flakyLedger) Consume(ctx context.Context, membershipID, categoryID string, n int) error {
	if l.consumeErr != nil {
		return l.consumeErr
	}
	return l.Ledger.Consume(ctx, membershipID, categoryID, n)
}

func freeOrder() *Order {
	return &Order{
		ID:           "ord-1",
		OwnerID:      "cust-1",
		MembershipID: "mem-1",
		Lines: []Line{
			{ProductID: "espresso", CategoryID: "coffee", Quantity: 3, FreeUnits: 2},
			{ProductID: "decaf", CategoryID: "coffee", Quantity: 1, FreeUnits: 1},
			{ProductID: "croissant", CategoryID: "bakery", Quantity: 2, FreeUnits: 1},
		},
		Total:  decimal.NewFromInt(20),
		Status: StatusPending,
	}
}

func TestCommitDeductsOnce(t *testing.T) {
	ctx := context.Background()
	o := freeOrder()
	repo := newMemOrderRepo(o)
	ledger := membership.NewMemoryLedger(
		membership.Entry{MembershipID: "mem-1", CategoryID: "coffee", Allocated: 4},
		membership.Entry{MembershipID: "mem-1", CategoryID: "bakery", Allocated: 2},
	)
	promos := &recordingPromos{}
	rec := NewReconciler(repo, ledger, promos, zap.NewNop())

	require.NoError(t, rec.Commit(ctx, o))
	assert.True(t, o.UsageReconciled)
	assert.True(t, repo.reconciled("ord-1"))

	coffee, err := ledger.GetAvailable(ctx, "mem-1", "coffee")
	require.NoError(t, err)
	assert.Equal(t, 1, coffee, "3 coffee free units across two lines deducted")
	bakery, err := ledger.GetAvailable(ctx, "mem-1", "bakery")
	require.NoError(t, err)
	assert.Equal(t, 1, bakery)
	assert.Equal(t, 0, promos.calls, "no promotion on the order")

	// A retried confirmation must not deduct again.
	require.NoError(t, rec.Commit(ctx, o))
	coffee, err = ledger.GetAvailable(ctx, "mem-1", "coffee")
	require.NoError(t, err)
	assert.Equal(t, 1, coffee)
}

func TestCommitRecordsRedemption(t *testing.T) {
	ctx := context.Background()
	o := freeOrder()
	o.PromotionID = "promo-1"
	o.PromotionCode = "SAVE10"
	repo := newMemOrderRepo(o)
	ledger := membership.NewMemoryLedger(
		membership.Entry{MembershipID: "mem-1", CategoryID: "coffee", Allocated: 3},
		membership.Entry{MembershipID: "mem-1", CategoryID: "bakery", Allocated: 1},
	)
	promos := &recordingPromos{}
	rec := NewReconciler(repo, ledger, promos, zap.NewNop())

	require.NoError(t, rec.Commit(ctx, o))
	assert.Equal(t, 1, promos.calls)

	require.NoError(t, rec.Commit(ctx, o))
	assert.Equal(t, 1, promos.calls, "redemption recorded once per order")
}

func TestCommitShortfallIsNotFatal(t *testing.T) {
	// Another order drained the allocation between cart pricing and this
	// confirmation. Payment is captured, so the commit still succeeds.
	ctx := context.Background()
	o := freeOrder()
	repo := newMemOrderRepo(o)
	ledger := membership.NewMemoryLedger(
		membership.Entry{MembershipID: "mem-1", CategoryID: "coffee", Allocated: 1},
		membership.Entry{MembershipID: "mem-1", CategoryID: "bakery", Allocated: 1},
	)
	rec := NewReconciler(repo, ledger, &recordingPromos{}, zap.NewNop())

	require.NoError(t, rec.Commit(ctx, o))
	assert.True(t, o.UsageReconciled)

	// The coffee consume failed and left its entry untouched; bakery went
	// through.
	coffee, err := ledger.GetAvailable(ctx, "mem-1", "coffee")
	require.NoError(t, err)
	assert.Equal(t, 1, coffee)
	bakery, err := ledger.GetAvailable(ctx, "mem-1", "bakery")
	require.NoError(t, err)
	assert.Equal(t, 0, bakery)
}

func TestCommitStorageErrorReleasesFlag(t *testing.T) {
	ctx := context.Background()
	o := freeOrder()
	repo := newMemOrderRepo(o)
	ledger := &flakyLedger{
		Ledger:     membership.NewMemoryLedger(),
		consumeErr: errors.New("connection reset"),
	}
	rec := NewReconciler(repo, ledger, &recordingPromos{}, zap.NewNop())

	err := rec.Commit(ctx, o)
	require.Error(t, err)
	assert.False(t, repo.reconciled("ord-1"), "flag released so a retry re-runs the deduction")
	assert.False(t, o.UsageReconciled)
}

func TestCommitRedemptionErrorIsNotFatal(t *testing.T) {
	ctx := context.Background()
	o := freeOrder()
	o.Lines = nil
	o.MembershipID = ""
	o.PromotionID = "promo-1"
	o.PromotionCode = "SAVE10"
	repo := newMemOrderRepo(o)
	promos := &recordingPromos{recordErr: errors.New("counter race")}
	rec := NewReconciler(repo, membership.NewMemoryLedger(), promos, zap.NewNop())

	require.NoError(t, rec.Commit(ctx, o))
	assert.True(t, o.UsageReconciled)
}

func TestReverseRestores(t *testing.T) {
	ctx := context.Background()
	o := freeOrder()
	repo := newMemOrderRepo(o)
	ledger := membership.NewMemoryLedger(
		membership.Entry{MembershipID: "mem-1", CategoryID: "coffee", Allocated: 3},
		membership.Entry{MembershipID: "mem-1", CategoryID: "bakery", Allocated: 1},
	)
	promos := &recordingPromos{}
	rec := NewReconciler(repo, ledger, promos, zap.NewNop())

	require.NoError(t, rec.Commit(ctx, o))
	require.NoError(t, rec.Reverse(ctx, o))

	assert.False(t, o.UsageReconciled)
	assert.False(t, repo.reconciled("ord-1"))
	coffee, err := ledger.GetAvailable(ctx, "mem-1", "coffee")
	require.NoError(t, err)
	assert.Equal(t, 3, coffee)
	bakery, err := ledger.GetAvailable(ctx, "mem-1", "bakery")
	require.NoError(t, err)
	assert.Equal(t, 1, bakery)
}

func TestReverseBeforeCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	o := freeOrder()
	repo := newMemOrderRepo(o)
	ledger := membership.NewMemoryLedger(
		membership.Entry{MembershipID: "mem-1", CategoryID: "coffee", Allocated: 3},
	)
	rec := NewReconciler(repo, ledger, &recordingPromos{}, zap.NewNop())

	require.NoError(t, rec.Reverse(ctx, o))
	coffee, err := ledger.GetAvailable(ctx, "mem-1", "coffee")
	require.NoError(t, err)
	assert.Equal(t, 3, coffee, "nothing was consumed, nothing to restore")
}

func TestFreeUnitsByCategory(t *testing.T) {
	lines := []Line{
		{CategoryID: "coffee", FreeUnits: 2},
		{CategoryID: "coffee", FreeUnits: 1},
		{CategoryID: "bakery", FreeUnits: 0},
		{CategoryID: "merch", FreeUnits: 1},
	}
	got := freeUnitsByCategory(lines)
	assert.Equal(t, map[string]int{"coffee": 3, "merch": 1}, got)
}
