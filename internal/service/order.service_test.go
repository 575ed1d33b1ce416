package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"campus-market/internal/domain"
	"campus-market/internal/infrastructure/catalog"
	"campus-market/internal/repo"
	"campus-market/internal/repo/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestOrderScenario(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")

	assert.True(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, "u1"))
	assert.False(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u1"), "buyer cannot attest payment")
	assert.True(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u2"))
	assert.False(t, h.transition(t, o.ID, domain.OrderReceivedConfirmed, "u2"), "seller cannot attest receipt")
	assert.True(t, h.transition(t, o.ID, domain.OrderReceivedConfirmed, "u1"))
	assert.True(t, h.transition(t, o.ID, domain.OrderCompleted, "u1"))
	h.flush()

	assert.Equal(t, 1, h.catalog.CountCalls("p1", catalog.ProductReserved))
	assert.Equal(t, 1, h.catalog.CountCalls("p1", catalog.ProductSold))
	status, _ := h.catalog.Status("p1")
	assert.Equal(t, catalog.ProductSold, status)

	got := h.order(t, o.ID)
	assert.Equal(t, domain.OrderCompleted, got.Status)
	for _, ts := range []*time.Time{got.MeetConfirmedAt, got.PaidConfirmedAt, got.ReceivedConfirmedAt, got.CompletedAt} {
		assert.NotNil(t, ts)
	}
	assert.Nil(t, got.ExpireAt)

	balance, err := h.points.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 15, balance.Total)
	trust, err := h.trust.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, trust.CompletedOrders)
	assert.Equal(t, 2, h.auditCount(t, domain.AuditOrderStatusRejected))
}

func TestTransitionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")

	assert.True(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, "u1"))
	first := h.order(t, o.ID)
	assert.True(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, "u1"))
	second := h.order(t, o.ID)
	assert.Equal(t, first.MeetConfirmedAt, second.MeetConfirmedAt)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt), "no second write")

	require.True(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u2"))
	require.True(t, h.transition(t, o.ID, domain.OrderReceivedConfirmed, "u1"))
	assert.True(t, h.transition(t, o.ID, domain.OrderCompleted, "u1"))
	assert.True(t, h.transition(t, o.ID, domain.OrderCompleted, "u1"))
	h.flush()

	balance, err := h.points.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 15, balance.Total)
	assert.Len(t, balance.Entries, 1)
	assert.Equal(t, 1, h.catalog.CountCalls("p1", catalog.ProductSold))
	assert.Equal(t, 4, h.auditCount(t, domain.AuditOrderStatusChanged))
}

func TestConcurrentSameTransitionHasOneWriter(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")

	var wins atomic.Int32
	var g errgroup.Group
	for _, actor := range []string{"u1", "u2"} {
		g.Go(func() error {
			ok, err := h.orders.Transition(context.Background(), o.ID, domain.OrderMeetConfirmed, actor, TransitionExtra{})
			if ok {
				wins.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(2), wins.Load(), "the loser observes the winner's target")
	assert.Equal(t, 1, h.auditCount(t, domain.AuditOrderStatusChanged))
}

func TestOneActiveOrderPerProduct(t *testing.T) {
	h := newHarness(t)

	var created atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		buyer := fmt.Sprintf("buyer-%d", i)
		g.Go(func() error {
			_, err := h.orders.CreateOrder(context.Background(), domain.NewOrderInput{
				ProductID: "p1",
				BuyerID:   buyer,
				Seller:    domain.SellerContext{SellerID: "seller"},
			})
			switch {
			case err == nil:
				created.Add(1)
			case domain.CodeOf(err) == domain.CodeInvalidState:
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), created.Load())

	h.clock.Advance(5 * time.Second)
	_, err := h.orders.CreateOrder(context.Background(), domain.NewOrderInput{
		ProductID: "p1",
		BuyerID:   "late",
		Seller:    domain.SellerContext{SellerID: "seller"},
	})
	assert.ErrorIs(t, err, domain.ErrActiveOrderExists)
}

func TestCancelledOrderFreesProduct(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")

	ok, err := h.orders.Transition(context.Background(), o.ID, domain.OrderCancelled, "u2",
		TransitionExtra{CancelReason: domain.CancelReasonSellerUnavailable})
	require.NoError(t, err)
	require.True(t, ok)

	got := h.order(t, o.ID)
	assert.Equal(t, "u2", got.CancelledBy)
	assert.Equal(t, domain.CancelReasonSellerUnavailable, got.CancelReason)

	h.createOrder(t, "p1", "u3", "u2")
	h.flush()
	assert.Equal(t, 1, h.catalog.CountCalls("p1", catalog.ProductAvailable))
}

func TestCreateOrderGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := domain.NewOrderInput{ProductID: "p1", BuyerID: "u1", Seller: domain.SellerContext{SellerID: "u2"}}

	_, err := h.orders.CreateOrder(ctx, domain.NewOrderInput{ProductID: "p1", Seller: in.Seller})
	assert.Equal(t, domain.CodeAuthRequired, domain.CodeOf(err))

	release, ok := h.locks.TryLock("order:create:p1:u1")
	require.True(t, ok)
	_, err = h.orders.CreateOrder(ctx, in)
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmit)
	release()

	h.clock.Advance(3 * time.Second)
	_, err = h.orders.CreateOrder(ctx, in)
	require.NoError(t, err)
	_, err = h.orders.CreateOrder(ctx, in)
	assert.Equal(t, domain.CodeRateLimit, domain.CodeOf(err))
	assert.False(t, h.locks.Held("order:create:p1:u1"), "lock released after success")

	h.clock.Advance(3 * time.Second)
	_, err = h.orders.CreateOrder(ctx, domain.NewOrderInput{ProductID: "p2", BuyerID: "u1", Seller: domain.SellerContext{SellerID: "u1"}})
	assert.Equal(t, domain.CodeInvalidParam, domain.CodeOf(err))
	assert.False(t, h.locks.Held("order:create:p2:u1"), "lock released after error")
}

func TestOrderExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.createOrder(t, "p1", "u1", "u2")

	h.clock.Advance(25 * time.Hour)
	got, err := h.orders.GetOrder(ctx, o.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Equal(t, domain.SystemActor, got.CancelledBy)
	assert.Equal(t, domain.CancelReasonTimeout, got.CancelReason)
	assert.Equal(t, *o.ExpireAt, *got.CancelledAt)

	again, err := h.orders.GetOrder(ctx, o.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, again.Status)
	assert.Equal(t, domain.OrderCancelled, h.order(t, o.ID).Status, "expiry persisted")

	h.flush()
	assert.Equal(t, 1, h.catalog.CountCalls("p1", catalog.ProductAvailable), "only the first observer releases")
	assert.Equal(t, 1, h.auditCount(t, domain.AuditOrderExpired))

	// a timed out order does not block a new one
	h.createOrder(t, "p1", "u3", "u2")
}

func TestMeetConfirmedNeverExpires(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")
	require.True(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, "u2"))

	h.clock.Advance(72 * time.Hour)
	got, err := h.orders.GetOrder(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMeetConfirmed, got.Status)
	assert.True(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u2"))
}

func TestExpiredOrderOnCreateIsPersisted(t *testing.T) {
	h := newHarness(t)
	stale := h.createOrder(t, "p1", "u1", "u2")

	h.clock.Advance(25 * time.Hour)
	h.createOrder(t, "p1", "u3", "u2")

	assert.Equal(t, domain.OrderCancelled, h.order(t, stale.ID).Status)
}

func TestTransitionOnExpiredOrder(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")
	h.clock.Advance(25 * time.Hour)

	assert.False(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, "u1"))
	assert.True(t, h.transition(t, o.ID, domain.OrderCancelled, "u2"), "already cancelled by timeout")
	assert.False(t, h.transition(t, o.ID, domain.OrderCancelled, "stranger"))

	got := h.order(t, o.ID)
	assert.Equal(t, domain.SystemActor, got.CancelledBy)
}

func TestPaidConfirmationIsSellerOnly(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")
	require.True(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, "u1"))
	before := h.order(t, o.ID)

	assert.False(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u1"))
	after := h.order(t, o.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.Nil(t, after.PaidConfirmedAt)

	assert.False(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "stranger"))
	assert.True(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u2"))
}

func TestCancelAfterPaymentPenalizesCanceller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.createOrder(t, "p1", "u1", "u2")
	require.True(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, "u1"))
	require.True(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u2"))

	ok, err := h.orders.Transition(ctx, o.ID, domain.OrderCancelled, "u1",
		TransitionExtra{CancelReason: domain.CancelReasonItemDefect})
	require.NoError(t, err)
	require.True(t, ok)
	h.flush()

	buyer, err := h.trust.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, buyer.PaidCancellations)
	assert.Equal(t, domain.DefaultTrustScore-8, buyer.Score)

	seller, err := h.trust.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, seller.PaidCancellations)

	status, _ := h.catalog.Status("p1")
	assert.Equal(t, catalog.ProductAvailable, status)
}

func TestCancelBeforePaymentHasNoPenalty(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")
	require.True(t, h.transition(t, o.ID, domain.OrderCancelled, "u1"))
	h.flush()

	rec, err := h.trust.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, rec.PaidCancellations)
}

func TestTransitionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.createOrder(t, "p1", "u1", "u2")

	_, err := h.orders.Transition(ctx, o.ID, domain.OrderCancelled, "u1", TransitionExtra{CancelReason: "bored"})
	assert.Equal(t, domain.CodeInvalidParam, domain.CodeOf(err))

	_, err = h.orders.Transition(ctx, o.ID, "shipped", "u1", TransitionExtra{})
	assert.Equal(t, domain.CodeInvalidParam, domain.CodeOf(err))

	_, err = h.orders.Transition(ctx, o.ID, domain.OrderMeetConfirmed, "", TransitionExtra{})
	assert.ErrorIs(t, err, domain.ErrAuthRequired)

	_, err = h.orders.Transition(ctx, "missing", domain.OrderMeetConfirmed, "u1", TransitionExtra{})
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	assert.False(t, h.transition(t, o.ID, domain.OrderCompleted, "u1"), "skipping steps is illegal")
}

func TestTransitionRateLimits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.createOrder(t, "p1", "u1", "u2")

	assert.False(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u1"))
	_, err := h.orders.Transition(ctx, o.ID, domain.OrderPaidConfirmed, "u1", TransitionExtra{})
	assert.Equal(t, domain.CodeRateLimit, domain.CodeOf(err))

	targets := []domain.OrderStatus{domain.OrderReceivedConfirmed, domain.OrderCompleted, domain.OrderMeetConfirmed, domain.OrderCancelled}
	h.clock.Advance(2 * time.Second)
	for _, target := range targets {
		_, err = h.orders.Transition(ctx, o.ID, target, "stranger", TransitionExtra{})
		require.NoError(t, err)
	}
	_, err = h.orders.Transition(ctx, o.ID, domain.OrderPaidConfirmed, "stranger", TransitionExtra{})
	require.NoError(t, err)
	h.clock.Advance(1500 * time.Millisecond)
	_, err = h.orders.Transition(ctx, o.ID, domain.OrderPaidConfirmed, "stranger", TransitionExtra{})
	assert.Equal(t, domain.CodeRateLimit, domain.CodeOf(err), "burst cap per actor and order")
}

func TestGetOrderVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.createOrder(t, "p1", "u1", "u2")

	_, err := h.orders.GetOrder(ctx, o.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = h.orders.GetOrder(ctx, o.ID, "")
	assert.ErrorIs(t, err, domain.ErrAuthRequired)

	got, err := h.orders.GetOrder(ctx, o.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestListMyOrders(t *testing.T) {
	h := newHarness(t)
	first := h.createOrder(t, "p1", "u1", "u2")
	h.clock.Advance(time.Minute)
	second := h.createOrder(t, "p2", "u3", "u1")
	h.createOrder(t, "p3", "u3", "u2")

	h.clock.Advance(24 * time.Hour)
	orders, err := h.orders.ListMyOrders(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
	assert.Equal(t, domain.OrderCancelled, orders[1].Status, "first order expired")
	assert.Equal(t, domain.OrderPending, orders[0].Status)
}

type unavailableOrders struct {
	repo.OrderRepo
}

func (unavailableOrders) FindById(context.Context, string) (*domain.Order, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	store := memory.NewStore()
	store.Orders = unavailableOrders{OrderRepo: store.Orders}
	h := newHarnessWithStore(t, store)

	_, err := h.orders.Transition(context.Background(), "o1", domain.OrderMeetConfirmed, "u1", TransitionExtra{})
	assert.Equal(t, domain.CodeUnavailable, domain.CodeOf(err))
	assert.ErrorContains(t, err, "connection refused")
}

func TestSideEffectFailureDoesNotFailOrder(t *testing.T) {
	h := newHarness(t)
	h.catalog.FailWith(errors.New("catalog down"))

	o := h.createOrder(t, "p1", "u1", "u2")
	h.flush()

	assert.Equal(t, domain.OrderPending, h.order(t, o.ID).Status)
	assert.Equal(t, 1, h.catalog.CountCalls("p1", catalog.ProductReserved))
}

func TestOverlappingRepeatFromOneActor(t *testing.T) {
	h, orders, _ := gatedHarness(t)
	o := h.createOrder(t, "p1", "u1", "u2")
	orders.gate = newReadGate(2)

	results := make([]bool, 2)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			ok, err := h.orders.Transition(context.Background(), o.ID, domain.OrderMeetConfirmed, "u1", TransitionExtra{})
			results[i] = ok
			return err
		})
	}
	require.NoError(t, g.Wait(), "a double submit is not throttled")
	assert.Equal(t, []bool{true, true}, results)
	assert.Equal(t, domain.OrderMeetConfirmed, h.order(t, o.ID).Status)
	assert.Equal(t, 1, h.auditCount(t, domain.AuditOrderStatusChanged))
}

func TestThrottledRetryOfAppliedTransition(t *testing.T) {
	store := memory.NewStore()
	stale := &staleRead{OrderRepo: store.Orders, entered: make(chan struct{}), unblock: make(chan struct{})}
	store.Orders = stale
	h := newHarnessWithStore(t, store)
	ctx := context.Background()
	o := h.createOrder(t, "p1", "u1", "u2")

	// the retry loads the pending order, then the first call lands
	retried := make(chan bool, 1)
	go func() {
		ok, err := h.orders.Transition(ctx, o.ID, domain.OrderMeetConfirmed, "u1", TransitionExtra{})
		assert.NoError(t, err)
		retried <- ok
	}()
	<-stale.entered
	assert.True(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, "u1"))
	close(stale.unblock)
	assert.True(t, <-retried)
	assert.Equal(t, 1, h.auditCount(t, domain.AuditOrderStatusChanged))

	assert.False(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, "u1"))
	_, err := h.orders.Transition(ctx, o.ID, domain.OrderPaidConfirmed, "u1", TransitionExtra{})
	assert.Equal(t, domain.CodeRateLimit, domain.CodeOf(err), "an edge the actor does not own stays throttled")
}

// staleRead returns the first FindById result only after the test lets it,
// so its caller acts on an outdated copy.
type staleRead struct {
	repo.OrderRepo
	parked  atomic.Bool
	entered chan struct{}
	unblock chan struct{}
}

func (r *staleRead) FindById(ctx context.Context, id string) (*domain.Order, error) {
	o, err := r.OrderRepo.FindById(ctx, id)
	if r.parked.CompareAndSwap(false, true) {
		close(r.entered)
		<-r.unblock
	}
	return o, err
}

func TestOverlappingCreateIsDuplicateSubmit(t *testing.T) {
	store := memory.NewStore()
	entered := make(chan struct{})
	unblock := make(chan struct{})
	store.Orders = &slowActiveLookup{OrderRepo: store.Orders, entered: entered, unblock: unblock}
	h := newHarnessWithStore(t, store)
	ctx := context.Background()
	in := domain.NewOrderInput{ProductID: "p1", BuyerID: "u1", Seller: domain.SellerContext{SellerID: "u2"}}

	done := make(chan error, 1)
	go func() {
		_, err := h.orders.CreateOrder(ctx, in)
		done <- err
	}()
	<-entered
	_, err := h.orders.CreateOrder(ctx, in)
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmit)
	close(unblock)
	require.NoError(t, <-done)
}

// slowActiveLookup parks the first active-order lookup until released.
type slowActiveLookup struct {
	repo.OrderRepo
	parked  atomic.Bool
	entered chan struct{}
	unblock chan struct{}
}

func (r *slowActiveLookup) FindActiveByProduct(ctx context.Context, productID string) (*domain.Order, error) {
	if r.parked.CompareAndSwap(false, true) {
		close(r.entered)
		<-r.unblock
	}
	return r.OrderRepo.FindActiveByProduct(ctx, productID)
}
