package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"campus-market/internal/clock"
	"campus-market/internal/domain"
	"campus-market/internal/infrastructure/catalog"
	"campus-market/internal/infrastructure/keylock"
	"campus-market/internal/infrastructure/ratelimit"
	"campus-market/internal/repo"
	"campus-market/internal/repo/memory"
	"campus-market/internal/worker"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	store      repo.Store
	clock      *clock.Fake
	catalog    *catalog.Memory
	locks      *keylock.Set
	dispatcher *worker.Dispatcher
	points     PointsService
	trust      TrustService
	audit      AuditService
	orders     OrderService
	tasks      TaskService
	logs       *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.NewStore())
}

func newHarnessWithStore(t *testing.T, store repo.Store) *harness {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	h := &harness{
		store:   store,
		clock:   clock.NewFake(t0),
		catalog: catalog.NewMemory(),
		locks:   keylock.New(),
		logs:    hook,
	}
	h.dispatcher = worker.NewDispatcher(log, worker.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.dispatcher.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h.points = NewPointsService(store.Ledger, h.clock, log)
	h.trust = NewTrustService(store.Trust, h.clock, log)
	h.audit = NewAuditService(store.Audit)
	effects := NewSideEffects(h.dispatcher, h.catalog, h.points, h.trust, h.audit, h.clock, log)
	limiter := ratelimit.New(h.clock)
	h.orders = NewOrderService(store, effects, limiter, h.locks, h.clock, DefaultOrderPolicy(), log)
	h.tasks = NewTaskService(store, effects, limiter, h.clock, DefaultTaskPolicy(), log)
	return h
}

func (h *harness) flush() { h.dispatcher.Flush() }

func (h *harness) createOrder(t *testing.T, productID, buyerID, sellerID string) *domain.Order {
	t.Helper()
	o, err := h.orders.CreateOrder(context.Background(), domain.NewOrderInput{
		ProductID: productID,
		BuyerID:   buyerID,
		BuyerName: "alice",
		Seller: domain.SellerContext{
			SellerID:     sellerID,
			SellerName:   "bob",
			ProductTitle: "desk lamp",
			ProductPrice: decimal.NewFromInt(50),
		},
	})
	require.NoError(t, err)
	return o
}

func (h *harness) transition(t *testing.T, orderID string, target domain.OrderStatus, actorID string) bool {
	t.Helper()
	ok, err := h.orders.Transition(context.Background(), orderID, target, actorID, TransitionExtra{})
	require.NoError(t, err)
	return ok
}

func (h *harness) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := h.store.Orders.FindById(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func (h *harness) task(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := h.store.Tasks.FindById(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, task)
	return task
}

func (h *harness) auditCount(t *testing.T, action string) int {
	t.Helper()
	h.flush()
	events, err := h.store.Audit.List(context.Background(), action, 0)
	require.NoError(t, err)
	return len(events)
}

// completeOrder walks an order through the happy path.
func (h *harness) completeOrder(t *testing.T, o *domain.Order) {
	t.Helper()
	require.True(t, h.transition(t, o.ID, domain.OrderMeetConfirmed, o.BuyerID))
	require.True(t, h.transition(t, o.ID, domain.OrderPaidConfirmed, o.SellerID))
	require.True(t, h.transition(t, o.ID, domain.OrderReceivedConfirmed, o.BuyerID))
	require.True(t, h.transition(t, o.ID, domain.OrderCompleted, o.BuyerID))
}

// readGate holds the first n reads until all of them arrived, so
// overlapping callers load the same pre-image. Later reads pass through.
type readGate struct {
	mu      sync.Mutex
	n       int
	arrived int
	open    chan struct{}
}

func newReadGate(n int) *readGate {
	return &readGate{n: n, open: make(chan struct{})}
}

func (g *readGate) wait() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.arrived++
	if g.arrived > g.n {
		g.mu.Unlock()
		return
	}
	if g.arrived == g.n {
		close(g.open)
	}
	g.mu.Unlock()
	<-g.open
}

type gatedOrders struct {
	repo.OrderRepo
	gate *readGate
}

func (r *gatedOrders) FindById(ctx context.Context, id string) (*domain.Order, error) {
	r.gate.wait()
	return r.OrderRepo.FindById(ctx, id)
}

type gatedTasks struct {
	repo.TaskRepo
	gate *readGate
}

func (r *gatedTasks) FindById(ctx context.Context, id string) (*domain.Task, error) {
	r.gate.wait()
	return r.TaskRepo.FindById(ctx, id)
}

// gatedHarness routes order and task reads through gates armed by the test.
func gatedHarness(t *testing.T) (*harness, *gatedOrders, *gatedTasks) {
	t.Helper()
	store := memory.NewStore()
	orders := &gatedOrders{OrderRepo: store.Orders}
	tasks := &gatedTasks{TaskRepo: store.Tasks}
	store.Orders = orders
	store.Tasks = tasks
	return newHarnessWithStore(t, store), orders, tasks
}
