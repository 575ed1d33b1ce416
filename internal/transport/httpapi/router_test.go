package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campus-market/internal/clock"
	"campus-market/internal/domain"
	"campus-market/internal/infrastructure/catalog"
	"campus-market/internal/infrastructure/keylock"
	"campus-market/internal/infrastructure/ratelimit"
	"campus-market/internal/repo/memory"
	"campus-market/internal/service"
	"campus-market/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router     *gin.Engine
	clock      *clock.Fake
	catalog    *catalog.Memory
	dispatcher *worker.Dispatcher
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()

	f := &apiFixture{
		clock:      clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		catalog:    catalog.NewMemory(),
		dispatcher: worker.NewDispatcher(log, worker.DefaultOptions()),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.dispatcher.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	store := memory.NewStore()
	points := service.NewPointsService(store.Ledger, f.clock, log)
	trust := service.NewTrustService(store.Trust, f.clock, log)
	audit := service.NewAuditService(store.Audit)
	effects := service.NewSideEffects(f.dispatcher, f.catalog, points, trust, audit, f.clock, log)
	limiter := ratelimit.New(f.clock)

	f.router = NewRouter(Deps{
		Orders: service.NewOrderService(store, effects, limiter, keylock.New(), f.clock, service.DefaultOrderPolicy(), log),
		Tasks:  service.NewTaskService(store, effects, limiter, f.clock, service.DefaultTaskPolicy(), log),
		Points: points,
		Trust:  trust,
		Audit:  audit,
		Log:    log,
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	// keep consecutive calls clear of the per-actor throttles
	f.clock.Advance(3 * time.Second)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", decode[map[string]string](t, w)["status"])
}

func TestHealthDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	r := NewRouter(Deps{
		Log: log,
		Health: func(context.Context) map[string]string {
			return map[string]string{"status": "down", "error": "db down"}
		},
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/orders", "", gin.H{"productId": "p1", "sellerId": "s1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(domain.CodeAuthRequired), decode[map[string]string](t, w)["code"])
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/orders", "b1", gin.H{
		"productId": "p1", "sellerId": "s1", "productTitle": "lamp", "productPrice": "12.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[domain.Order](t, w)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, "12.5", order.ProductPrice.String())

	w = f.do(t, http.MethodPost, "/orders", "b2", gin.H{"productId": "p1", "sellerId": "s1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(domain.CodeInvalidState), decode[map[string]string](t, w)["code"])

	steps := []struct {
		actor  string
		status domain.OrderStatus
	}{
		{"b1", domain.OrderMeetConfirmed},
		{"s1", domain.OrderPaidConfirmed},
		{"b1", domain.OrderReceivedConfirmed},
		{"s1", domain.OrderCompleted},
	}
	for _, step := range steps {
		w = f.do(t, http.MethodPost, "/orders/"+order.ID+"/transitions", step.actor, gin.H{"status": step.status})
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", step.status, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/orders/"+order.ID, "b1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.OrderCompleted, decode[domain.Order](t, w).Status)

	w = f.do(t, http.MethodGet, "/orders/"+order.ID, "stranger", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/orders/"+order.ID+"/reviews", "b1", gin.H{"score": 5, "content": "smooth"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, "/orders/"+order.ID+"/reviews", "b1", gin.H{"score": 4})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/orders/"+order.ID+"/reviews", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reviews := decode[struct {
		Reviews []domain.Review `json:"reviews"`
	}](t, w)
	assert.Len(t, reviews.Reviews, 1)

	f.dispatcher.Flush()
	status, ok := f.catalog.Status("p1")
	require.True(t, ok)
	assert.Equal(t, catalog.ProductSold, status)

	w = f.do(t, http.MethodGet, "/users/s1/points", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Positive(t, decode[domain.PointsSummary](t, w).Total)
}

func TestIllegalTransitionIsConflict(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/orders", "b1", gin.H{"productId": "p1", "sellerId": "s1"})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[domain.Order](t, w)

	w = f.do(t, http.MethodPost, "/orders/"+order.ID+"/transitions", "b1", gin.H{"status": domain.OrderCompleted})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["ok"])

	w = f.do(t, http.MethodPost, "/orders/"+order.ID+"/transitions", "b1", gin.H{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/orders/missing/transitions", "b1", gin.H{"status": domain.OrderCancelled})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrderRateLimited(t *testing.T) {
	f := newFixture(t)
	body := gin.H{"productId": "p1", "sellerId": "s1"}

	req := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		r := httptest.NewRequest(http.MethodPost, "/orders", &buf)
		r.Header.Set(UserHeader, "b1")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, r)
		return w
	}
	require.Equal(t, http.StatusCreated, req().Code)
	assert.Equal(t, http.StatusTooManyRequests, req().Code)
}

func TestTaskDualConfirmOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/tasks", "pub", gin.H{"title": "fetch parcel", "type": "other", "reward": "3"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task := decode[domain.Task](t, w)

	w = f.do(t, http.MethodPost, "/tasks/"+task.ID+"/take", "helper", gin.H{"userName": "Hal"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, "/tasks/"+task.ID+"/take", "other", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/tasks/"+task.ID+"/status", "pub", gin.H{"status": domain.TaskConfirmComplete})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(service.ConfirmPartial), decode[map[string]any](t, w)["result"])

	w = f.do(t, http.MethodPost, "/tasks/"+task.ID+"/status", "helper", gin.H{"status": domain.TaskConfirmComplete})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(service.ConfirmCompleted), decode[map[string]any](t, w)["result"])

	w = f.do(t, http.MethodGet, "/tasks/"+task.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.TaskCompleted, decode[domain.Task](t, w).Status)

	w = f.do(t, http.MethodGet, "/tasks/mine", "helper", nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[service.MyTasks](t, w)
	assert.Len(t, mine.Accepted, 1)
	assert.Empty(t, mine.Published)

	w = f.do(t, http.MethodGet, "/users/helper/task-stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	f.dispatcher.Flush()
	w = f.do(t, http.MethodGet, "/users/helper/trust", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trust struct {
		Record domain.TrustRecord `json:"record"`
		Level  domain.TrustLevel  `json:"level"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trust))
	assert.Equal(t, 1, trust.Record.CompletedTasks)
	assert.NotEmpty(t, trust.Level)
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString("{"))
	req.Header.Set(UserHeader, "pub")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRankingAndAuditLogs(t *testing.T) {
	f := newFixture(t)
	for i, user := range []string{"pub-b", "pub-a", "pub-a"} {
		w := f.do(t, http.MethodPost, "/tasks", user, gin.H{"title": fmt.Sprintf("errand %d", i)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		f.dispatcher.Flush()
	}

	w := f.do(t, http.MethodGet, "/points/ranking?limit=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ranking := decode[struct {
		Ranking []domain.RankEntry `json:"ranking"`
	}](t, w)
	require.Len(t, ranking.Ranking, 1)
	assert.Equal(t, "pub-a", ranking.Ranking[0].UserID)
	assert.Equal(t, 16, ranking.Ranking[0].Total)

	w = f.do(t, http.MethodGet, "/points/ranking?limit=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/audit-logs?action="+domain.AuditTaskPublished, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/audit-logs?action="+domain.AuditTaskPublished+"&limit=2", "ops", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	audit := decode[struct {
		Events []domain.AuditEvent `json:"events"`
	}](t, w)
	require.Len(t, audit.Events, 2)
	for _, e := range audit.Events {
		assert.Equal(t, domain.AuditTaskPublished, e.Action)
	}
	assert.Equal(t, "pub-a", audit.Events[0].UserID, "newest first")
}
