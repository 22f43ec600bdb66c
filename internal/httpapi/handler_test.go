package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"kds/internal/feed"
	"kds/internal/models"
	"kds/internal/staffapi"
	"kds/internal/workflow"
)

type fakeFeed struct {
	snapshot  feed.Snapshot
	hasSnap   bool
	refreshFn func(ctx context.Context) (feed.Snapshot, error)
	running   bool
	starts    int
	stops     int
}

func (f *fakeFeed) Current() (feed.Snapshot, bool) {
	return f.snapshot, f.hasSnap
}

func (f *fakeFeed) RefreshNow(ctx context.Context) (feed.Snapshot, error) {
	if f.refreshFn == nil {
		return f.snapshot, nil
	}
	return f.refreshFn(ctx)
}

func (f *fakeFeed) Start() {
	f.starts++
	f.running = true
}

func (f *fakeFeed) Stop() {
	f.stops++
	f.running = false
}

func (f *fakeFeed) Running() bool {
	return f.running
}

type fakeOrders struct {
	getFn func(ctx context.Context, orderID string) (models.Order, error)
}

func (f fakeOrders) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	if f.getFn == nil {
		return models.Order{}, &staffapi.APIError{StatusCode: http.StatusNotFound, Message: "Order not found"}
	}
	return f.getFn(ctx, orderID)
}

type fakeMutator struct {
	updateOrderFn func(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error)
	updateItemFn  func(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error)
	advanceFn     func(ctx context.Context, order models.Order) (models.Order, error)
	advanceItemFn func(ctx context.Context, orderID string, item models.OrderItem) (json.RawMessage, error)
}

func (f fakeMutator) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
	if f.updateOrderFn == nil {
		return models.Order{ID: orderID, Status: status}, nil
	}
	return f.updateOrderFn(ctx, orderID, status)
}

func (f fakeMutator) UpdateItemStatus(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error) {
	if f.updateItemFn == nil {
		return json.RawMessage(`{}`), nil
	}
	return f.updateItemFn(ctx, orderID, itemID, status)
}

func (f fakeMutator) AdvanceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	if f.advanceFn == nil {
		return order, nil
	}
	return f.advanceFn(ctx, order)
}

func (f fakeMutator) AdvanceItem(ctx context.Context, orderID string, item models.OrderItem) (json.RawMessage, error) {
	if f.advanceItemFn == nil {
		return json.RawMessage(`{}`), nil
	}
	return f.advanceItemFn(ctx, orderID, item)
}

type fakeNotifications struct {
	items []models.Notification
	sound bool
}

func (f *fakeNotifications) List() []models.Notification {
	return f.items
}

func (f *fakeNotifications) Remove(orderID string) bool {
	for i, n := range f.items {
		if n.OrderID == orderID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeNotifications) ClearAll() {
	f.items = nil
}

func (f *fakeNotifications) ToggleSound(enabled bool) {
	f.sound = enabled
}

func (f *fakeNotifications) SoundEnabled() bool {
	return f.sound
}

var testNow = time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC)

type testDeps struct {
	feed          *fakeFeed
	orders        fakeOrders
	mutator       fakeMutator
	notifications *fakeNotifications
}

func newTestHandler(deps testDeps) http.Handler {
	if deps.feed == nil {
		deps.feed = &fakeFeed{}
	}
	if deps.notifications == nil {
		deps.notifications = &fakeNotifications{sound: true}
	}
	log, _ := logtest.NewNullLogger()
	h := NewHandler(deps.feed, deps.orders, deps.mutator, deps.notifications, Options{
		LateThreshold: 15 * time.Minute,
		Location:      time.UTC,
		Logger:        log,
		Now:           func() time.Time { return testNow },
	})
	return h.Routes()
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) responseError {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func TestListOrdersSortedAndFiltered(t *testing.T) {
	f := &fakeFeed{
		hasSnap: true,
		running: true,
		snapshot: feed.Snapshot{
			FetchedAt: testNow,
			Orders: []models.Order{
				{ID: "b", Status: models.StatusPreparing, CreatedAt: testNow.Add(-5 * time.Minute)},
				{ID: "a", Status: models.StatusPlaced, CreatedAt: testNow.Add(-20 * time.Minute)},
				{ID: "c", Status: models.StatusPlaced, CreatedAt: testNow.Add(-1 * time.Minute)},
			},
		},
	}
	handler := newTestHandler(testDeps{feed: f})

	rec := do(t, handler, http.MethodGet, "/api/orders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Orders []struct {
			ID   string `json:"_id"`
			Late bool   `json:"late"`
		} `json:"orders"`
		Running bool `json:"running"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 3 || resp.Orders[0].ID != "a" || resp.Orders[2].ID != "c" {
		t.Fatalf("unexpected order list %+v", resp.Orders)
	}
	if !resp.Orders[0].Late || resp.Orders[1].Late {
		t.Fatalf("unexpected lateness %+v", resp.Orders)
	}
	if !resp.Running {
		t.Fatalf("expected running feed")
	}

	rec = do(t, handler, http.MethodGet, "/api/orders?status=placed", "")
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 2 {
		t.Fatalf("expected 2 placed orders, got %d", len(resp.Orders))
	}
}

func TestListOrdersBeforeFirstFetch(t *testing.T) {
	handler := newTestHandler(testDeps{})
	rec := do(t, handler, http.MethodGet, "/api/orders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"orders":[]`) {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}

func TestListOrdersInvalidStatus(t *testing.T) {
	handler := newTestHandler(testDeps{})
	rec := do(t, handler, http.MethodGet, "/api/orders?status=cooking", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "invalid_status" {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestRefreshFailureIsBadGateway(t *testing.T) {
	f := &fakeFeed{refreshFn: func(ctx context.Context) (feed.Snapshot, error) {
		return feed.Snapshot{}, &staffapi.APIError{StatusCode: http.StatusInternalServerError, Message: "db down"}
	}}
	handler := newTestHandler(testDeps{feed: f})

	rec := do(t, handler, http.MethodPost, "/api/orders/refresh", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Message; msg != "db down" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	handler := newTestHandler(testDeps{})
	rec := do(t, handler, http.MethodGet, "/api/orders/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "order_not_found" {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestGetOrderBlankID(t *testing.T) {
	handler := newTestHandler(testDeps{orders: fakeOrders{getFn: func(ctx context.Context, orderID string) (models.Order, error) {
		t.Fatalf("backend must not be called for a blank id")
		return models.Order{}, nil
	}}})
	rec := do(t, handler, http.MethodGet, "/api/orders/%20", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTicketIsPlainText(t *testing.T) {
	handler := newTestHandler(testDeps{orders: fakeOrders{getFn: func(ctx context.Context, orderID string) (models.Order, error) {
		return models.Order{ID: orderID, Status: models.StatusPlaced, CreatedAt: testNow}, nil
	}}})
	rec := do(t, handler, http.MethodGet, "/api/orders/abc123/ticket", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "ORDER #ABC123") {
		t.Fatalf("unexpected ticket %s", rec.Body.String())
	}
}

func TestUpdateOrderStatusSuccess(t *testing.T) {
	var gotStatus models.OrderStatus
	handler := newTestHandler(testDeps{mutator: fakeMutator{
		updateOrderFn: func(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
			gotStatus = status
			return models.Order{ID: orderID, Status: status}, nil
		},
	}})

	rec := do(t, handler, http.MethodPut, "/api/orders/o1/status", `{"status":"preparing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotStatus != models.StatusPreparing {
		t.Fatalf("unexpected status %s", gotStatus)
	}
}

func TestUpdateOrderStatusInvalidBody(t *testing.T) {
	handler := newTestHandler(testDeps{})
	rec := do(t, handler, http.MethodPut, "/api/orders/o1/status", `{"state":"ready"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = do(t, handler, http.MethodPut, "/api/orders/o1/status", `{"status":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateOrderStatusInvalidTransition(t *testing.T) {
	handler := newTestHandler(testDeps{mutator: fakeMutator{
		updateOrderFn: func(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
			return models.Order{}, workflow.ErrInvalidTransition
		},
	}})
	rec := do(t, handler, http.MethodPut, "/api/orders/o1/status", `{"status":"completed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestUpdateOrderStatusSurfacesBackendMessage(t *testing.T) {
	handler := newTestHandler(testDeps{mutator: fakeMutator{
		updateOrderFn: func(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
			return models.Order{}, &staffapi.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid status"}
		},
	}})
	rec := do(t, handler, http.MethodPut, "/api/orders/o1/status", `{"status":"ready"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Message; msg != "Invalid status" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAdvanceOrderTerminal(t *testing.T) {
	handler := newTestHandler(testDeps{
		orders: fakeOrders{getFn: func(ctx context.Context, orderID string) (models.Order, error) {
			return models.Order{ID: orderID, Status: models.StatusCompleted}, nil
		}},
		mutator: fakeMutator{advanceFn: func(ctx context.Context, order models.Order) (models.Order, error) {
			return models.Order{}, workflow.ErrTerminalStatus
		}},
	})
	rec := do(t, handler, http.MethodPost, "/api/orders/o1/advance", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "terminal_status" {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestAdvanceItemUnknownItem(t *testing.T) {
	handler := newTestHandler(testDeps{
		orders: fakeOrders{getFn: func(ctx context.Context, orderID string) (models.Order, error) {
			return models.Order{ID: orderID, Items: []models.OrderItem{{ID: "i1", Status: models.ItemStatusOrdered}}}, nil
		}},
	})
	rec := do(t, handler, http.MethodPost, "/api/orders/o1/items/i2/advance", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodPost, "/api/orders/o1/items/i1/advance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUpdateItemStatusPassesData(t *testing.T) {
	handler := newTestHandler(testDeps{mutator: fakeMutator{
		updateItemFn: func(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error) {
			if orderID != "o1" || itemID != "i1" || status != models.ItemStatusReady {
				return nil, errors.New("unexpected arguments")
			}
			return json.RawMessage(`{"item":{"_id":"i1"}}`), nil
		},
	}})
	rec := do(t, handler, http.MethodPut, "/api/orders/o1/items/i1/status", `{"status":"ready"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"item":{"_id":"i1"}`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestNotificationsLifecycle(t *testing.T) {
	notifications := &fakeNotifications{
		sound: true,
		items: []models.Notification{{OrderID: "a"}, {OrderID: "b"}},
	}
	handler := newTestHandler(testDeps{notifications: notifications})

	rec := do(t, handler, http.MethodGet, "/api/notifications", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"orderId":"a"`) {
		t.Fatalf("unexpected list response %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodDelete, "/api/notifications/a", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = do(t, handler, http.MethodDelete, "/api/notifications/a", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodDelete, "/api/notifications", "")
	if rec.Code != http.StatusNoContent || len(notifications.items) != 0 {
		t.Fatalf("expected cleared list")
	}
}

func TestSoundToggle(t *testing.T) {
	notifications := &fakeNotifications{sound: true}
	handler := newTestHandler(testDeps{notifications: notifications})

	rec := do(t, handler, http.MethodPut, "/api/notifications/sound", `{"enabled":false}`)
	if rec.Code != http.StatusOK || notifications.sound {
		t.Fatalf("expected sound disabled, got %d", rec.Code)
	}
	rec = do(t, handler, http.MethodPut, "/api/notifications/sound", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = do(t, handler, http.MethodGet, "/api/notifications/sound", "")
	if !strings.Contains(rec.Body.String(), `"enabled":false`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestFeedStartStop(t *testing.T) {
	f := &fakeFeed{}
	handler := newTestHandler(testDeps{feed: f})

	rec := do(t, handler, http.MethodPost, "/api/feed/start", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"running":true`) {
		t.Fatalf("unexpected start response %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, handler, http.MethodPost, "/api/feed/stop", "")
	if !strings.Contains(rec.Body.String(), `"running":false`) || f.starts != 1 || f.stops != 1 {
		t.Fatalf("unexpected stop response %s", rec.Body.String())
	}
}

func TestMapErrorUnreachable(t *testing.T) {
	status, code, _ := mapError(errors.Join(context.DeadlineExceeded))
	if status != http.StatusGatewayTimeout || code != "upstream_timeout" {
		t.Fatalf("unexpected mapping %d %s", status, code)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestLoggingMiddlewareAssignsRequestID(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	var seen string
	handler := LoggingMiddleware(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(requestIDHeader)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if seen == "" || rec.Header().Get(requestIDHeader) != seen {
		t.Fatalf("request id not propagated: handler=%q response=%q", seen, rec.Header().Get(requestIDHeader))
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["status"] != http.StatusTeapot || entry.Data["request_id"] != seen {
		t.Fatalf("unexpected log entry %+v", entry)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	handler.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get(requestIDHeader) != "abc-123" {
		t.Fatalf("caller request id replaced: %q", seen)
	}
}

func TestMalformedOrderIDIsNotFound(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"Invalid id"}`))
	}))
	defer backend.Close()

	client := staffapi.New(backend.URL+"/api", staffapi.WithHTTPClient(backend.Client()))
	log, _ := logtest.NewNullLogger()
	handler := NewHandler(&fakeFeed{}, client, fakeMutator{}, &fakeNotifications{}, Options{
		Logger: log,
		Now:    func() time.Time { return testNow },
	}).Routes()

	for _, path := range []string{
		"/api/orders/not-a-uuid",
		"/api/orders/not-a-uuid/ticket",
	} {
		rec := do(t, handler, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
		if code := decodeError(t, rec).Code; code != "order_not_found" {
			t.Fatalf("%s: unexpected code %s", path, code)
		}
	}
	rec := do(t, handler, http.MethodPost, "/api/orders/not-a-uuid/advance", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("advance: expected 404, got %d", rec.Code)
	}
}

func TestUnknownItemFromBackendIsItemNotFound(t *testing.T) {
	handler := newTestHandler(testDeps{mutator: fakeMutator{
		updateItemFn: func(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error) {
			if orderID == "gone" {
				return nil, &staffapi.APIError{StatusCode: http.StatusNotFound, Message: "Order not found"}
			}
			return nil, &staffapi.APIError{StatusCode: http.StatusNotFound, Message: "Item not found"}
		},
	}})

	rec := do(t, handler, http.MethodPut, "/api/orders/o1/items/i9/status", `{"status":"preparing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "item_not_found" {
		t.Fatalf("unexpected code %s", code)
	}

	rec = do(t, handler, http.MethodPut, "/api/orders/gone/items/i1/status", `{"status":"preparing"}`)
	if code := decodeError(t, rec).Code; code != "order_not_found" {
		t.Fatalf("unexpected code %s for a missing order", code)
	}
}

func TestRateLimiterSkipsExemptPathsAndSetsRetryAfter(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		IPPerMinute: 1,
		IPBurst:     1,
		Exempt:      []string{"/realtime/"},
	})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	send := func(path, station string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.2:5000"
		if station != "" {
			req.Header.Set(stationHeader, station)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		if rec := send("/realtime/info", ""); rec.Code != http.StatusOK {
			t.Fatalf("realtime request %d limited: %d", i, rec.Code)
		}
	}
	if rec := send("/api/orders", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected first api request to pass, got %d", rec.Code)
	}
	rec := send("/api/orders", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
}

func TestTokenLimiterRefillsPerStation(t *testing.T) {
	clock := time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 1)
	limiter.now = func() time.Time { return clock }

	if _, ok := limiter.allow("grill"); !ok {
		t.Fatalf("first request must pass")
	}
	wait, ok := limiter.allow("grill")
	if ok || wait <= 0 || wait > time.Second {
		t.Fatalf("expected a wait of at most one second, got %v ok=%v", wait, ok)
	}
	if _, ok := limiter.allow("fryer"); !ok {
		t.Fatalf("stations must not share a bucket")
	}
	clock = clock.Add(time.Second)
	if _, ok := limiter.allow("grill"); !ok {
		t.Fatalf("bucket did not refill")
	}
}
