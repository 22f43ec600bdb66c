package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kds/internal/feed"
	"kds/internal/models"
	"kds/internal/ticket"
	"kds/internal/workflow"
)

type Feed interface {
	Current() (feed.Snapshot, bool)
	RefreshNow(ctx context.Context) (feed.Snapshot, error)
	Start()
	Stop()
	Running() bool
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
}

type Mutator interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error)
	UpdateItemStatus(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error)
	AdvanceOrder(ctx context.Context, order models.Order) (models.Order, error)
	AdvanceItem(ctx context.Context, orderID string, item models.OrderItem) (json.RawMessage, error)
}

type Notifications interface {
	List() []models.Notification
	Remove(orderID string) bool
	ClearAll()
	ToggleSound(enabled bool)
	SoundEnabled() bool
}

type Options struct {
	TicketWidth   int
	LateThreshold time.Duration
	Location      *time.Location
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

type Handler struct {
	feed          Feed
	orders        OrderReader
	mutator       Mutator
	notifications Notifications

	ticketWidth   int
	lateThreshold time.Duration
	location      *time.Location
	log           logrus.FieldLogger
	now           func() time.Time
}

type orderView struct {
	models.Order
	Late       bool  `json:"late"`
	AgeSeconds int64 `json:"ageSeconds"`
}

type ordersResponse struct {
	Orders    []orderView `json:"orders"`
	FetchedAt *time.Time  `json:"fetchedAt,omitempty"`
	Running   bool        `json:"running"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type soundRequest struct {
	Enabled *bool `json:"enabled"`
}

type soundResponse struct {
	Enabled bool `json:"enabled"`
}

type feedResponse struct {
	Running bool `json:"running"`
}

type itemUpdateResponse struct {
	Data json.RawMessage `json:"data"`
}

type notificationsResponse struct {
	Notifications []models.Notification `json:"notifications"`
	SoundEnabled  bool                  `json:"soundEnabled"`
}

func NewHandler(f Feed, orders OrderReader, mutator Mutator, notifications Notifications, options Options) *Handler {
	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		feed:          f,
		orders:        orders,
		mutator:       mutator,
		notifications: notifications,
		ticketWidth:   options.TicketWidth,
		lateThreshold: options.LateThreshold,
		location:      loc,
		log:           log,
		now:           now,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /api/orders", h.handleListOrders)
	mux.HandleFunc("POST /api/orders/refresh", h.handleRefresh)
	mux.HandleFunc("GET /api/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("GET /api/orders/{id}/ticket", h.handleTicket)
	mux.HandleFunc("PUT /api/orders/{id}/status", h.handleOrderStatus)
	mux.HandleFunc("POST /api/orders/{id}/advance", h.handleAdvanceOrder)
	mux.HandleFunc("PUT /api/orders/{id}/items/{itemId}/status", h.handleItemStatus)
	mux.HandleFunc("POST /api/orders/{id}/items/{itemId}/advance", h.handleAdvanceItem)
	mux.HandleFunc("GET /api/notifications", h.handleListNotifications)
	mux.HandleFunc("DELETE /api/notifications", h.handleClearNotifications)
	mux.HandleFunc("DELETE /api/notifications/{orderId}", h.handleDismissNotification)
	mux.HandleFunc("GET /api/notifications/sound", h.handleGetSound)
	mux.HandleFunc("PUT /api/notifications/sound", h.handleSetSound)
	mux.HandleFunc("POST /api/feed/start", h.handleFeedStart)
	mux.HandleFunc("POST /api/feed/stop", h.handleFeedStop)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	status := models.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !workflow.ValidOrderStatus(status) {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_status", "unknown order status")
		return
	}
	snap, ok := h.feed.Current()
	writeJSON(w, http.StatusOK, h.ordersResponse(snap, ok, status))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.feed.RefreshNow(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ordersResponse(snap, true, ""))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(order))
}

func (h *Handler) handleTicket(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = ticket.Write(w, order, ticket.Options{Width: h.ticketWidth, Location: h.location})
}

func (h *Handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "status is required")
		return
	}
	order, err := h.mutator.UpdateOrderStatus(r.Context(), orderID, models.OrderStatus(status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(order))
}

func (h *Handler) handleAdvanceOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	updated, err := h.mutator.AdvanceOrder(r.Context(), order)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(updated))
}

func (h *Handler) handleItemStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "status is required")
		return
	}
	data, err := h.mutator.UpdateItemStatus(r.Context(), orderID, itemID, models.OrderItemStatus(status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemUpdateResponse{Data: data})
}

func (h *Handler) handleAdvanceItem(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	item, found := order.FindItem(itemID)
	if !found {
		writeError(w, requestID(r), http.StatusNotFound, "item_not_found", "item not found")
		return
	}
	data, err := h.mutator.AdvanceItem(r.Context(), order.ID, item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemUpdateResponse{Data: data})
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, notificationsResponse{
		Notifications: h.notifications.List(),
		SoundEnabled:  h.notifications.SoundEnabled(),
	})
}

func (h *Handler) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	if !h.notifications.Remove(orderID) {
		writeError(w, requestID(r), http.StatusNotFound, "notification_not_found", "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	h.notifications.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetSound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, soundResponse{Enabled: h.notifications.SoundEnabled()})
}

func (h *Handler) handleSetSound(w http.ResponseWriter, r *http.Request) {
	var req soundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "enabled is required")
		return
	}
	h.notifications.ToggleSound(*req.Enabled)
	writeJSON(w, http.StatusOK, soundResponse{Enabled: h.notifications.SoundEnabled()})
}

func (h *Handler) handleFeedStart(w http.ResponseWriter, r *http.Request) {
	h.feed.Start()
	writeJSON(w, http.StatusOK, feedResponse{Running: h.feed.Running()})
}

func (h *Handler) handleFeedStop(w http.ResponseWriter, r *http.Request) {
	h.feed.Stop()
	writeJSON(w, http.StatusOK, feedResponse{Running: h.feed.Running()})
}

// loadOrder fetches the authoritative order from the backend; blank and
// unknown ids end as 404.
func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (models.Order, bool) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return models.Order{}, false
	}
	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if isOrderLookupRejected(err) {
			h.log.WithField("order_id", orderID).WithError(err).Info("order lookup rejected")
			writeError(w, requestID(r), http.StatusNotFound, "order_not_found", "order not found")
			return models.Order{}, false
		}
		h.fail(w, r, err)
		return models.Order{}, false
	}
	return order, true
}

func (h *Handler) ordersResponse(snap feed.Snapshot, ok bool, status models.OrderStatus) ordersResponse {
	resp := ordersResponse{Orders: []orderView{}, Running: h.feed.Running()}
	if !ok {
		return resp
	}
	fetchedAt := snap.FetchedAt
	resp.FetchedAt = &fetchedAt
	for _, order := range models.SortByCreatedAt(models.FilterByStatus(snap.Orders, status)) {
		resp.Orders = append(resp.Orders, h.view(order))
	}
	return resp
}

func (h *Handler) view(order models.Order) orderView {
	now := h.now()
	return orderView{
		Order:      order,
		Late:       order.IsLate(now, h.lateThreshold),
		AgeSeconds: int64(order.Age(now) / time.Second),
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if code == "order_not_found" && strings.TrimSpace(r.PathValue("itemId")) != "" && !isOrderMissing(err) {
		code = "item_not_found"
	}
	entry := h.log.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": status,
		"code":   code,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Warn("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeError(w, requestID(r), status, code, message)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := strings.TrimSpace(r.PathValue(name))
	if id == "" {
		writeError(w, requestID(r), http.StatusNotFound, notFoundCode(name), "not found")
		return "", false
	}
	return id, true
}

func notFoundCode(name string) string {
	switch name {
	case "itemId":
		return "item_not_found"
	case "orderId":
		return "notification_not_found"
	default:
		return "order_not_found"
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func requestID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(requestIDHeader))
}
