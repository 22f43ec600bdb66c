// Package ordersapi serves the staff orders REST API behind the kitchen display.
package ordersapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kds/internal/events"
	"kds/internal/models"
	"kds/internal/store"
	"kds/internal/workflow"
)

type Handler struct {
	store     store.OrderStore
	publisher events.Publisher
	validate  *validator.Validate
	log       logrus.FieldLogger
	now       func() time.Time
}

type Options struct {
	Logger logrus.FieldLogger
	Now    func() time.Time
}

type tableRequest struct {
	ID     string `json:"_id" validate:"max=64"`
	Number int    `json:"tableNumber" validate:"gte=0,lte=9999"`
}

type customerRequest struct {
	ID    string `json:"_id" validate:"required,max=64"`
	Name  string `json:"name" validate:"max=120"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type productRequest struct {
	ID   string `json:"_id" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=120"`
}

type addonChoiceRequest struct {
	ID    string          `json:"_id" validate:"max=64"`
	Name  string          `json:"name" validate:"required,max=120"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
}

type addonRequest struct {
	Addon    addonChoiceRequest  `json:"addon"`
	SubAddon *addonChoiceRequest `json:"subAddon" validate:"omitempty"`
}

type itemRequest struct {
	Product             productRequest  `json:"product"`
	Quantity            int             `json:"quantity" validate:"required,min=1,max=99"`
	Price               decimal.Decimal `json:"price" validate:"gte=0"`
	SpecialInstructions string          `json:"specialInstructions" validate:"max=250"`
	SelectedAddons      []addonRequest  `json:"selectedAddons" validate:"max=20,dive"`
}

type createOrderRequest struct {
	Table               *tableRequest    `json:"table" validate:"omitempty"`
	Customer            *customerRequest `json:"customer" validate:"omitempty"`
	Items               []itemRequest    `json:"items" validate:"required,min=1,max=100,dive"`
	SpecialInstructions string           `json:"specialInstructions" validate:"max=500"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type itemUpdateData struct {
	Order models.Order      `json:"order"`
	Item  *models.OrderItem `json:"item,omitempty"`
}

type eventsData struct {
	Events []store.OrderEvent `json:"events"`
}

func NewHandler(st store.OrderStore, publisher events.Publisher, options Options) *Handler {
	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Handler{
		store:     st,
		publisher: publisher,
		validate:  newValidator(),
		log:       log,
		now:       now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Money is validated as a number.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /api/staff/orders/active", h.handleActiveOrders)
	mux.HandleFunc("POST /api/staff/orders", h.handleCreateOrder)
	mux.HandleFunc("GET /api/staff/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("GET /api/staff/orders/{id}/events", h.handleOrderEvents)
	mux.HandleFunc("PUT /api/staff/orders/{id}/status", h.handleOrderStatus)
	mux.HandleFunc("PUT /api/staff/orders/{id}/items/{itemId}/status", h.handleItemStatus)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListActiveOrders(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, models.Success("Active orders fetched", models.OrdersData{Orders: orders}))
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := store.CreateOrderInput{
		SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
		CreatedAt:           h.now().UTC(),
	}
	if req.Table != nil {
		input.TableID = strings.TrimSpace(req.Table.ID)
		input.TableNumber = req.Table.Number
	}
	if req.Customer != nil {
		input.CustomerID = strings.TrimSpace(req.Customer.ID)
		input.CustomerName = strings.TrimSpace(req.Customer.Name)
		input.CustomerEmail = strings.TrimSpace(req.Customer.Email)
		input.CustomerPhone = strings.TrimSpace(req.Customer.Phone)
	}
	for _, item := range req.Items {
		in := store.ItemInput{
			ProductID:           strings.TrimSpace(item.Product.ID),
			ProductName:         strings.TrimSpace(item.Product.Name),
			Quantity:            item.Quantity,
			Price:               item.Price,
			SpecialInstructions: strings.TrimSpace(item.SpecialInstructions),
		}
		for _, addon := range item.SelectedAddons {
			a := store.AddonInput{ID: addon.Addon.ID, Name: addon.Addon.Name, Price: addon.Addon.Price}
			if addon.SubAddon != nil {
				a.SubAddon = &store.AddonInput{ID: addon.SubAddon.ID, Name: addon.SubAddon.Name, Price: addon.SubAddon.Price}
			}
			in.Addons = append(in.Addons, a)
		}
		input.Items = append(input.Items, in)
	}

	order, event, err := h.store.CreateOrder(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r, event)
	writeEnvelope(w, http.StatusCreated, models.Success("Order placed", models.OrderData{Order: &order}))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.store.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, models.Success("Order fetched", models.OrderData{Order: &order}))
}

func (h *Handler) handleOrderEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListOrderEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []store.OrderEvent{}
	}
	writeEnvelope(w, http.StatusOK, models.Success("Order events fetched", eventsData{Events: list}))
}

func (h *Handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status := models.OrderStatus(strings.TrimSpace(req.Status))
	if !workflow.ValidOrderStatus(status) {
		writeEnvelope(w, http.StatusBadRequest, models.Failure("Invalid status"))
		return
	}

	order, event, err := h.store.UpdateOrderStatus(r.Context(), store.OrderStatusInput{
		OrderID:    r.PathValue("id"),
		Status:     status,
		OccurredAt: h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r, event)
	writeEnvelope(w, http.StatusOK, models.Success("Order status updated", models.OrderData{Order: &order}))
}

func (h *Handler) handleItemStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status := models.OrderItemStatus(strings.TrimSpace(req.Status))
	if !workflow.ValidItemStatus(status) {
		writeEnvelope(w, http.StatusBadRequest, models.Failure("Invalid status"))
		return
	}

	itemID := r.PathValue("itemId")
	order, event, err := h.store.UpdateItemStatus(r.Context(), store.ItemStatusInput{
		OrderID:    r.PathValue("id"),
		ItemID:     itemID,
		Status:     status,
		OccurredAt: h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r, event)

	data := itemUpdateData{Order: order}
	if item, ok := order.FindItem(itemID); ok {
		data.Item = &item
	}
	writeEnvelope(w, http.StatusOK, models.Success("Item status updated", data))
}

// publish runs after the change is committed, so a broker failure is only logged.
func (h *Handler) publish(r *http.Request, event store.OrderEvent) {
	if err := h.publisher.Publish(r.Context(), event); err != nil {
		h.log.WithFields(logrus.Fields{
			"order_id": event.OrderID,
			"type":     event.Type,
		}).WithError(err).Warn("publish order event failed")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeEnvelope(w, http.StatusBadRequest, models.Failure("Invalid JSON payload"))
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		writeEnvelope(w, http.StatusBadRequest, models.Failure(validationMessage(err)))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)
	entry := h.log.WithFields(logrus.Fields{"path": r.URL.Path, "status": status}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeEnvelope(w, status, models.Failure(message))
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, store.ErrItemNotFound):
		return http.StatusNotFound, "Item not found"
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest, "Invalid id"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, "Invalid status transition"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	return "Invalid field " + fe.Namespace() + ": failed " + fe.Tag()
}

func writeEnvelope[T any](w http.ResponseWriter, status int, env models.Envelope[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
