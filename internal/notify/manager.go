package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kds/internal/feed"
	"kds/internal/models"
	"kds/internal/watch"
)

const alertTimeout = 5 * time.Second

type Options struct {
	Alerter      Alerter
	SoundEnabled bool
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// Manager holds the active notifications, one per order id, in arrival order.
type Manager struct {
	alerter Alerter
	log     logrus.FieldLogger
	now     func() time.Time

	mu     sync.Mutex
	items  []models.Notification
	sound  bool
	list   watch.Value[[]models.Notification]
	alerts sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	alerter := opts.Alerter
	if alerter == nil {
		alerter = NoopAlerter{}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := &Manager{
		alerter: alerter,
		log:     log,
		now:     now,
		sound:   opts.SoundEnabled,
	}
	m.list.Set([]models.Notification{})
	return m
}

// NewArrivals returns the orders of next that are absent from previous and
// still in placed status. It only decides; it raises nothing.
func NewArrivals(previous, next []models.Order) []models.Order {
	known := make(map[string]struct{}, len(previous))
	for _, order := range previous {
		known[order.ID] = struct{}{}
	}
	var arrivals []models.Order
	for _, order := range next {
		if _, ok := known[order.ID]; ok {
			continue
		}
		if order.Status != models.StatusPlaced {
			continue
		}
		arrivals = append(arrivals, order)
	}
	return arrivals
}

// Evaluate raises a notification for every new placed order and returns the
// ones that were actually inserted.
func (m *Manager) Evaluate(previous, next []models.Order) []models.Order {
	var raised []models.Order
	for _, order := range NewArrivals(previous, next) {
		if m.Add(order) {
			raised = append(raised, order)
		}
	}
	return raised
}

// Add inserts a notification unless one already exists for the order id.
// The alert is best effort and runs in the background.
func (m *Manager) Add(order models.Order) bool {
	m.mu.Lock()
	for _, n := range m.items {
		if n.OrderID == order.ID {
			m.mu.Unlock()
			return false
		}
	}
	notification := models.Notification{OrderID: order.ID, Order: order, RaisedAt: m.now()}
	m.items = append(m.items, notification)
	m.publishLocked()
	sound := m.sound
	if sound {
		m.alerts.Add(1)
	}
	m.mu.Unlock()

	m.log.WithField("order_id", order.ID).Info("new order notification")
	if sound {
		go m.alert(notification)
	}
	return true
}

func (m *Manager) Remove(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.items {
		if n.OrderID == orderID {
			m.items = append(m.items[:i:i], m.items[i+1:]...)
			m.publishLocked()
			return true
		}
	}
	return false
}

func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return
	}
	m.items = nil
	m.publishLocked()
}

func (m *Manager) ToggleSound(enabled bool) {
	m.mu.Lock()
	m.sound = enabled
	m.mu.Unlock()
	m.log.WithField("enabled", enabled).Info("notification sound toggled")
}

func (m *Manager) SoundEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sound
}

func (m *Manager) List() []models.Notification {
	list, _ := m.list.Get()
	return list
}

// Subscribe replays the current list and then every change to it.
func (m *Manager) Subscribe() (<-chan []models.Notification, func()) {
	return m.list.Subscribe()
}

// Flush waits for alerts still being delivered.
func (m *Manager) Flush() {
	m.alerts.Wait()
}

// Watch diffs each snapshot against the previous snapshot (never against
// the notification list) until ctx ends or the channel closes.
func (m *Manager) Watch(ctx context.Context, snapshots <-chan feed.Snapshot) {
	var previous []models.Order
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			m.Evaluate(previous, snap.Orders)
			previous = snap.Orders
		}
	}
}

func (m *Manager) publishLocked() {
	list := make([]models.Notification, len(m.items))
	copy(list, m.items)
	m.list.Set(list)
}

func (m *Manager) alert(n models.Notification) {
	defer m.alerts.Done()
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("order_id", n.OrderID).WithError(fmt.Errorf("%v", r)).Warn("notification alert panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	if err := m.alerter.Alert(ctx, n); err != nil {
		m.log.WithField("order_id", n.OrderID).WithError(err).Warn("notification alert failed")
	}
}
