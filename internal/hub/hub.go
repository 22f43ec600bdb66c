package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	TopicOrders        = "orders.snapshot"
	TopicNotifications = "notifications.updated"
	TopicAlerts        = "notification.alert"

	sendBuffer = 16
)

// Subscription is a set of topics; an empty set receives every topic.
type Subscription struct {
	Topics map[string]struct{}
}

func (s Subscription) Wants(topic string) bool {
	if len(s.Topics) == 0 {
		return true
	}
	_, ok := s.Topics[topic]
	return ok
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

func NewClient() *Client {
	return &Client{ID: uuid.NewString(), Send: make(chan []byte, sendBuffer)}
}

type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     logrus.FieldLogger
	now     func() time.Time
}

type SubscribeMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

func New(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{clients: make(map[string]*Client), log: log, now: time.Now}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish wraps payload in an Event and broadcasts it on the topic.
func (h *Hub) Publish(topic string, payload any) error {
	msg, err := h.encode(topic, payload)
	if err != nil {
		return err
	}
	h.Broadcast(topic, msg)
	return nil
}

// SendTo delivers one event to a single client regardless of its topics.
func (h *Hub) SendTo(client *Client, topic string, payload any) error {
	msg, err := h.encode(topic, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return nil
	}
	h.offer(client, msg)
	return nil
}

func (h *Hub) Broadcast(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.Subscription.Wants(topic) {
			continue
		}
		h.offer(client, payload)
	}
}

func (h *Hub) offer(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		h.log.WithField("client_id", client.ID).Warn("drop message for slow client")
	}
}

func (h *Hub) encode(topic string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: topic, Payload: raw, CreatedAt: h.now().UTC()})
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}

// SubscriptionFor turns a subscribe message into a subscription. Unknown
// topics are dropped; unsubscribe resets to every topic.
func SubscriptionFor(msg SubscribeMessage) Subscription {
	if msg.Action == "unsubscribe" {
		return Subscription{}
	}
	topics := make(map[string]struct{}, len(msg.Topics))
	for _, topic := range msg.Topics {
		switch topic {
		case TopicOrders, TopicNotifications, TopicAlerts:
			topics[topic] = struct{}{}
		}
	}
	return Subscription{Topics: topics}
}
