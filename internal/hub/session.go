package hub

import (
	"net/http"

	"github.com/igm/sockjs-go/sockjs"
)

// Session is the part of a SockJS session the hub drives.
type Session interface {
	Recv() (string, error)
	Send(string) error
}

// Greeter sends a newly connected client the current state.
type Greeter func(client *Client)

// Handler serves the realtime stream under prefix, e.g. "/realtime".
func (h *Hub) Handler(prefix string, greet Greeter) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		h.Serve(session, greet)
	})
}

// Serve pumps one session until it ends.
func (h *Hub) Serve(session Session, greet Greeter) {
	client := NewClient()
	h.Register(client)
	defer h.Unregister(client)

	go func() {
		for msg := range client.Send {
			if err := session.Send(string(msg)); err != nil {
				h.log.WithField("client_id", client.ID).WithError(err).Debug("realtime send failed")
			}
		}
	}()

	h.log.WithField("client_id", client.ID).Info("realtime client connected")
	if greet != nil {
		greet(client)
	}

	for {
		msg, err := session.Recv()
		if err != nil {
			h.log.WithField("client_id", client.ID).Info("realtime client disconnected")
			return
		}
		parsed, ok := ParseSubscribe([]byte(msg))
		if !ok {
			continue
		}
		h.UpdateSubscription(client, SubscriptionFor(parsed))
	}
}
