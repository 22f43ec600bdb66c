package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kds/internal/models"
)

// Alerter makes a raised notification audible or visible somewhere.
type Alerter interface {
	Alert(ctx context.Context, n models.Notification) error
}

// Tone describes the synthetic beep played for a new order.
type Tone struct {
	FrequencyHz int     `json:"frequencyHz"`
	DurationMs  int     `json:"durationMs"`
	Gain        float64 `json:"gain"`
	Waveform    string  `json:"waveform"`
}

var DefaultTone = Tone{FrequencyHz: 800, DurationMs: 300, Gain: 0.3, Waveform: "sine"}

const AlertEvent = "notification.alert"

// AlertPayload is what remote alerters carry.
type AlertPayload struct {
	OrderID     string    `json:"orderId"`
	TableNumber int       `json:"tableNumber,omitempty"`
	ItemCount   int       `json:"itemCount"`
	RaisedAt    time.Time `json:"raisedAt"`
	Tone        Tone      `json:"tone"`
}

func payloadFor(n models.Notification) AlertPayload {
	p := AlertPayload{
		OrderID:   n.OrderID,
		ItemCount: n.Order.ItemCount(),
		RaisedAt:  n.RaisedAt,
		Tone:      DefaultTone,
	}
	if n.Order.Table != nil {
		p.TableNumber = n.Order.Table.Number
	}
	return p
}

type AlerterConfig struct {
	WebhookURL   string
	WebhookToken string
	Publisher    Publisher
	Bell         io.Writer
	Logger       logrus.FieldLogger
	HTTPClient   *http.Client
}

// NewAlerter builds an alerter from a kind such as "hub" or "bell,log".
// Unknown kinds and kinds missing their dependency fall back to logging.
func NewAlerter(kind string, cfg AlerterConfig) Alerter {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	var alerters []Alerter
	for _, part := range strings.Split(kind, ",") {
		alerters = append(alerters, newSingle(strings.TrimSpace(strings.ToLower(part)), cfg, log))
	}
	if len(alerters) == 1 {
		return alerters[0]
	}
	return MultiAlerter(alerters)
}

func newSingle(kind string, cfg AlerterConfig, log logrus.FieldLogger) Alerter {
	switch kind {
	case "", "log":
		return LogAlerter{Logger: log}
	case "noop":
		return NoopAlerter{}
	case "bell":
		out := cfg.Bell
		if out == nil {
			out = os.Stdout
		}
		return &BellAlerter{Out: out}
	case "hub":
		if cfg.Publisher == nil {
			log.Warn("hub alerter requested without a publisher, logging instead")
			return LogAlerter{Logger: log}
		}
		return HubAlerter{Publisher: cfg.Publisher}
	case "webhook":
		if cfg.WebhookURL == "" {
			log.Warn("webhook alerter requested without KDS_ALERT_WEBHOOK_URL, logging instead")
			return LogAlerter{Logger: log}
		}
		return WebhookAlerter{URL: cfg.WebhookURL, Token: cfg.WebhookToken, Client: cfg.HTTPClient}
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return WebhookAlerter{URL: kind, Token: cfg.WebhookToken, Client: cfg.HTTPClient}
		}
		log.WithField("kind", kind).Warn("unknown alerter kind, logging instead")
		return LogAlerter{Logger: log}
	}
}

type LogAlerter struct {
	Logger logrus.FieldLogger
}

func (a LogAlerter) Alert(ctx context.Context, n models.Notification) error {
	a.Logger.WithFields(logrus.Fields{
		"order_id":   n.OrderID,
		"items":      n.Order.ItemCount(),
		"frequency":  DefaultTone.FrequencyHz,
		"duration":   DefaultTone.DurationMs,
		"alert_kind": "log",
	}).Info("new order alert")
	return nil
}

type NoopAlerter struct{}

func (NoopAlerter) Alert(ctx context.Context, n models.Notification) error {
	return nil
}

// BellAlerter rings the terminal bell of a kitchen console.
type BellAlerter struct {
	mu  sync.Mutex
	Out io.Writer
}

func (a *BellAlerter) Alert(ctx context.Context, n models.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := io.WriteString(a.Out, "\a")
	return err
}

// Publisher is the part of the realtime hub the hub alerter needs.
type Publisher interface {
	Publish(event string, payload any) error
}

// HubAlerter asks connected display screens to play the tone.
type HubAlerter struct {
	Publisher Publisher
}

func (a HubAlerter) Alert(ctx context.Context, n models.Notification) error {
	return a.Publisher.Publish(AlertEvent, payloadFor(n))
}

type WebhookAlerter struct {
	URL    string
	Token  string
	Client *http.Client
}

func (a WebhookAlerter) Alert(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(payloadFor(n))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook rejected request: http %d", resp.StatusCode)
	}
	return nil
}

// MultiAlerter calls every alerter and joins their errors.
type MultiAlerter []Alerter

func (m MultiAlerter) Alert(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, a := range m {
		if err := a.Alert(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
