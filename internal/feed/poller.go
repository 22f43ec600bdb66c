package feed

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kds/internal/models"
	"kds/internal/watch"
)

const DefaultInterval = 30 * time.Second

type Fetcher interface {
	FetchActiveOrders(ctx context.Context) ([]models.Order, error)
}

// Snapshot is the active order list as of the last successful fetch.
// Orders is shared between subscribers and must be treated as read-only.
type Snapshot struct {
	Orders    []models.Order `json:"orders"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

type Options struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// Poller keeps one snapshot of active orders fresh on a fixed interval.
// Fetches are not serialized: when a manual refresh races a tick, the
// response that arrives last wins.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	snapshot watch.Value[Snapshot]

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(fetcher Fetcher, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		timeout:  opts.FetchTimeout,
		log:      log,
		now:      now,
	}
}

// Start fetches immediately and then on every interval tick. A running
// timer is cancelled first, so timers never overlap.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.log.WithField("interval", p.interval.String()).Info("order feed started")
	go p.loop(ctx)
}

// Stop only ends scheduling. A fetch already in flight still publishes.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.log.Info("order feed stopped")
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// RefreshNow runs one out-of-band fetch without touching the timer. The
// error is returned for the caller's benefit; subscribers never see it.
func (p *Poller) RefreshNow(ctx context.Context) (Snapshot, error) {
	if err := p.fetch(ctx); err != nil {
		return Snapshot{}, err
	}
	snap, _ := p.snapshot.Get()
	return snap, nil
}

func (p *Poller) Current() (Snapshot, bool) {
	return p.snapshot.Get()
}

func (p *Poller) Subscribe() (<-chan Snapshot, func()) {
	return p.snapshot.Subscribe()
}

func (p *Poller) loop(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_ = p.fetch(context.Background())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// Not derived from ctx: Stop must not abort a fetch in flight.
			_ = p.fetch(context.Background())
		}
	}
}

func (p *Poller) fetch(ctx context.Context) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	orders, err := p.fetcher.FetchActiveOrders(ctx)
	if err != nil {
		p.log.WithError(err).Warn("fetch active orders failed")
		return err
	}

	p.snapshot.Set(Snapshot{Orders: orders, FetchedAt: p.now()})
	p.log.WithField("orders", len(orders)).Debug("active orders refreshed")
	return nil
}
