package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"kds/internal/store"
)

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), store.OrderEvent{}))
	assert.NoError(t, p.Close())
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial("not-a-url", "kds_events", "orders-service")
	assert.Error(t, err)
}

type fakeConfirmation struct {
	ack  chan bool
	done bool
}

func (f *fakeConfirmation) WaitContext(ctx context.Context) (bool, error) {
	select {
	case ack := <-f.ack:
		f.done = true
		return ack, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func TestAwaitConfirmKeepsAcksPerDelivery(t *testing.T) {
	first := &fakeConfirmation{ack: make(chan bool, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := awaitConfirm(ctx, 1, first)
	assert.ErrorIs(t, err, context.Canceled)

	// The broker answers the abandoned delivery late; the next one must
	// still wait for its own answer.
	first.ack <- true
	second := &fakeConfirmation{ack: make(chan bool, 1)}
	second.ack <- false
	err = awaitConfirm(context.Background(), 2, second)
	assert.ErrorIs(t, err, ErrNack)
	assert.True(t, second.done)
	assert.False(t, first.done)

	third := &fakeConfirmation{ack: make(chan bool, 1)}
	third.ack <- true
	assert.NoError(t, awaitConfirm(context.Background(), 3, third))
}
