// Package watch holds a single value and republishes it to subscribers.
package watch

import "sync"

// Value is a last-value cache with fan-out. Subscribers get the current value
// on subscription (when one was set) and then every later value. Each
// subscriber channel buffers one element and keeps only the newest value, so
// a slow reader never blocks Set and never sees a backlog.
type Value[T any] struct {
	mu     sync.Mutex
	value  T
	set    bool
	nextID int
	subs   map[int]chan T
}

func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	v.set = true
	for _, ch := range v.subs {
		offer(ch, value)
	}
}

func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.set
}

// Subscribe returns the update channel and a cancel func that closes it.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	v.mu.Lock()
	if v.subs == nil {
		v.subs = make(map[int]chan T)
	}
	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	if v.set {
		ch <- v.value
	}
	v.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func offer[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	// Full: replace the stale pending value.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
	}
}
