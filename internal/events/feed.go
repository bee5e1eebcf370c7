// Package events provides typed one-to-many broadcast feeds.
//
// A Feed never blocks its producer: each subscriber owns a buffered channel
// and an event that does not fit is dropped and logged.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Feed broadcasts values of T to every live subscriber.
type Feed[T any] struct {
	name   string
	log    zerolog.Logger
	buffer int

	mu     sync.Mutex
	nextID int
	subs   map[int]chan T
	onSub  func(send func(T))
}

// NewFeed returns a feed named name for log lines.
func NewFeed[T any](name string, log zerolog.Logger) *Feed[T] {
	return &Feed[T]{
		name:   name,
		log:    log,
		buffer: DefaultBuffer,
		subs:   make(map[int]chan T),
	}
}

// OnSubscribe installs a hook run for each new subscriber. send delivers
// only to that subscriber.
func (f *Feed[T]) OnSubscribe(hook func(send func(T))) {
	f.mu.Lock()
	f.onSub = hook
	f.mu.Unlock()
}

// Subscribe registers a new consumer. cancel closes the channel and is safe
// to call more than once.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	ch := make(chan T, f.buffer)
	f.subs[id] = ch
	hook := f.onSub
	f.mu.Unlock()

	if hook != nil {
		hook(func(v T) { f.deliver(id, ch, v) })
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(ch)
			}
			f.mu.Unlock()
		})
	}
}

// HasSubscribers reports whether anyone is listening.
func (f *Feed[T]) HasSubscribers() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs) > 0
}

// Send delivers v to every subscriber and returns how many received it.
func (f *Feed[T]) Send(v T) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, ch := range f.subs {
		select {
		case ch <- v:
			n++
		default:
			f.log.Warn().Str("feed", f.name).Int("subscriber", id).Msg("subscriber full, event dropped")
		}
	}
	return n
}

func (f *Feed[T]) deliver(id int, ch chan T, v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return
	}
	select {
	case ch <- v:
	default:
		f.log.Warn().Str("feed", f.name).Int("subscriber", id).Msg("subscriber full, replay dropped")
	}
}

// Close drops every subscriber.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
