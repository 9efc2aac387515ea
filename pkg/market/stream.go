package market

import "sync"

// Stream is a multi-subscriber observable. Each subscriber receives values
// sequentially on its own channel; slow subscribers are conflated (intermediate
// values may be dropped, the latest value is always delivered). The latest
// published value is cached and replayed to new subscribers, so simultaneous
// consumers share one upstream read instead of re-issuing their own.
type Stream[T any] struct {
	mu     sync.Mutex
	subs   map[int]*Subscription[T]
	nextID int
	latest T
	seeded bool
}

// NewStream creates an empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[int]*Subscription[T])}
}

// Publish delivers v to every active subscriber and caches it for future ones.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	s.latest = v
	s.seeded = true
	subs := make([]*Subscription[T], 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.push(v)
	}
}

// Latest returns the most recently published value, if any.
func (s *Stream[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seeded
}

// Subscribe registers a new subscriber. If a value has been published before,
// it is delivered immediately. Buffer sizes below 1 are raised to 1 so
// conflation can always make room for the latest value.
func (s *Stream[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	sub := &Subscription[T]{
		stream: s,
		id:     id,
		ch:     make(chan T, buffer),
	}
	s.subs[id] = sub
	seeded, latest := s.seeded, s.latest
	s.mu.Unlock()

	if seeded {
		sub.push(latest)
	}
	return sub
}

// SubscriberCount returns the number of active subscribers.
func (s *Stream[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream[T]) remove(id int) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// Subscription is one subscriber's handle on a stream. Cancel must be called
// when the subscriber is done, otherwise the slot leaks.
type Subscription[T any] struct {
	stream *Stream[T]
	id     int

	mu     sync.Mutex
	closed bool
	ch     chan T
}

// Updates returns the delivery channel. It is closed by Cancel.
func (s *Subscription[T]) Updates() <-chan T {
	return s.ch
}

// Next blocks until a value arrives or the subscription is canceled.
func (s *Subscription[T]) Next() (T, bool) {
	v, ok := <-s.ch
	return v, ok
}

// Cancel detaches the subscriber and closes its channel. Safe to call twice.
func (s *Subscription[T]) Cancel() {
	s.stream.remove(s.id)
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- v:
			return
		default:
			// Buffer full: drop the oldest value and retry with the newest.
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
