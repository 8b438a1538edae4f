package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// subscription is one handler with its own unbounded FIFO mailbox.
type subscription struct {
	id        string
	topic     string
	isPattern bool
	handler   Handler
	logger    zerolog.Logger

	mu      sync.Mutex
	queue   []Event
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newSubscription(id, topic string, handler Handler, logger zerolog.Logger) *subscription {
	return &subscription{
		id:        id,
		topic:     topic,
		isPattern: isWildcard(topic),
		handler:   handler,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (s *subscription) push(ev Event) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.queue = nil
	s.mu.Unlock()
	close(s.done)
}

// next pops the oldest queued event.
func (s *subscription) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue[0] = Event{}
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			s.deliver(ev)
		}
	}
}

// deliver calls the handler, recovering from panics so one bad handler
// does not kill its mailbox.
func (s *subscription) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("topic", ev.Topic).Str("subscription", s.id).Msg("handler panicked")
		}
	}()
	s.handler(ev)
}
