// Package live fans out "something changed, re-fetch" signals to connected
// terminals. Publishers never block: each subscription coalesces bursts into a
// single debounced delivery.
package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindTab   Kind = "tab"
	KindOrder Kind = "order"
	KindUser  Kind = "user"
)

type Topic struct {
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`
}

func TabTopic(slug string) Topic {
	return Topic{Kind: KindTab, Key: slug}
}

func OrderTopic(id uuid.UUID) Topic {
	return Topic{Kind: KindOrder, Key: id.String()}
}

func UserTopic(key string) Topic {
	return Topic{Kind: KindUser, Key: key}
}

const (
	EventTabUpdated     = "tab.updated"
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventPaymentUpdated = "payment.updated"
	EventCartUpdated    = "cart.updated"
)

type Event struct {
	Topic Topic     `json:"topic"`
	Type  string    `json:"type"`
	At    time.Time `json:"at"`
}

// Publisher is the side of the broker services depend on.
type Publisher interface {
	Publish(topic Topic, eventType string)
}

type Broker struct {
	mu       sync.RWMutex
	subs     map[Topic]map[*Subscription]struct{}
	debounce time.Duration
	log      logrus.FieldLogger
}

func NewBroker(debounce time.Duration, log logrus.FieldLogger) *Broker {
	return &Broker{
		subs:     make(map[Topic]map[*Subscription]struct{}),
		debounce: debounce,
		log:      log,
	}
}

// Publish notifies every subscription of topic.
func (b *Broker) Publish(topic Topic, eventType string) {
	ev := Event{Topic: topic, Type: eventType, At: time.Now()}

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[topic]))
	for sub := range b.subs[topic] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.notify(ev)
	}
}

// Subscribe registers a subscription on the given topics. Callers must Close it.
func (b *Broker) Subscribe(topics ...Topic) *Subscription {
	sub := &Subscription{
		broker: b,
		topics: topics,
		ch:     make(chan Event, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	for _, t := range topics {
		if b.subs[t] == nil {
			b.subs[t] = make(map[*Subscription]struct{})
		}
		b.subs[t][sub] = struct{}{}
	}
	b.mu.Unlock()

	b.log.WithField("topics", topics).Debug("Live subscription opened")
	return sub
}

// Subscribers returns how many subscriptions watch topic.
func (b *Broker) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	for _, t := range sub.topics {
		delete(b.subs[t], sub)
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
	}
	b.mu.Unlock()
	b.log.WithField("topics", sub.topics).Debug("Live subscription closed")
}

// Subscription delivers at most one event per debounce window; the latest
// event of a burst wins.
type Subscription struct {
	broker *Broker
	topics []Topic
	ch     chan Event
	done   chan struct{}

	mu      sync.Mutex
	pending *Event
	timer   *time.Timer
	closed  bool
	once    sync.Once
}

// C is closed when the subscription is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) notify(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &ev
	if s.timer == nil {
		s.timer = time.AfterFunc(s.broker.debounce, s.flush)
	}
}

func (s *Subscription) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	if s.closed || s.pending == nil {
		return
	}
	ev := *s.pending
	s.pending = nil
	select {
	case s.ch <- ev:
	default:
		// a signal is already waiting; the reader re-fetches anyway
	}
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.unsubscribe(s)
		s.mu.Lock()
		s.closed = true
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		close(s.ch)
		close(s.done)
		s.mu.Unlock()
	})
}
