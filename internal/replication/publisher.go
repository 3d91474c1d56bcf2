package replication

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxPending bounds how many undelivered events one subscription may
// hold. Past that the queue collapses into a single Resync.
const DefaultMaxPending = 1024

// Publisher is the live-tail fan-out for one entity type. Events are keyed by
// owner and multicast to every subscription of that owner. Nothing is
// buffered for owners with no subscription.
type Publisher struct {
	entity     EntityType
	maxPending int
	logger     *slog.Logger

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

type PublisherOption func(*Publisher)

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

func WithMaxPending(n int) PublisherOption {
	return func(p *Publisher) { p.maxPending = n }
}

func NewPublisher(entity EntityType, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		entity:     entity,
		maxPending: DefaultMaxPending,
		logger:     slog.Default(),
		subs:       make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Entity() EntityType {
	return p.entity
}

// Publish hands event to every current subscription of ownerKey. It never
// blocks on slow subscribers.
func (p *Publisher) Publish(ownerKey string, event StreamEvent) {
	p.mu.Lock()
	set := p.subs[ownerKey]
	snapshot := make([]*Subscription, 0, len(set))
	for s := range set {
		snapshot = append(snapshot, s)
	}
	p.mu.Unlock()

	for _, s := range snapshot {
		s.enqueue(event)
	}
}

// Subscribe starts receiving events published for ownerKey from now on. The
// subscription ends when ctx is done or Close is called.
func (p *Publisher) Subscribe(ctx context.Context, ownerKey string) *Subscription {
	s := &Subscription{
		ID:     uuid.New(),
		owner:  ownerKey,
		pub:    p,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	set, ok := p.subs[ownerKey]
	if !ok {
		set = make(map[*Subscription]struct{})
		p.subs[ownerKey] = set
	}
	set[s] = struct{}{}
	p.mu.Unlock()

	p.logger.Debug("subscription opened",
		"entity", p.entity,
		"owner", ownerKey,
		"subscription", s.ID,
	)

	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	return s
}

// SubscriberCount returns the number of live subscriptions for ownerKey.
func (p *Publisher) SubscriberCount(ownerKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[ownerKey])
}

// Owners returns the number of owners with at least one subscription.
func (p *Publisher) Owners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Publisher) remove(s *Subscription) {
	p.mu.Lock()
	if set, ok := p.subs[s.owner]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(p.subs, s.owner)
		}
	}
	p.mu.Unlock()

	p.logger.Debug("subscription closed",
		"entity", p.entity,
		"owner", s.owner,
		"subscription", s.ID,
	)
}

// Subscription is one listener's view of a Publisher. It implements
// Stream[StreamEvent].
type Subscription struct {
	ID uuid.UUID

	owner  string
	pub    *Publisher
	notify chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	queue   []StreamEvent
	closed  bool
	stop    func() bool
	dropped bool
}

func (s *Subscription) enqueue(event StreamEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	overflow := s.pub.maxPending > 0 && len(s.queue) >= s.pub.maxPending
	if overflow {
		// The client cannot catch up incrementally any more.
		s.queue = []StreamEvent{Resync{}}
		s.dropped = true
	} else {
		s.queue = append(s.queue, event)
	}
	s.mu.Unlock()

	if overflow {
		s.pub.logger.Warn("subscription overflowed, forcing resync",
			"entity", s.pub.entity,
			"owner", s.owner,
			"subscription", s.ID,
		)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until the next event is available. It returns io.EOF once the
// subscription is closed and ctx.Err() if ctx ends first.
func (s *Subscription) Next(ctx context.Context) (StreamEvent, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, io.EOF
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Overflowed reports whether pending events were ever collapsed into a
// Resync.
func (s *Subscription) Overflowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close ends the subscription and releases its registration. Calling it more
// than once is a no-op.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	close(s.done)
	s.pub.remove(s)
}
