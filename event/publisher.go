package event

import (
	"sync"
	"time"

	"github.com/cskr/pubsub"
)

type Publisher interface {
	// Publish hands the event to every subscriber present right now.
	Publish(e Event)
	// Subscribe returns a channel receiving events of the given kinds, all kinds when none are given.
	Subscribe(kinds ...Kind) <-chan Event
	// Unsubscribe stops delivery and closes the channel returned by Subscribe.
	Unsubscribe(ch <-chan Event)
	Shutdown()
}

type publisher struct {
	//guards pubsub calls against Shutdown, pubsub blocks forever once it is shut down
	mu    sync.RWMutex
	ps    *pubsub.PubSub
	subs  chan subscription
	unsub chan (<-chan Event)
	done  chan struct{}
	once  sync.Once
}

type subscription struct {
	in   chan interface{}
	out  chan Event
	quit chan struct{}
	done <-chan struct{}
}

// NewPublisher creates a publisher whose subscribers are buffered up to {capacity} events.
func NewPublisher(capacity int) Publisher {
	p := &publisher{
		ps:    pubsub.New(capacity),
		subs:  make(chan subscription),
		unsub: make(chan (<-chan Event)),
		done:  make(chan struct{}),
	}
	go p.track()
	return p
}

func (p *publisher) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	p.whileOpen(func() {
		p.ps.Pub(e, string(e.Kind))
	})
}

func (p *publisher) Subscribe(kinds ...Kind) <-chan Event {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	topics := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		topics = append(topics, string(kind))
	}

	var in chan interface{}
	if !p.whileOpen(func() {
		in = p.ps.Sub(topics...)
	}) {
		out := make(chan Event)
		close(out)
		return out
	}

	s := subscription{in: in, out: make(chan Event), quit: make(chan struct{}), done: p.done}
	go s.forward()

	select {
	case p.subs <- s:
	case <-p.done:
	}
	return s.out
}

func (p *publisher) Unsubscribe(ch <-chan Event) {
	select {
	case p.unsub <- ch:
	case <-p.done:
	}
}

func (p *publisher) Shutdown() {
	p.once.Do(func() {
		//done first, it releases forwarders a pending Publish may be waiting on
		close(p.done)
		p.mu.Lock()
		defer p.mu.Unlock()
		p.ps.Shutdown()
	})
}

// whileOpen runs f unless the publisher is shut down and reports whether it ran.
func (p *publisher) whileOpen(f func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	select {
	case <-p.done:
		return false
	default:
	}
	f()
	return true
}

// track maps the typed channels handed out to callers back to pubsub channels.
func (p *publisher) track() {
	active := make(map[<-chan Event]subscription)
	for {
		select {
		case s := <-p.subs:
			active[s.out] = s
		case out := <-p.unsub:
			s, ok := active[out]
			if !ok {
				continue
			}
			delete(active, out)
			close(s.quit)
			//pubsub may be blocked delivering to {in}, forward keeps draining it until Unsub closes it
			go p.whileOpen(func() {
				p.ps.Unsub(s.in)
			})
		case <-p.done:
			return
		}
	}
}

func (s subscription) forward() {
	defer close(s.out)
	for msg := range s.in {
		e, ok := msg.(Event)
		if !ok {
			continue
		}
		select {
		case s.out <- e:
		case <-s.quit:
		case <-s.done:
		}
	}
}
