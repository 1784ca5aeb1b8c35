package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dilshat/bulk-sender/event"
	"github.com/dilshat/bulk-sender/log"
	"go.uber.org/zap"
)

const inboxSize = 64

type entry struct {
	session    Session
	conn       Conn
	generation uint64
	//closed and replaced on every change, wakes WaitUsable
	changed chan struct{}
}

func (e *entry) touch() {
	e.session.UpdatedAt = time.Now()
	close(e.changed)
	e.changed = make(chan struct{})
}

// Registry keeps the state of every known session. Transitions are driven by
// inbound callbacks (see Apply) and by the explicit Mark/Remove operations.
type Registry struct {
	mu             sync.RWMutex
	entries        map[string]*entry
	lastGeneration uint64

	connector Connector
	devices   DeviceStore
	publisher event.Publisher
	inbox     chan Callback

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates a registry. devices may be nil, then only registered sessions are known.
func NewRegistry(connector Connector, devices DeviceStore, publisher event.Publisher) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		entries:   make(map[string]*entry),
		connector: connector,
		devices:   devices,
		publisher: publisher,
		inbox:     make(chan Callback, inboxSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run applies inbound callbacks until ctx is done, then tears every connection down.
func (r *Registry) Run(ctx context.Context) error {
	defer r.Close()
	for {
		select {
		case cb := <-r.inbox:
			r.Apply(cb)
		case <-ctx.Done():
			return nil
		case <-r.ctx.Done():
			return nil
		}
	}
}

// Close drops every live connection. Entries stay for inspection.
func (r *Registry) Close() {
	r.cancel()

	r.mu.Lock()
	var conns []Conn
	for _, e := range r.entries {
		if e.conn != nil {
			conns = append(conns, e.conn)
			e.conn = nil
		}
	}
	r.mu.Unlock()

	for _, conn := range conns {
		log.WarnIfErr("Error closing session connection", conn.Close())
	}
}

func (r *Registry) Register(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		if e.session.State != Disconnected {
			return e.session, ErrDuplicateSession
		}
		e.touch()
	}

	r.lastGeneration++
	e := &entry{
		session:    Session{Id: id, State: Initializing, UpdatedAt: time.Now()},
		generation: r.lastGeneration,
		changed:    make(chan struct{}),
	}
	r.entries[id] = e

	return e.session, nil
}

// Activate makes sure the session is connected or connecting. An id that is neither
// registered nor stored as a device is rejected with ErrUnknownSession.
func (r *Registry) Activate(id string) error {
	if !r.known(id) {
		return ErrUnknownSession
	}

	_, err := r.Register(id)
	if errors.Is(err, ErrDuplicateSession) {
		return nil
	}
	if err != nil {
		return err
	}

	r.mu.RLock()
	generation := r.entries[id].generation
	r.mu.RUnlock()

	go r.connect(id, generation)

	return nil
}

func (r *Registry) known(id string) bool {
	r.mu.RLock()
	_, ok := r.entries[id]
	r.mu.RUnlock()
	if ok || r.devices == nil {
		return ok
	}

	exists, err := r.devices.Exists(id)
	log.ErrIfErr("Error looking up device", err)
	return exists
}

func (r *Registry) connect(id string, generation uint64) {
	zap.L().Info("Activating session", zap.String("session", id))

	inbox := Inbox{sessionId: id, generation: generation, ch: r.inbox, done: r.ctx.Done()}
	conn, err := r.connector.Connect(r.ctx, inbox)
	if err != nil {
		zap.L().Error("Session connection failed", zap.String("session", id), zap.Error(err))
		r.disconnect(id, generation, err.Error(), event.SessionDisconnected)
		return
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	if ok && e.generation == generation && e.session.State != Disconnected {
		e.conn = conn
		e.touch()
		conn = nil
	}
	r.mu.Unlock()

	//the entry was removed or replaced while connecting
	if conn != nil {
		log.WarnIfErr("Error closing stale connection", conn.Close())
	}
}

// Apply is the state-transition function for inbound callbacks. Callbacks of a
// superseded connection attempt are ignored.
func (r *Registry) Apply(cb Callback) {
	r.mu.RLock()
	e, ok := r.entries[cb.SessionId]
	stale := ok && cb.generation != 0 && cb.generation != e.generation
	r.mu.RUnlock()

	if !ok || stale {
		zap.L().Debug("Dropping session callback", zap.String("session", cb.SessionId), zap.Int("kind", int(cb.Kind)))
		return
	}

	switch cb.Kind {
	case OnQrChallenge:
		if r.awaitAuth(cb.SessionId, cb.Data) {
			r.publish(event.Event{Kind: event.SessionQr, SessionId: cb.SessionId, Qr: cb.Data})
		}
	case OnAuthenticated:
		r.awaitAuth(cb.SessionId, "")
		zap.L().Info("Session authenticated", zap.String("session", cb.SessionId))
	case OnAuthFailed:
		r.disconnect(cb.SessionId, cb.generation, cb.Data, event.SessionAuthFailed)
	case OnReady:
		log.WarnIfErr("Error marking session connected", r.MarkConnected(cb.SessionId, cb.Data))
	case OnDisconnected:
		r.disconnect(cb.SessionId, cb.generation, cb.Data, event.SessionDisconnected)
	}
}

func (r *Registry) awaitAuth(id, qr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || (e.session.State != Initializing && e.session.State != AwaitingAuth) {
		return false
	}
	e.session.State = AwaitingAuth
	e.session.Qr = qr
	e.touch()
	return true
}

func (r *Registry) MarkConnected(id, accountHandle string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownSession
	}
	switch e.session.State {
	case Disconnected:
		r.mu.Unlock()
		return ErrInvalidTransition
	case Connected:
		e.session.AccountHandle = accountHandle
		r.mu.Unlock()
		return nil
	}
	e.session.State = Connected
	e.session.AccountHandle = accountHandle
	e.session.Qr = ""
	e.session.Reason = ""
	e.touch()
	r.mu.Unlock()

	zap.L().Info("Session connected", zap.String("session", id), zap.String("account", accountHandle))
	if r.devices != nil {
		log.ErrIfErr("Error storing device status", r.devices.MarkConnected(id, accountHandle, time.Now()))
	}
	r.publish(event.Event{Kind: event.SessionConnected, SessionId: id, AccountHandle: accountHandle})

	return nil
}

func (r *Registry) MarkDisconnected(id, reason string) {
	r.disconnect(id, 0, reason, event.SessionDisconnected)
}

func (r *Registry) disconnect(id string, generation uint64, reason string, kind event.Kind) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.session.State == Disconnected || (generation != 0 && generation != e.generation) {
		r.mu.Unlock()
		return
	}
	e.session.State = Disconnected
	e.session.Reason = reason
	e.session.Qr = ""
	conn := e.conn
	e.conn = nil
	e.touch()
	r.mu.Unlock()

	zap.L().Warn("Session disconnected", zap.String("session", id), zap.String("reason", reason))
	if conn != nil {
		log.WarnIfErr("Error closing session connection", conn.Close())
	}
	if r.devices != nil {
		log.ErrIfErr("Error storing device status", r.devices.MarkDisconnected(id, time.Now()))
	}
	r.publish(event.Event{Kind: kind, SessionId: id, Reason: reason})
}

func (r *Registry) IsUsable(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	return ok && e.session.State == Connected
}

// Remove tears the session down and forgets it. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	wasLive := e.session.State != Disconnected
	conn := e.conn
	e.conn = nil
	e.touch()
	r.mu.Unlock()

	if conn != nil {
		log.WarnIfErr("Error closing session connection", conn.Close())
	}
	if wasLive {
		r.publish(event.Event{Kind: event.SessionDisconnected, SessionId: id, Reason: "removed"})
	}
}

// WaitUsable blocks until the session is connected. It fails as soon as the session
// disconnects or is removed.
func (r *Registry) WaitUsable(ctx context.Context, id string) error {
	_, err := r.wait(ctx, id, false)
	return err
}

// WaitConn is WaitUsable that also waits for the connection object to be attached.
func (r *Registry) WaitConn(ctx context.Context, id string) (Conn, error) {
	return r.wait(ctx, id, true)
}

func (r *Registry) wait(ctx context.Context, id string, needConn bool) (Conn, error) {
	for {
		r.mu.RLock()
		e, ok := r.entries[id]
		if !ok {
			r.mu.RUnlock()
			return nil, ErrUnknownSession
		}
		state, reason, conn, changed := e.session.State, e.session.Reason, e.conn, e.changed
		r.mu.RUnlock()

		switch {
		case state == Connected && (conn != nil || !needConn):
			return conn, nil
		case state == Disconnected && reason == "":
			return nil, ErrNotUsable
		case state == Disconnected:
			return nil, fmt.Errorf("%w: %s", ErrNotUsable, reason)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Conn returns the live connection of a connected session.
func (r *Registry) Conn(id string) (Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	if e.session.State != Connected || e.conn == nil {
		return nil, ErrNotUsable
	}
	return e.conn, nil
}

func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// Sessions returns snapshots ordered by id.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	sessions := make([]Session, 0, len(r.entries))
	for _, e := range r.entries {
		sessions = append(sessions, e.session)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Id < sessions[j].Id
	})
	return sessions
}

func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, e := range r.entries {
		if e.session.State == Connected {
			count++
		}
	}
	return count
}

func (r *Registry) publish(e event.Event) {
	if r.publisher != nil {
		r.publisher.Publish(e)
	}
}
