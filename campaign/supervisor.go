package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/dilshat/bulk-sender/event"
	"github.com/dilshat/bulk-sender/log"
	"github.com/dilshat/bulk-sender/model"
	"github.com/dilshat/bulk-sender/session"
	"go.uber.org/zap"
)

// Sessions is the part of the session registry the supervisor relies on.
type Sessions interface {
	IsUsable(id string) bool
	Activate(id string) error
	WaitConn(ctx context.Context, id string) (session.Conn, error)
	ConnectedCount() int
}

// Store persists campaign snapshots.
type Store interface {
	Save(record model.CampaignRecord) error
}

type Config struct {
	// Delay is the pause after every contact.
	Delay             time.Duration
	Address           AddressFunc
	Dedup             bool
	PauseOnDisconnect bool
}

type Stats struct {
	ConnectedSessions int `json:"connectedDevices"`
	TotalSent         int `json:"totalSent"`
	TotalFailed       int `json:"totalFailed"`
	ActiveCampaigns   int `json:"activeCampaigns"`
}

type binding struct {
	campaign *Campaign
	cancel   context.CancelFunc
	since    time.Time
}

// Supervisor owns all campaigns and binds at most one running engine to a session.
type Supervisor struct {
	sessions  Sessions
	publisher event.Publisher
	store     Store
	cfg       Config

	mu        sync.Mutex
	campaigns map[string]*Campaign
	order     []*Campaign
	bindings  map[string]*binding
	//campaigns whose engine goroutine has not returned yet
	bound map[*Campaign]bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSupervisor creates a supervisor. store may be nil.
func NewSupervisor(sessions Sessions, publisher event.Publisher, store Store, cfg Config) *Supervisor {
	if cfg.Address == nil {
		cfg.Address = AffixAddress("", "")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		sessions:  sessions,
		publisher: publisher,
		store:     store,
		cfg:       cfg,
		campaigns: make(map[string]*Campaign),
		bindings:  make(map[string]*binding),
		bound:     make(map[*Campaign]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start creates a running campaign and returns its id. The engine is bound right away
// when the session is usable, otherwise once activation of the session succeeds.
func (s *Supervisor) Start(sessionId, message string, attachments []model.Attachment, contacts []model.Contact) (string, error) {
	queue := NewQueue(contacts, s.cfg.Dedup)
	if queue.Len() == 0 {
		return "", ErrEmptyQueue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return "", ErrShuttingDown
	}
	if s.busy(sessionId) {
		return "", ErrSessionBusy
	}
	if err := s.ensureSession(sessionId); err != nil {
		return "", err
	}

	c := newCampaign(newId(), sessionId, message, attachments, queue)
	s.campaigns[c.id] = c
	s.order = append(s.order, c)
	s.bind(c)

	zap.L().Info("Campaign started",
		zap.String("campaign", c.id),
		zap.String("session", sessionId),
		zap.Int("contacts", queue.Len()),
		zap.Int("attachments", len(attachments)))

	return c.id, nil
}

// Stop pauses a running campaign. The engine notices it before its next contact.
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return ErrUnknownCampaign
	}
	if err := c.pause("stopped"); err != nil {
		return err
	}
	s.interrupt(c)
	return nil
}

// Resume rebinds a paused campaign, starting at its first pending contact.
func (s *Supervisor) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return ErrUnknownCampaign
	}
	switch c.Status() {
	case Completed:
		return ErrCampaignCompleted
	case Running:
		return nil
	}
	if s.ctx.Err() != nil {
		return ErrShuttingDown
	}
	if s.bound[c] || s.busy(c.sessionId) {
		return ErrSessionBusy
	}
	if err := s.ensureSession(c.sessionId); err != nil {
		return err
	}
	if err := c.resume(); err != nil {
		return err
	}
	s.bind(c)
	return nil
}

// Cancel completes a campaign for good, contacts without an outcome stay pending.
func (s *Supervisor) Cancel(id string) error {
	s.mu.Lock()
	c, ok := s.campaigns[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownCampaign
	}
	if err := c.cancel(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.bound[c] {
		//the engine settles it
		s.interrupt(c)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	NewEngine(c, nil, s.publisher, s.cfg.Address, 0).finish("cancelled")
	s.save(c)
	return nil
}

func (s *Supervisor) Get(id string) (Snapshot, error) {
	s.mu.Lock()
	c, ok := s.campaigns[id]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrUnknownCampaign
	}
	return c.Snapshot(), nil
}

// List returns snapshots in the order campaigns were started.
func (s *Supervisor) List() []Snapshot {
	s.mu.Lock()
	order := append([]*Campaign(nil), s.order...)
	s.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(order))
	for _, c := range order {
		snapshots = append(snapshots, c.Snapshot())
	}
	return snapshots
}

func (s *Supervisor) Stats() Stats {
	stats := Stats{ConnectedSessions: s.sessions.ConnectedCount()}
	for _, snap := range s.List() {
		stats.TotalSent += snap.Sent
		stats.TotalFailed += snap.Failed
		if snap.Status == Running {
			stats.ActiveCampaigns++
		}
	}
	return stats
}

// Run pauses campaigns whose session goes away mid-run, when configured to.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.cfg.PauseOnDisconnect || s.publisher == nil {
		<-ctx.Done()
		return nil
	}

	events := s.publisher.Subscribe(event.SessionDisconnected, event.SessionAuthFailed)
	defer s.publisher.Unsubscribe(events)

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			s.sessionLost(e)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Supervisor) sessionLost(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[e.SessionId]
	//events raised before the binding existed belong to an earlier connection
	if !ok || e.Time.Before(b.since) {
		return
	}
	reason := "session disconnected"
	if e.Reason != "" {
		reason += ": " + e.Reason
	}
	if err := b.campaign.pause(reason); err == nil {
		zap.L().Warn("Pausing campaign, session lost",
			zap.String("campaign", b.campaign.id),
			zap.String("session", e.SessionId),
			zap.String("reason", e.Reason))
		s.interrupt(b.campaign)
	}
}

// Shutdown pauses every running campaign and waits for the engines to return.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.order {
		_ = c.pause("shutdown")
	}
	//under the lock so no Start or Resume binds after it
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// busy reports whether a running campaign is bound to the session. Callers hold s.mu.
func (s *Supervisor) busy(sessionId string) bool {
	b, ok := s.bindings[sessionId]
	return ok && b.campaign.Status() == Running
}

// ensureSession triggers activation of an unusable session. Callers hold s.mu.
func (s *Supervisor) ensureSession(sessionId string) error {
	if s.sessions.IsUsable(sessionId) {
		return nil
	}
	err := s.sessions.Activate(sessionId)
	if errors.Is(err, session.ErrUnknownSession) {
		return ErrSessionUnknown
	}
	return err
}

// bind launches the engine goroutine of a running campaign. Callers hold s.mu.
func (s *Supervisor) bind(c *Campaign) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.bindings[c.sessionId] = &binding{campaign: c, cancel: cancel, since: time.Now()}
	s.bound[c] = true
	s.save(c)

	s.wg.Add(1)
	go s.drive(ctx, cancel, c)
}

// interrupt cuts the pacing or session wait of a bound campaign short. Callers hold s.mu.
func (s *Supervisor) interrupt(c *Campaign) {
	if b, ok := s.bindings[c.sessionId]; ok && b.campaign == c {
		b.cancel()
	}
}

func (s *Supervisor) drive(ctx context.Context, cancel context.CancelFunc, c *Campaign) {
	defer s.wg.Done()
	defer s.release(c)
	defer cancel()

	conn, err := s.sessions.WaitConn(ctx, c.sessionId)
	if err != nil {
		reason := ""
		if ctx.Err() == nil {
			zap.L().Warn("Campaign could not bind to session",
				zap.String("campaign", c.id),
				zap.String("session", c.sessionId),
				zap.Error(err))
			reason = fmt.Sprintf("session unavailable: %v", err)
			_ = c.pause(reason)
		}
		NewEngine(c, nil, s.publisher, s.cfg.Address, 0).finish(reason)
		return
	}

	NewEngine(c, conn, s.publisher, s.cfg.Address, s.cfg.Delay).Run(ctx)
}

func (s *Supervisor) release(c *Campaign) {
	s.mu.Lock()
	if b, ok := s.bindings[c.sessionId]; ok && b.campaign == c {
		delete(s.bindings, c.sessionId)
	}
	delete(s.bound, c)
	s.mu.Unlock()

	s.save(c)
}

func (s *Supervisor) save(c *Campaign) {
	if s.store != nil {
		log.ErrIfErr("Error saving campaign", s.store.Save(c.Snapshot().Record()))
	}
}

func newId() string {
	return fmt.Sprintf("campaign-%d-%s", time.Now().UnixMilli(), uniuri.NewLen(6))
}
