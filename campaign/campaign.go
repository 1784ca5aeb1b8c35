package campaign

import (
	"errors"
	"sync"
	"time"

	"github.com/dilshat/bulk-sender/model"
)

var (
	ErrSessionBusy       = errors.New("session is busy with another campaign")
	ErrSessionUnknown    = errors.New("unknown session")
	ErrEmptyQueue        = errors.New("no valid contacts to send to")
	ErrUnknownCampaign   = errors.New("unknown campaign")
	ErrCampaignCompleted = errors.New("campaign is completed")
	ErrShuttingDown      = errors.New("campaigns are shutting down")
)

type Status int

const (
	Running Status = iota
	Paused
	Completed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Campaign is one bulk-send job. Counters are written only by the engine bound to it.
type Campaign struct {
	id          string
	name        string
	sessionId   string
	message     string
	attachments []model.Attachment
	queue       Queue
	createdAt   time.Time

	mu        sync.RWMutex
	status    Status
	sent      int
	failed    int
	cancelled bool
	reason    string
}

// Snapshot is a point-in-time copy of a campaign.
type Snapshot struct {
	Id          string             `json:"id"`
	Name        string             `json:"name"`
	SessionId   string             `json:"sessionId"`
	Message     string             `json:"message"`
	Attachments []model.Attachment `json:"attachments"`
	Status      Status             `json:"status"`
	Sent        int                `json:"sent"`
	Failed      int                `json:"failed"`
	Pending     int                `json:"pending"`
	Total       int                `json:"total"`
	Reason      string             `json:"reason,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func newCampaign(id, sessionId, message string, attachments []model.Attachment, queue Queue) *Campaign {
	createdAt := time.Now()
	return &Campaign{
		id:          id,
		name:        "Campaign " + createdAt.Format("2006-01-02 15:04:05"),
		sessionId:   sessionId,
		message:     message,
		attachments: append([]model.Attachment(nil), attachments...),
		queue:       queue,
		createdAt:   createdAt,
		status:      Running,
	}
}

func (c *Campaign) Id() string {
	return c.id
}

func (c *Campaign) SessionId() string {
	return c.sessionId
}

func (c *Campaign) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Campaign) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Id:          c.id,
		Name:        c.name,
		SessionId:   c.sessionId,
		Message:     c.message,
		Attachments: append([]model.Attachment(nil), c.attachments...),
		Status:      c.status,
		Sent:        c.sent,
		Failed:      c.failed,
		Pending:     c.queue.Len() - c.sent - c.failed,
		Total:       c.queue.Len(),
		Reason:      c.reason,
		CreatedAt:   c.createdAt,
	}
}

// Record converts the snapshot to its persisted form.
func (s Snapshot) Record() model.CampaignRecord {
	return model.CampaignRecord{
		Id:          s.Id,
		Name:        s.Name,
		SessionName: s.SessionId,
		Text:        s.Message,
		Attachments: s.Attachments,
		Status:      s.Status.String(),
		Sent:        s.Sent,
		Failed:      s.Failed,
		Total:       s.Total,
		CreatedAt:   s.CreatedAt,
	}
}

// cursor is the queue position of the first contact that has no outcome yet.
func (c *Campaign) cursor() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sent + c.failed
}

// proceed reports whether the engine may take the next contact.
func (c *Campaign) proceed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status == Running && !c.cancelled
}

func (c *Campaign) record(delivered bool) (sent, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if delivered {
		c.sent++
	} else {
		c.failed++
	}
	return c.sent, c.failed
}

func (c *Campaign) pause(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status {
	case Completed:
		return ErrCampaignCompleted
	case Running:
		c.status = Paused
		c.reason = reason
	}
	return nil
}

func (c *Campaign) resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == Completed {
		return ErrCampaignCompleted
	}
	c.status = Running
	c.reason = ""
	return nil
}

func (c *Campaign) cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == Completed {
		return ErrCampaignCompleted
	}
	c.cancelled = true
	return nil
}

// settle ends a run of the engine: the campaign completes when nothing is left to send
// or a cancel was requested, otherwise it stays paused.
func (c *Campaign) settle() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent+c.failed >= c.queue.Len() || c.cancelled {
		c.status = Completed
	} else if c.status == Running {
		c.status = Paused
	}
	return c.status
}
