package session

import (
	"context"
	"errors"
	"time"

	"github.com/dilshat/bulk-sender/model"
)

var (
	ErrDuplicateSession  = errors.New("session already exists")
	ErrUnknownSession    = errors.New("unknown session")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotUsable         = errors.New("session is not connected")
)

type State int

const (
	Initializing State = iota
	AwaitingAuth
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case AwaitingAuth:
		return "awaiting_auth"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a read-only snapshot of a registry entry.
type Session struct {
	Id            string    `json:"id"`
	State         State     `json:"state"`
	AccountHandle string    `json:"accountHandle,omitempty"`
	Qr            string    `json:"qr,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Conn is the live connection of a session, the transport used by dispatch.
type Conn interface {
	Send(ctx context.Context, address string, payload model.Payload) error
	Close() error
}

// Connector starts authentication of a session. It must return promptly and report
// the outcome asynchronously through the inbox.
type Connector interface {
	Connect(ctx context.Context, inbox Inbox) (Conn, error)
}

// DeviceStore persists the durable side of a session.
type DeviceStore interface {
	Exists(sessionName string) (bool, error)
	MarkConnected(sessionName, address string, at time.Time) error
	MarkDisconnected(sessionName string, at time.Time) error
}

type CallbackKind int

const (
	OnQrChallenge CallbackKind = iota
	OnAuthenticated
	OnAuthFailed
	OnReady
	OnDisconnected
)

// Callback is one asynchronous notification from the authentication collaborator.
// Data carries the challenge, the failure reason or the account handle depending on Kind.
type Callback struct {
	SessionId string
	Kind      CallbackKind
	Data      string

	generation uint64
}

// Inbox is handed to a Connector for a single connection attempt.
type Inbox struct {
	sessionId  string
	generation uint64
	ch         chan<- Callback
	done       <-chan struct{}
}

// NewInbox creates an inbox not tied to any connection attempt.
func NewInbox(sessionId string, ch chan<- Callback) Inbox {
	return Inbox{sessionId: sessionId, ch: ch}
}

func (i Inbox) SessionId() string {
	return i.sessionId
}

func (i Inbox) Send(kind CallbackKind, data string) {
	cb := Callback{SessionId: i.sessionId, Kind: kind, Data: data, generation: i.generation}
	select {
	case i.ch <- cb:
	case <-i.done:
	}
}

func (i Inbox) QrChallenge(data string) {
	i.Send(OnQrChallenge, data)
}

func (i Inbox) Authenticated() {
	i.Send(OnAuthenticated, "")
}

func (i Inbox) AuthFailed(reason string) {
	i.Send(OnAuthFailed, reason)
}

func (i Inbox) Ready(accountHandle string) {
	i.Send(OnReady, accountHandle)
}

func (i Inbox) Disconnected(reason string) {
	i.Send(OnDisconnected, reason)
}
