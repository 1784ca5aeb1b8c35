package sms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	smpp "github.com/CodeMonkeyKevin/smpp34"
	"github.com/dilshat/bulk-sender/log"
	"github.com/dilshat/bulk-sender/model"
	"github.com/dilshat/bulk-sender/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrNotBound      = errors.New("smpp session is not bound")
	ErrClosed        = errors.New("smpp session is closed")
	ErrSubmitTimeout = errors.New("no submit_sm_resp from SMSC")
	ErrTooLong       = errors.New("message needs more than 255 sms parts")
)

type Config struct {
	Host          string
	Port          int
	SystemId      string
	Password      string
	Source        string
	EnquireLink   int
	Tps           int
	SubmitTimeout time.Duration
}

// Connector binds one SMPP transceiver per activated session.
type Connector struct {
	cfg    Config
	dialer Dialer
}

func NewConnector(cfg Config) *Connector {
	if cfg.Tps <= 0 {
		cfg.Tps = 1
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	return &Connector{cfg: cfg, dialer: &transceiverDialer{}}
}

// Connect returns at once. The bind runs in the background and its outcome is reported
// through the inbox.
func (c *Connector) Connect(ctx context.Context, inbox session.Inbox) (session.Conn, error) {
	conn := &smppConn{
		sessionId:   inbox.SessionId(),
		source:      c.cfg.Source,
		timeout:     c.cfg.SubmitTimeout,
		rateLimiter: rate.NewLimiter(rate.Limit(c.cfg.Tps), 1),
		pending:     make(map[uint32]chan Packet),
		closed:      make(chan struct{}),
	}
	go conn.bind(ctx, c.dialer, c.cfg, inbox)
	return conn, nil
}

type smppConn struct {
	sessionId   string
	source      string
	timeout     time.Duration
	rateLimiter RateLimiter

	mu          sync.Mutex
	transceiver Transceiver
	pending     map[uint32]chan Packet

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *smppConn) bind(ctx context.Context, dialer Dialer, cfg Config, inbox session.Inbox) {
	defer func() {
		r := recover()
		if r != nil {
			zap.L().Error("Recovered in bind", zap.Any("panic", r))
			inbox.Disconnected(fmt.Sprint(r))
		}
	}()

	zap.L().Info("Connecting to SMSC", zap.String("session", c.sessionId), zap.String("host", cfg.Host), zap.Int("port", cfg.Port))

	tr, err := dialer.Dial(cfg.Host, cfg.Port, cfg.EnquireLink, smpp.Params{
		"system_id": cfg.SystemId,
		"password":  cfg.Password,
	})
	if err != nil {
		if _, ok := err.(smpp.SmppErr); ok {
			inbox.AuthFailed(err.Error())
		} else {
			inbox.Disconnected(err.Error())
		}
		return
	}

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		_ = tr.Unbind()
		tr.Close()
		return
	default:
	}
	c.transceiver = tr
	c.mu.Unlock()

	inbox.Authenticated()
	inbox.Ready(cfg.SystemId)

	c.readPackets(ctx, tr, inbox)
}

// readPackets runs until the connection breaks or is closed.
func (c *smppConn) readPackets(ctx context.Context, tr Transceiver, inbox session.Inbox) {
	for {
		packet, err := tr.Read() // This is blocking
		if err != nil {
			if _, ok := err.(smpp.SmppErr); ok {
				zap.L().Warn("Error reading packet", zap.String("session", c.sessionId), zap.Error(err))
				continue
			}
			if c.isClosed() || ctx.Err() != nil {
				return
			}
			zap.L().Error("SMSC connection lost", zap.String("session", c.sessionId), zap.Error(err))
			if tr := c.shutdown(); tr != nil {
				tr.Close()
			}
			inbox.Disconnected(err.Error())
			return
		}

		// Transceiver auto handles EnquireLinks
		switch packet.Id {
		case smpp.SUBMIT_SM_RESP:
			c.processSubmitSmResp(packet)
		case smpp.DELIVER_SM:
			log.ErrIfErr("DeliverSmResp err:", tr.DeliverSmResp(packet.Sequence, smpp.ESME_ROK))
		default:
			zap.L().Debug("Unhandled PDU", zap.Uint32("id", uint32(packet.Id)))
		}
	}
}

func (c *smppConn) processSubmitSmResp(packet Packet) {
	c.mu.Lock()
	ch, ok := c.pending[packet.Sequence]
	delete(c.pending, packet.Sequence)
	c.mu.Unlock()

	if !ok {
		zap.L().Debug("Unexpected submit_sm_resp", zap.Uint32("seq", packet.Sequence))
		return
	}
	ch <- packet
}

// Send submits the payload and waits until the SMSC accepted or rejected every part.
// Media is sent as a link since SMS carries text only.
func (c *smppConn) Send(ctx context.Context, address string, payload model.Payload) error {
	text := payload.Text
	if payload.IsMedia() {
		text = payload.Media.Url
		if payload.Caption != "" {
			text = payload.Caption + "\n" + payload.Media.Url
		}
	}

	parts, err := segments(text)
	if err != nil {
		return err
	}
	for _, part := range parts {
		//impose tps limit
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.submit(ctx, address, part); err != nil {
			return err
		}
	}
	return nil
}

func (c *smppConn) submit(ctx context.Context, address string, part segment) error {
	params := smpp.Params{
		smpp.SOURCE_ADDR_TON:     5,
		smpp.SOURCE_ADDR_NPI:     1,
		smpp.DEST_ADDR_TON:       1,
		smpp.DEST_ADDR_NPI:       1,
		smpp.REGISTERED_DELIVERY: 0,
		smpp.DATA_CODING:         part.coding,
	}
	if part.udhi {
		params[smpp.ESM_CLASS] = ESM_CLASS_UDHI
	}

	resp := make(chan Packet, 1)

	//the read loop resolves the sequence only after it is registered
	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.transceiver == nil {
		c.mu.Unlock()
		return ErrNotBound
	}
	seq, err := c.transceiver.SubmitSm(c.source, address, string(part.body), &params)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.pending[seq] = resp
	c.mu.Unlock()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case packet := <-resp:
		if packet.Status != smpp.ESME_ROK {
			return fmt.Errorf("submit_sm rejected with status 0x%x", uint32(packet.Status))
		}
		zap.L().Debug("SubmitSmResp", zap.Uint32("seq", seq), zap.String("messageId", packet.MessageId))
		return nil
	case <-timer.C:
		c.forget(seq)
		return ErrSubmitTimeout
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		c.forget(seq)
		return ctx.Err()
	}
}

func (c *smppConn) forget(seq uint32) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

func (c *smppConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// shutdown marks the connection closed and returns the transceiver, if bound.
func (c *smppConn) shutdown() Transceiver {
	var tr Transceiver
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.closed)
		tr = c.transceiver
		c.transceiver = nil
		c.pending = make(map[uint32]chan Packet)
		c.mu.Unlock()
	})
	return tr
}

func (c *smppConn) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			zap.L().Error("Recovered in Close", zap.Any("panic", r))
		}
	}()

	tr := c.shutdown()
	if tr == nil {
		return nil
	}
	zap.L().Info("Disconnecting from SMSC", zap.String("session", c.sessionId))
	err = tr.Unbind()
	tr.Close()
	return err
}
