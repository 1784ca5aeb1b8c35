package sms

import (
	"context"
	"crypto/rand"

	smpp "github.com/CodeMonkeyKevin/smpp34"
	"github.com/CodeMonkeyKevin/smpp34/gsmutil"
	"github.com/dilshat/bulk-sender/log"
	"github.com/dilshat/bulk-sender/util"
)

const (
	CODING_DEFAULT = 0x00
	CODING_UCS2    = 0x08
	ESM_CLASS_UDHI = 0x40
	MAX_SEGMENTS   = 255
)

type RateLimiter interface {
	// Wait blocks until the limiter permits an event to happen.
	Wait(ctx context.Context) error
}

// Packet is the part of an inbound PDU the connector acts upon.
type Packet struct {
	Id        smpp.CMDId
	Status    smpp.CMDStatus
	Sequence  uint32
	MessageId string
}

// Transceiver is a bound SMPP transceiver session.
type Transceiver interface {
	Unbind() error
	Close()
	Read() (Packet, error)
	SubmitSm(sourceAddr, destinationAddr, shortMessage string, params *smpp.Params) (seq uint32, err error)
	DeliverSmResp(seq uint32, status smpp.CMDStatus) error
}

// Dialer opens and binds a transceiver session.
type Dialer interface {
	Dial(host string, port int, eli int, bindParams smpp.Params) (Transceiver, error)
}

type transceiverDialer struct {
}

type transceiverWrapper struct {
	tr *smpp.Transceiver
}

func (t *transceiverWrapper) Unbind() error {
	return t.tr.Unbind()
}

func (t *transceiverWrapper) Close() {
	t.tr.Close()
}

func (t *transceiverWrapper) Read() (Packet, error) {
	pdu, err := t.tr.Read()
	if err != nil {
		return Packet{}, err
	}
	header := pdu.GetHeader()
	packet := Packet{Id: header.Id, Status: header.Status, Sequence: header.Sequence}
	if header.Id == smpp.SUBMIT_SM_RESP {
		if field := pdu.GetField("message_id"); field != nil {
			packet.MessageId = field.String()
		}
	}
	return packet, nil
}

func (t *transceiverWrapper) SubmitSm(sourceAddr, destinationAddr, shortMessage string, params *smpp.Params) (seq uint32, err error) {
	return t.tr.SubmitSm(sourceAddr, destinationAddr, shortMessage, params)
}

func (t *transceiverWrapper) DeliverSmResp(seq uint32, status smpp.CMDStatus) error {
	return t.tr.DeliverSmResp(seq, status)
}

func (t *transceiverDialer) Dial(host string, port int, eli int, bindParams smpp.Params) (Transceiver, error) {
	tr, err := smpp.NewTransceiver(host, port, eli, bindParams)
	if err != nil {
		return nil, err
	}
	return &transceiverWrapper{tr: tr}, nil
}

// segment is one submit_sm worth of a message.
type segment struct {
	body   []byte
	coding int
	udhi   bool
}

// chunk splits an encoded body into parts of at most partLength bytes. A UCS2 part
// never ends on a high surrogate, the pair moves to the next part.
func chunk(body []byte, partLength int, ucs2 bool) [][]byte {
	var parts [][]byte
	for start := 0; start < len(body); {
		end := start + partLength
		if end >= len(body) {
			end = len(body)
		} else if ucs2 && body[end-2] >= 0xD8 && body[end-2] <= 0xDB {
			end -= 2
		}
		parts = append(parts, body[start:end])
		start = end
	}
	return parts
}

// segments encodes text and splits it into concatenated parts when it does not fit
// into a single short message.
func segments(text string) ([]segment, error) {
	coding := CODING_DEFAULT
	textBytes := []byte(text)
	partLength := 153
	maxLength := 160
	ucs2 := !util.IsASCII(text)
	if ucs2 {
		coding = CODING_UCS2
		textBytes = gsmutil.EncodeUcs2(text)
		partLength = 134
		maxLength = 140
	}

	if len(textBytes) <= maxLength {
		return []segment{{body: textBytes, coding: coding}}, nil
	}

	chunks := chunk(textBytes, partLength, ucs2)
	//the concat header numbers parts with a single byte
	if len(chunks) > MAX_SEGMENTS {
		return nil, ErrTooLong
	}

	commonId := make([]byte, 1)
	_, err := rand.Read(commonId)
	log.WarnIfErr("Error generating common id", err)

	parts := make([]segment, 0, len(chunks))
	for i, body := range chunks {
		udh := []byte{0x05, 0x00, 0x03, commonId[0], byte(len(chunks)), byte(i + 1)}
		parts = append(parts, segment{
			body:   append(udh, body...),
			coding: coding,
			udhi:   true,
		})
	}
	return parts, nil
}
