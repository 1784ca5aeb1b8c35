package sms

import (
	"context"

	"github.com/dilshat/bulk-sender/model"
	"github.com/dilshat/bulk-sender/session"
	"go.uber.org/zap"
)

// DryRun accepts every session and logs messages instead of sending them.
type DryRun struct {
}

func (d DryRun) Connect(ctx context.Context, inbox session.Inbox) (session.Conn, error) {
	go func() {
		inbox.Authenticated()
		inbox.Ready("dryrun:" + inbox.SessionId())
	}()
	return dryRunConn{sessionId: inbox.SessionId()}, nil
}

type dryRunConn struct {
	sessionId string
}

func (c dryRunConn) Send(ctx context.Context, address string, payload model.Payload) error {
	fields := []zap.Field{zap.String("session", c.sessionId), zap.String("to", address)}
	if payload.IsMedia() {
		fields = append(fields, zap.String("media", payload.Media.Name), zap.String("caption", payload.Caption))
	} else {
		fields = append(fields, zap.String("text", payload.Text))
	}
	zap.L().Info("Dry run send", fields...)
	return ctx.Err()
}

func (c dryRunConn) Close() error {
	return nil
}
