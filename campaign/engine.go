package campaign

import (
	"context"
	"time"

	"github.com/dilshat/bulk-sender/event"
	"github.com/dilshat/bulk-sender/model"
	"go.uber.org/zap"
)

// Sender is the transport a campaign is bound to.
type Sender interface {
	Send(ctx context.Context, address string, payload model.Payload) error
}

// Engine sends the queue of one campaign, one contact at a time.
type Engine struct {
	campaign  *Campaign
	sender    Sender
	publisher event.Publisher
	address   AddressFunc
	delay     time.Duration
}

func NewEngine(campaign *Campaign, sender Sender, publisher event.Publisher, address AddressFunc, delay time.Duration) *Engine {
	if address == nil {
		address = AffixAddress("", "")
	}
	return &Engine{
		campaign:  campaign,
		sender:    sender,
		publisher: publisher,
		address:   address,
		delay:     delay,
	}
}

// Run starts at the first contact without an outcome and returns once the queue is
// exhausted or the campaign left Running. Cancelling ctx only cuts the pacing wait
// short, a send in flight always completes.
func (e *Engine) Run(ctx context.Context) Status {
	c := e.campaign
	total := c.queue.Len()
	sendCtx := context.WithoutCancel(ctx)

	zap.L().Info("Dispatching campaign",
		zap.String("campaign", c.id),
		zap.String("session", c.sessionId),
		zap.Int("from", c.cursor()),
		zap.Int("total", total))

	for i := c.cursor(); i < total; i++ {
		if !c.proceed() {
			break
		}

		contact := c.queue.At(i)
		err := e.deliver(sendCtx, contact)
		sent, failed := c.record(err == nil)

		outcome := event.Event{
			Kind:       event.DeliveryOutcome,
			CampaignId: c.id,
			SessionId:  c.sessionId,
			Phone:      contact.Phone,
			Name:       contact.Name,
			Result:     event.ResultSent,
			Sent:       sent,
			Failed:     failed,
			Pending:    total - sent - failed,
			Total:      total,
		}
		if err != nil {
			outcome.Result = event.ResultFailed
			outcome.Reason = failureReason(err)
			zap.L().Warn("Failed to send message",
				zap.String("campaign", c.id),
				zap.String("phone", contact.Phone),
				zap.Error(err))
		}
		e.publish(outcome)
		e.publish(event.Event{
			Kind:       event.CampaignProgress,
			CampaignId: c.id,
			SessionId:  c.sessionId,
			Sent:       sent,
			Failed:     failed,
			Pending:    total - sent - failed,
			Total:      total,
		})

		e.pace(ctx)
	}

	return e.finish("")
}

// failureReason never returns an empty reason, a failed outcome always says why.
func failureReason(err error) string {
	if reason := err.Error(); reason != "" {
		return reason
	}
	return "send failed"
}

// deliver sends every attachment as its own transmission with the message as caption of
// the first one, or the bare message when there are none.
func (e *Engine) deliver(ctx context.Context, contact model.Contact) error {
	c := e.campaign
	address := e.address(contact.Phone)

	if len(c.attachments) == 0 {
		return e.sender.Send(ctx, address, model.Payload{Text: c.message})
	}

	for i := range c.attachments {
		payload := model.Payload{Media: &c.attachments[i]}
		if i == 0 {
			payload.Caption = c.message
		}
		if err := e.sender.Send(ctx, address, payload); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pace(ctx context.Context) {
	if e.delay <= 0 {
		return
	}
	timer := time.NewTimer(e.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// finish settles the campaign and announces how the run ended.
func (e *Engine) finish(reason string) Status {
	c := e.campaign
	status := c.settle()
	snap := c.Snapshot()

	kind := event.CampaignPaused
	if status == Completed {
		kind = event.CampaignCompleted
	}
	if reason == "" {
		reason = snap.Reason
	}

	zap.L().Info("Campaign run ended",
		zap.String("campaign", c.id),
		zap.Stringer("status", status),
		zap.Int("sent", snap.Sent),
		zap.Int("failed", snap.Failed),
		zap.Int("total", snap.Total))

	e.publish(event.Event{
		Kind:       kind,
		CampaignId: c.id,
		SessionId:  c.sessionId,
		Reason:     reason,
		Sent:       snap.Sent,
		Failed:     snap.Failed,
		Pending:    snap.Pending,
		Total:      snap.Total,
	})
	return status
}

func (e *Engine) publish(ev event.Event) {
	if e.publisher != nil {
		e.publisher.Publish(ev)
	}
}
