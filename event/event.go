package event

import "time"

// Kind names an event and doubles as its pubsub topic.
type Kind string

const (
	SessionQr           Kind = "session_qr"
	SessionConnected    Kind = "session_connected"
	SessionDisconnected Kind = "session_disconnected"
	SessionAuthFailed   Kind = "session_auth_failed"
	DeliveryOutcome     Kind = "delivery_outcome"
	CampaignProgress    Kind = "campaign_progress"
	CampaignPaused      Kind = "campaign_paused"
	CampaignCompleted   Kind = "campaign_completed"
)

// AllKinds lists every kind in emission-independent order.
var AllKinds = []Kind{
	SessionQr,
	SessionConnected,
	SessionDisconnected,
	SessionAuthFailed,
	DeliveryOutcome,
	CampaignProgress,
	CampaignPaused,
	CampaignCompleted,
}

// Results of a DeliveryOutcome.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

type Event struct {
	Kind          Kind      `json:"kind"`
	SessionId     string    `json:"sessionId,omitempty"`
	CampaignId    string    `json:"campaignId,omitempty"`
	AccountHandle string    `json:"accountHandle,omitempty"`
	Qr            string    `json:"qr,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Result        string    `json:"result,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Name          string    `json:"name,omitempty"`
	Sent          int       `json:"sent"`
	Failed        int       `json:"failed"`
	Pending       int       `json:"pending"`
	Total         int       `json:"total"`
	Time          time.Time `json:"time"`
}

// Delivered reports whether a DeliveryOutcome event carries a successful send.
func (e Event) Delivered() bool {
	return e.Kind == DeliveryOutcome && e.Result == ResultSent
}
