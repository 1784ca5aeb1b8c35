package model

import "time"

const (
	//delivery log statuses
	SENT   string = "sent"
	FAILED        = "failed"
)

// CampaignRecord is the persisted snapshot of a campaign.
type CampaignRecord struct {
	Id          string `storm:"id"`
	Name        string
	SessionName string    `storm:"index"`
	Text        string
	Attachments []Attachment
	Status      string
	Sent        int
	Failed      int
	Total       int
	CreatedAt   time.Time `storm:"index"`
}

// DeliveryLog is one delivery outcome of a campaign.
type DeliveryLog struct {
	Id         uint32 `storm:"id,increment"`
	CampaignId string `storm:"index"`
	Phone      string
	Name       string
	Status     string
	Error      string
	SentAt     time.Time `storm:"index"`
}
