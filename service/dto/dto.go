package dto

import (
	"time"

	"github.com/dilshat/bulk-sender/model"
)

type Message struct {
	Message string `json:"message"`
}

type Error struct {
	Error string `json:"error"`
}

type NewDevice struct {
	SessionName string `json:"sessionName"`
}

type DeviceCreated struct {
	Id          uint32 `json:"id"`
	SessionName string `json:"sessionName"`
	Message     string `json:"message"`
}

type Device struct {
	Id          uint32    `json:"id"`
	SessionName string    `json:"session_name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Status      string    `json:"status"`
	State       string    `json:"state"`
	Qr          string    `json:"qr,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}

type ContactList struct {
	Contacts []model.Contact `json:"contacts"`
	Count    int             `json:"count"`
}

type ImageList struct {
	Images []model.Attachment `json:"images"`
	Count  int                `json:"count"`
}

type NewCampaign struct {
	DeviceSessionName string             `json:"deviceSessionName"`
	MessageText       string             `json:"messageText"`
	Contacts          []model.Contact    `json:"contacts"`
	Images            []model.Attachment `json:"images"`
}

type CampaignStarted struct {
	CampaignId string `json:"campaignId"`
	Message    string `json:"message"`
}

type Campaign struct {
	Id                string             `json:"id"`
	Name              string             `json:"name"`
	DeviceSessionName string             `json:"deviceSessionName"`
	MessageText       string             `json:"messageText"`
	Images            []model.Attachment `json:"images"`
	Status            string             `json:"status"`
	Reason            string             `json:"reason,omitempty"`
	SentCount         int                `json:"sent_count"`
	FailedCount       int                `json:"failed_count"`
	Pending           int                `json:"pending"`
	TotalContacts     int                `json:"total_contacts"`
	CreatedAt         time.Time          `json:"created_at"`
}

type LogEntry struct {
	Id            uint32    `json:"id"`
	CampaignId    string    `json:"campaignId"`
	ContactNumber string    `json:"contact_number"`
	ContactName   string    `json:"contact_name,omitempty"`
	Status        string    `json:"status"`
	SentAt        time.Time `json:"sent_at"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}
