package model

import "time"

const (
	DEVICE_CONNECTED    = "connected"
	DEVICE_DISCONNECTED = "disconnected"
)

// Device is the durable row kept for a messaging-account session.
type Device struct {
	Id          uint32    `storm:"id,increment"`
	SessionName string    `storm:"unique"`
	Address     string    // account handle reported by the provider once ready
	Status      string
	LastSeen    time.Time
	CreatedAt   time.Time `storm:"index"`
}
