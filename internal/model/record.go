package model

import "time"

// SessionStatus is the persisted state of a controller session.
type SessionStatus string

const (
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
)

// SessionRecord is the persisted history of one controller connection.
type SessionRecord struct {
	ID             string        `json:"id"`
	ClientID       string        `json:"clientId"`
	Slot           SlotID        `json:"controller"`
	RemoteAddr     string        `json:"remoteAddr"`
	Status         SessionStatus `json:"status"`
	DriverOK       bool          `json:"driverOk"`
	Inputs         int64         `json:"inputs"`
	ConnectedAt    time.Time     `json:"connectedAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	DisconnectedAt *time.Time    `json:"disconnectedAt,omitempty"`
}

// Duration returns how long the session lasted, or has lasted so far.
func (r *SessionRecord) Duration() time.Duration {
	if r.DisconnectedAt != nil {
		return r.DisconnectedAt.Sub(r.ConnectedAt)
	}
	return time.Since(r.ConnectedAt)
}
