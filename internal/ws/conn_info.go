package ws

import "time"

// ConnInfo identifies a websocket session in lifecycle events and logs.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
