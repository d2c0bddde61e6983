package ws

import "time"

// ConnInfo carries the identity captured at handshake time, used for
// lifecycle events and audit payloads.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
