package domain

// Message is an immutable text payload pushed to viewers.
type Message string

const (
	// KeepaliveMessage is queued for every new subscriber to confirm the connection.
	KeepaliveMessage Message = ""
	// ProbeMessage is sent by the liveness sweep.
	ProbeMessage Message = "connected"
)

// IsKeepalive reports whether m carries no payload.
func (m Message) IsKeepalive() bool {
	return m == KeepaliveMessage
}
