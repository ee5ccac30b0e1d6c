package domain

// ConnectionState describes the lifecycle of the hub connection.
type ConnectionState int

const (
	// Disconnected means there is no live connection and no reconnect in progress.
	Disconnected ConnectionState = iota
	// Connecting means an initial connection attempt is in flight.
	Connecting
	// Connected means the hub connection is live and invocations are allowed.
	Connected
	// Reconnecting means a live connection dropped and the reconnect schedule is running.
	Reconnecting
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
