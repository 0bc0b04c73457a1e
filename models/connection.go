package models

// ConnectionState is the lifecycle of a websocket subscription.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateExhausted
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// MarshalText lets states render as strings in JSON responses.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionStatus is the snapshot reported by a connection manager.
type ConnectionStatus struct {
	State       ConnectionState `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Symbol      string          `json:"symbol,omitempty"`
	ID          string          `json:"subscription_id,omitempty"`
}
