package node

import "fmt"

// Status is the connection status of a link to a node. The numeric order is
// significant: anything >= StatusConnected counts as selectable.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusReconnecting
	StatusConnected
	// StatusIdle means disconnected with no reconnect planned.
	StatusIdle
)

var statusNames = map[Status]string{
	StatusDisconnected: "disconnected",
	StatusConnecting:   "connecting",
	StatusReconnecting: "reconnecting",
	StatusConnected:    "connected",
	StatusIdle:         "idle",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// AtLeast reports whether s orders at or after other.
func (s Status) AtLeast(other Status) bool {
	return s >= other
}

// IsValid reports whether s is one of the five defined statuses.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// MarshalText encodes the status by name for JSON APIs.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown node status %q", text)
}
