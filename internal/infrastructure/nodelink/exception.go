package nodelink

import "fmt"

// RemoteTrackException is the error a node reports when a track fails to
// play.
type RemoteTrackException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

func (e *RemoteTrackException) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("remote track exception (%s): %s: %s", e.Severity, e.Message, e.Cause)
	}
	if e.Severity != "" {
		return fmt.Sprintf("remote track exception (%s): %s", e.Severity, e.Message)
	}
	return "remote track exception: " + e.Message
}
