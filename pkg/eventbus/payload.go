package eventbus

import (
	"encoding/json"

	"github.com/taskbeacon/taskbeacon/pkg/notify"
)

// Payload is the wire shape written to streaming clients.
type Payload struct {
	HasNotification bool           `json:"hasNotification"`
	Type            string         `json:"type"`
	Status          notify.Status  `json:"status,omitempty"`
	Timestamp       int64          `json:"timestamp,omitempty"`
	Message         string         `json:"message,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// BuildPayload encodes the canonical event payload. A nil notification
// produces the static "no notification" shape.
func BuildPayload(eventType string, n *notify.Notification) ([]byte, error) {
	p := Payload{Type: eventType}
	if n != nil {
		p.HasNotification = true
		p.Status = n.Status
		p.Timestamp = n.Timestamp
		p.Message = n.Message
		p.Metadata = n.Metadata
	}
	return json.Marshal(p)
}
