package types

const (
	NotifyTypeState  = "state"
	NotifyTypeBanner = "banner"
)

// Notification is pushed to dashboard websocket clients.
type Notification struct {
	Type    string         `json:"type,omitempty"`
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
