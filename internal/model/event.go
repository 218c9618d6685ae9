package model

// Proxy event types reported to /api/v1/proxy/events.
const (
	EventChat       = "chat"
	EventJoin       = "join"
	EventLeave      = "leave"
	EventSwitch     = "switch"
	EventDisconnect = "disconnect"
)

// ProxyEvent is a single player event forwarded by the proxy.
type ProxyEvent struct {
	Type           string `json:"type"`
	Server         string `json:"server"`
	PreviousServer string `json:"previous_server,omitempty"`
	Username       string `json:"username"`
	UUID           string `json:"uuid"`
	Prefix         string `json:"prefix,omitempty"`
	Message        string `json:"message,omitempty"`
}

// GameMessage is pushed to connected proxies over the WebSocket feed when a
// Discord user writes in the bridged channel. Text is already rendered with
// the in-game message template.
type GameMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
