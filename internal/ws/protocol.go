package ws

import "encoding/json"

// PanelChannel is the channel name UI side panels connect with. Ports
// on other channel names are accepted but not tracked per tab.
const PanelChannel = "copilot-panel"

// PortMessage is an outbound message on a long-lived channel.
type PortMessage struct {
	Command string `json:"command"`
	Payload any    `json:"payload,omitempty"`
}

// InboundMessage is a message received from a UI surface. The payload
// stays raw; the port handler decides how to decode it.
type InboundMessage struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReadyPayload is pushed to every panel as soon as its port is stored,
// so a surface that connected before startup finished still learns the
// orchestrator is alive.
type ReadyPayload struct {
	Version string `json:"version"`
	Status  string `json:"status"`
}
