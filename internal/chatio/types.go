package chatio

import "context"

// Message is one inbound chat event from the gateway. Direct messages carry an
// empty Room and Direct=true; group messages carry the group and channel IDs.
type Message struct {
	Room       string `json:"room"`
	GroupID    string `json:"group"`
	SenderID   string `json:"sender"`
	SenderName string `json:"sender_name"`
	Text       string `json:"msg"`
	Direct     bool   `json:"direct"`
}

// ReplyRequest posts text to a channel.
type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

// DirectRequest posts text privately to a member.
type DirectRequest struct {
	Type string `json:"type"`
	User string `json:"user"`
	Data string `json:"data"`
}

// VoiceRequest streams base64 audio into a voice device.
type VoiceRequest struct {
	Type   string `json:"type"`
	Device string `json:"device"`
	Data   string `json:"data"`
}

// NameResponse is the gateway's display-name lookup result.
type NameResponse struct {
	Name string `json:"name"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

// WSClient is the inbound event stream.
type WSClient interface {
	Connect(ctx context.Context) error
	OnMessage(cb MessageCallback) int
	RemoveMessageCallback(id int)
	OnStateChange(cb StateCallback) int
	RemoveStateCallback(id int)
	Close(ctx context.Context) error
}
