package signaling

import (
	"encoding/json"
	"time"

	"github.com/imap143/go-signaling/internal/types"
)

// Envelope is the single message shape exchanged over the transport. Chat
// and image messages use Content/ImageURL; WebRTC negotiation messages use
// TargetID/Signal. Signal is opaque to the coordinator and interpreted only
// by the receiving peer.
type Envelope struct {
	RoomID     string            `json:"roomId"`
	SenderID   string            `json:"senderId"`
	SenderName string            `json:"senderName,omitempty"`
	TargetID   string            `json:"targetId,omitempty"`
	Type       types.MessageType `json:"type"`
	Content    string            `json:"content,omitempty"`
	ImageURL   string            `json:"imageUrl,omitempty"`
	Signal     json.RawMessage   `json:"signal,omitempty"`
	Timestamp  int64             `json:"timestamp,omitempty"`
}

// ParticipantUpdate is pushed to each active participant whenever a room's
// active set changes.
type ParticipantUpdate struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
}

// Delivery destinations. The transport resolves these to subscribed
// connections; delivery is fire-and-forget.
func RoomDest(roomID string) string         { return "room." + roomID }
func SignalDest(userID string) string       { return "signal." + userID }
func ParticipantsDest(userID string) string { return "participants." + userID }

// Deliverer publishes a message to a named destination. Implementations do
// not acknowledge delivery; failures are dropped.
type Deliverer interface {
	Publish(destination string, v any)
}

// joinPayload is the signal attached to the pairwise JOIN envelopes that
// bootstrap peer negotiation.
func joinPayload(userID string, ts int64) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"type":      "join",
		"userId":    userID,
		"timestamp": ts,
	})
	return raw
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
