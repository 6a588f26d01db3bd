package types

// MessageType identifies what an envelope or stored message carries. The
// values are part of the wire protocol and must match what clients send.
type MessageType string

const (
	MessageTypeChat         MessageType = "CHAT"
	MessageTypeJoin         MessageType = "JOIN"
	MessageTypeLeave        MessageType = "LEAVE"
	MessageTypeImage        MessageType = "IMAGE"
	MessageTypeOffer        MessageType = "OFFER"
	MessageTypeAnswer       MessageType = "ANSWER"
	MessageTypeIceCandidate MessageType = "ICE_CANDIDATE"
	MessageTypeMediaStatus  MessageType = "MEDIA_STATUS"
)

type Room struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	CreatedBy          string   `json:"createdBy"`
	CreatedAt          int64    `json:"createdAt"`
	Participants       []string `json:"participants"`
	ActiveParticipants []string `json:"activeParticipants"`
}

type Message struct {
	ID         int64       `json:"id,omitempty"`
	RoomID     string      `json:"roomId"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName,omitempty"`
	Content    string      `json:"content,omitempty"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	Type       MessageType `json:"type"`
	Timestamp  int64       `json:"timestamp"`
}
