package database

// Room is the persisted room record. Participants is the all-time member
// list; ActiveParticipants is the subset currently present. Timestamps are
// epoch milliseconds to match the wire format.
type Room struct {
	ID                 string
	Name               string
	CreatedBy          string
	CreatedAt          int64
	Participants       []string
	ActiveParticipants []string
}

type Message struct {
	ID         int64
	RoomID     string
	SenderID   string
	SenderName string
	Content    string
	ImageURL   string
	Type       string
	Timestamp  int64
}
