package signaling

import (
	"log"

	"github.com/imap143/go-signaling/internal/room"
	"github.com/imap143/go-signaling/internal/session"
	"github.com/imap143/go-signaling/internal/stats"
	"github.com/imap143/go-signaling/internal/types"
)

// Relay orchestrates presence side effects and forwards peer-to-peer
// signaling. It holds no state of its own: the session registry and room
// directory own their maps, the relay only reads and writes through them.
type Relay struct {
	log      *log.Logger
	sessions *session.Registry
	rooms    *room.Directory
	deliver  Deliverer
	stats    stats.StatsProvider
}

func NewRelay(logger *log.Logger, sessions *session.Registry, rooms *room.Directory,
	deliver Deliverer, sp stats.StatsProvider) *Relay {
	return &Relay{
		log:      logger,
		sessions: sessions,
		rooms:    rooms,
		deliver:  deliver,
		stats:    sp,
	}
}

// HandleJoin makes userID an active participant of roomID and bootstraps
// pairwise negotiation: every existing member and the newcomer are each told
// to initiate an offer toward the other. Joining a room the user is already
// active in does nothing and reports joined=false, so a duplicate join never
// produces a duplicate broadcast.
func (r *Relay) HandleJoin(roomID, userID, sessionID string) (joined bool, err error) {
	active, err := r.rooms.IsActiveParticipant(roomID, userID)
	if err != nil {
		return false, err
	}
	if active {
		r.log.Printf("user %s is already in room %q", userID, roomID)
		return false, nil
	}

	r.sessions.AddSession(sessionID, userID)

	rm, err := r.rooms.JoinRoom(roomID, userID)
	if err != nil {
		return false, err
	}

	r.broadcastParticipantList(roomID, rm.ActiveParticipants)

	ts := nowMillis()
	payload := joinPayload(userID, ts)
	for _, peer := range rm.ActiveParticipants {
		if peer == userID {
			continue
		}

		// tell the existing peer about the newcomer
		r.publishSignal(peer, Envelope{
			RoomID:    roomID,
			SenderID:  userID,
			TargetID:  peer,
			Type:      types.MessageTypeJoin,
			Signal:    payload,
			Timestamp: ts,
		})

		// and the newcomer about the existing peer
		r.publishSignal(userID, Envelope{
			RoomID:    roomID,
			SenderID:  peer,
			TargetID:  userID,
			Type:      types.MessageTypeJoin,
			Signal:    payload,
			Timestamp: ts,
		})
	}

	return true, nil
}

// HandleLeave removes userID from roomID's active participants, unless the
// user still has a live session elsewhere. When the last active member
// leaves, the room and its messages are purged; otherwise the remaining
// members get a LEAVE signal and a fresh participant list.
func (r *Relay) HandleLeave(roomID, userID string) error {
	if r.sessions.HasActiveSession(userID) {
		r.log.Printf("user %s still has a live session, not removing from room %q", userID, roomID)
		return nil
	}

	rm, deleted, err := r.rooms.RemoveFromActiveParticipants(roomID, userID)
	if err != nil {
		return err
	}
	if deleted {
		r.stats.Decr(stats.ActiveRooms)
		return nil
	}

	r.broadcastParticipantList(roomID, rm.ActiveParticipants)

	leave := Envelope{
		RoomID:    roomID,
		SenderID:  userID,
		Type:      types.MessageTypeLeave,
		Timestamp: nowMillis(),
	}
	for _, peer := range rm.ActiveParticipants {
		r.publishSignal(peer, leave)
	}

	return nil
}

// HandleDisconnect applies leave semantics to every room the user is active
// in, but only once the user's last session is gone.
func (r *Relay) HandleDisconnect(userID string) {
	if r.sessions.HasActiveSession(userID) {
		r.log.Printf("user %s reconnected or has another session, skipping room cleanup", userID)
		return
	}

	rooms, err := r.rooms.ActiveRoomsForUser(userID)
	if err != nil {
		r.log.Printf("list rooms for %s: %v", userID, err)
		return
	}

	for _, rm := range rooms {
		if err := r.HandleLeave(rm.ID, userID); err != nil {
			r.log.Printf("leave room %q for %s: %v", rm.ID, userID, err)
		}
	}
}

// RelayOffer forwards an SDP offer to the target's signal queue. No room
// state changes.
func (r *Relay) RelayOffer(env Envelope) {
	env.Type = types.MessageTypeOffer
	r.forward(env)
}

func (r *Relay) RelayAnswer(env Envelope) {
	env.Type = types.MessageTypeAnswer
	r.forward(env)
}

func (r *Relay) RelayIceCandidate(env Envelope) {
	env.Type = types.MessageTypeIceCandidate
	r.forward(env)
}

// RelayMediaStatus broadcasts a sender's audio/video mute state to the whole
// room. The payload is interpreted entirely by receiving peers.
func (r *Relay) RelayMediaStatus(env Envelope) {
	env.Type = types.MessageTypeMediaStatus
	r.deliver.Publish(RoomDest(env.RoomID), env)
	r.stats.Incr(stats.SignalsRelayed)
}

// forward sends a point-to-point envelope. A missing target means the peer
// already disconnected; the message is silently dropped.
func (r *Relay) forward(env Envelope) {
	if env.TargetID == "" {
		r.log.Printf("dropping %s signal from %s: no target", env.Type, env.SenderID)
		return
	}

	r.publishSignal(env.TargetID, env)
}

func (r *Relay) publishSignal(userID string, env Envelope) {
	r.deliver.Publish(SignalDest(userID), env)
	r.stats.Incr(stats.SignalsRelayed)
}

func (r *Relay) broadcastParticipantList(roomID string, participants []string) {
	update := ParticipantUpdate{RoomID: roomID, Participants: participants}
	for _, p := range participants {
		r.deliver.Publish(ParticipantsDest(p), update)
	}
}
