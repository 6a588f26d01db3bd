package transport

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/imap143/go-signaling/internal/database"
	"github.com/imap143/go-signaling/internal/session"
	"github.com/imap143/go-signaling/internal/signaling"
	"github.com/imap143/go-signaling/internal/stats"
	"github.com/imap143/go-signaling/internal/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	// SDP offers can run to several kilobytes
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection. Its read pump dispatches inbound
// envelopes to the relay; its write pump drains the send buffer filled by
// the hub.
type Client struct {
	conn     *websocket.Conn
	hub      *Hub
	relay    *signaling.Relay
	registry *session.Registry
	db       database.SignalRepository
	log      *log.Logger

	userID    string
	sessionID string

	send     chan []byte
	stop     chan struct{}
	stopOnce sync.Once

	subsLock sync.Mutex
	subs     map[string]struct{}
}

func NewClient(conn *websocket.Conn, hub *Hub, relay *signaling.Relay,
	registry *session.Registry, db database.SignalRepository,
	logger *log.Logger, userID, sessionID string) *Client {
	return &Client{
		conn:      conn,
		hub:       hub,
		relay:     relay,
		registry:  registry,
		db:        db,
		log:       logger,
		userID:    userID,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		stop:      make(chan struct{}),
		subs:      make(map[string]struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write pump for session %s exiting", c.sessionID)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			if !c.sendMessage(websocket.TextMessage, msg) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read pump for session %s exiting", c.sessionID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var env signaling.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Println("error parsing envelope:", err)
			continue
		}

		c.dispatch(env)
	}
}

func (c *Client) dispatch(env signaling.Envelope) {
	if c.userID == "" {
		c.log.Printf("ignoring %s envelope from unidentified session %s", env.Type, c.sessionID)
		return
	}
	if env.SenderID == "" {
		env.SenderID = c.userID
	}

	switch env.Type {
	case types.MessageTypeChat, types.MessageTypeImage:
		c.handlePublish(env)
	case types.MessageTypeJoin:
		c.handleJoin(env)
	case types.MessageTypeLeave:
		c.handleLeave(env)
	case types.MessageTypeOffer:
		c.relay.RelayOffer(env)
	case types.MessageTypeAnswer:
		c.relay.RelayAnswer(env)
	case types.MessageTypeIceCandidate:
		c.relay.RelayIceCandidate(env)
	case types.MessageTypeMediaStatus:
		c.relay.RelayMediaStatus(env)
	default:
		c.log.Printf("unknown envelope type %q from %s", env.Type, env.SenderID)
	}
}

// handlePublish persists a chat or image message, then broadcasts the saved
// record to the room.
func (c *Client) handlePublish(env signaling.Envelope) {
	ts := env.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	saved, err := c.db.SaveMessage(database.Message{
		RoomID:     env.RoomID,
		SenderID:   env.SenderID,
		SenderName: env.SenderName,
		Content:    env.Content,
		ImageURL:   env.ImageURL,
		Type:       string(env.Type),
		Timestamp:  ts,
	})
	if err != nil {
		c.log.Println("save message:", err)
		return
	}

	c.hub.Publish(signaling.RoomDest(env.RoomID), types.Message{
		ID:         saved.ID,
		RoomID:     saved.RoomID,
		SenderID:   saved.SenderID,
		SenderName: saved.SenderName,
		Content:    saved.Content,
		ImageURL:   saved.ImageURL,
		Type:       types.MessageType(saved.Type),
		Timestamp:  saved.Timestamp,
	})
	c.hub.stats.Incr(stats.MessagesSent)
}

// handleJoin subscribes this connection to the room topic and runs the join
// side effects. The subscription happens even for a duplicate join so that a
// user's second tab still receives room traffic.
func (c *Client) handleJoin(env signaling.Envelope) {
	c.hub.Subscribe(c, signaling.RoomDest(env.RoomID))

	joined, err := c.relay.HandleJoin(env.RoomID, env.SenderID, c.sessionID)
	if err != nil {
		c.log.Printf("join room %q: %v", env.RoomID, err)
		c.hub.Unsubscribe(c, signaling.RoomDest(env.RoomID))
		return
	}

	if joined {
		env.Type = types.MessageTypeJoin
		env.Timestamp = time.Now().UnixMilli()
		c.hub.Publish(signaling.RoomDest(env.RoomID), env)
	}
}

// handleLeave announces the leave to the room, drops the topic subscription
// and lets the relay decide whether the user actually becomes absent (they
// may still have another live session).
func (c *Client) handleLeave(env signaling.Envelope) {
	env.Type = types.MessageTypeLeave
	env.Timestamp = time.Now().UnixMilli()
	c.hub.Publish(signaling.RoomDest(env.RoomID), env)

	c.hub.Unsubscribe(c, signaling.RoomDest(env.RoomID))

	if err := c.relay.HandleLeave(env.RoomID, env.SenderID); err != nil {
		c.log.Printf("leave room %q: %v", env.RoomID, err)
	}
}

func (c *Client) queueMessage(msg []byte) bool {
	select {
	case c.send <- msg:
	default:
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// stopClient may be reached from both the read pump's cleanup and a server
// shutdown.
func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanup runs once when the read pump exits: the session is deregistered
// first, then the relay decides whether the user's presence should be torn
// down.
func (c *Client) cleanup() {
	c.hub.Deregister(c)

	if c.userID != "" {
		c.registry.RemoveSession(c.sessionID)
		c.relay.HandleDisconnect(c.userID)
	}

	c.stopClient()
}

func (c *Client) addSubscription(dest string) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	c.subs[dest] = struct{}{}
}

func (c *Client) delSubscription(dest string) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	delete(c.subs, dest)
}

func (c *Client) subscriptions() []string {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	dests := make([]string, 0, len(c.subs))
	for dest := range c.subs {
		dests = append(dests, dest)
	}
	return dests
}
