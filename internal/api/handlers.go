package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/imap143/go-signaling/internal/database"
	"github.com/imap143/go-signaling/internal/stats"
	"github.com/imap143/go-signaling/internal/transport"
	"github.com/imap143/go-signaling/internal/types"
	"github.com/teris-io/shortid"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type UploadResponse struct {
	ImageURL string `json:"imageUrl"`
}

func (s *SignalingApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func toRoom(r database.Room) types.Room {
	return types.Room{
		ID:                 r.ID,
		Name:               r.Name,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt,
		Participants:       r.Participants,
		ActiveParticipants: r.ActiveParticipants,
	}
}

func toRooms(dbRooms []database.Room) []types.Room {
	rooms := make([]types.Room, 0, len(dbRooms))
	for _, r := range dbRooms {
		rooms = append(rooms, toRoom(r))
	}
	return rooms
}

func (s *SignalingApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *SignalingApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var createRoomReq CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&createRoomReq); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if createRoomReq.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newRoom, err := s.rooms.CreateRoom(createRoomReq.Name, userId, time.Now().UnixMilli())
	if err != nil {
		s.log.Println("create room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.ActiveRooms)
	s.writeJson(w, http.StatusCreated, toRoom(newRoom))
}

func (s *SignalingApp) listRooms(w http.ResponseWriter, _ *http.Request) {
	rooms, err := s.rooms.ListRoomsWithActiveParticipants()
	if err != nil {
		s.log.Println("list rooms:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRooms(rooms))
}

func (s *SignalingApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.GetRoom(r.PathValue("roomId"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRoom(room))
}

func (s *SignalingApp) getParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := s.rooms.Participants(r.PathValue("roomId"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, participants)
}

func (s *SignalingApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.JoinRoom(r.PathValue("roomId"), userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRoom(room))
}

func (s *SignalingApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.LeaveRoom(r.PathValue("roomId"), userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRoom(room))
}

func (s *SignalingApp) getUserRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms, err := s.rooms.RoomsForUser(userId)
	if err != nil {
		s.log.Println("rooms for user:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRooms(rooms))
}

func (s *SignalingApp) getActiveUserRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms, err := s.rooms.ActiveRoomsForUser(userId)
	if err != nil {
		s.log.Println("active rooms for user:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRooms(rooms))
}

func (s *SignalingApp) getRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")
	if _, err := s.rooms.GetRoom(roomId); err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbMessages, err := s.db.MessagesByRoom(roomId)
	if err != nil {
		s.log.Println("messages by room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, types.Message{
			ID:         msg.ID,
			RoomID:     msg.RoomID,
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			Content:    msg.Content,
			ImageURL:   msg.ImageURL,
			Type:       types.MessageType(msg.Type),
			Timestamp:  msg.Timestamp,
		})
	}

	s.writeJson(w, http.StatusOK, messages)
}

// maxUploadSize bounds in-memory multipart parsing.
const maxUploadSize = 10 << 20

// uploadFile stores an image under the room's upload directory and returns
// the URL it will be served from. The stored name is freshly generated; the
// client filename only contributes its extension.
func (s *SignalingApp) uploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.FormValue("roomId")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.rooms.GetRoom(roomId); err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	name, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	name += filepath.Ext(header.Filename)

	dir := filepath.Join(s.uploadDir, roomId)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Println("create upload dir:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		s.log.Println("create upload file:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		s.log.Println("write upload:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, UploadResponse{
		ImageURL: "/uploads/" + roomId + "/" + name,
	})
}

// serveWs upgrades the connection and starts the client pumps. Identity may
// arrive in the X-User-Id header or, since browser websocket clients cannot
// set headers, the uid query parameter. A connection without identity is
// accepted but never dispatches.
func (s *SignalingApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId := r.Header.Get(UserIDHeader)
	if userId == "" {
		userId = r.URL.Query().Get("uid")
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	sessionId := uuid.NewString()
	if userId != "" {
		s.registry.AddSession(sessionId, userId)
	}

	client := transport.NewClient(conn, s.hub, s.relay, s.registry, s.db, s.log, userId, sessionId)
	s.hub.Register(client)

	go client.Write()
	go client.Read()
}
