package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

func (db *PgSignalRepository) SaveRoom(room Room) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO rooms (id, name, created_by, created_at, participants, active_participants) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"ON CONFLICT (id) DO UPDATE SET participants = $5, active_participants = $6 "+
			"RETURNING id, name, created_by, created_at, participants, active_participants",
		room.ID,
		room.Name,
		room.CreatedBy,
		room.CreatedAt,
		pq.Array(room.Participants),
		pq.Array(room.ActiveParticipants),
	)

	return scanRoom(res)
}

func (db *PgSignalRepository) GetRoom(id string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, created_by, created_at, participants, active_participants "+
			"FROM rooms WHERE id = $1 LIMIT 1",
		id,
	)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, fmt.Errorf("room %q: %w", id, ErrNotFound)
	}

	return room, err
}

func (db *PgSignalRepository) ListRooms() ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, created_by, created_at, participants, active_participants " +
			"FROM rooms ORDER BY created_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRooms(rows)
}

func (db *PgSignalRepository) DeleteRoom(id string) error {
	_, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", id)
	return err
}

func (db *PgSignalRepository) RoomsByParticipant(userID string) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, created_by, created_at, participants, active_participants "+
			"FROM rooms WHERE $1 = ANY(participants) ORDER BY created_at",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRooms(rows)
}

func (db *PgSignalRepository) RoomsByActiveParticipant(userID string) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, created_by, created_at, participants, active_participants "+
			"FROM rooms WHERE $1 = ANY(active_participants) ORDER BY created_at",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRooms(rows)
}

func (db *PgSignalRepository) SaveMessage(msg Message) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (room_id, sender_id, sender_name, content, image_url, type, timestamp) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		msg.RoomID,
		msg.SenderID,
		msg.SenderName,
		msg.Content,
		msg.ImageURL,
		msg.Type,
		msg.Timestamp,
	)

	err := res.Scan(&msg.ID)
	return msg, err
}

func (db *PgSignalRepository) MessagesByRoom(roomID string) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, room_id, sender_id, sender_name, content, image_url, type, timestamp "+
			"FROM messages WHERE room_id = $1 ORDER BY timestamp",
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.SenderID,
			&m.SenderName,
			&m.Content,
			&m.ImageURL,
			&m.Type,
			&m.Timestamp,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgSignalRepository) DeleteMessagesByRoom(roomID string) error {
	_, err := db.conn.Exec("DELETE FROM messages WHERE room_id = $1", roomID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (Room, error) {
	var r Room
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.CreatedBy,
		&r.CreatedAt,
		pq.Array(&r.Participants),
		pq.Array(&r.ActiveParticipants),
	)

	return r, err
}

func collectRooms(rows *sql.Rows) ([]Room, error) {
	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}
