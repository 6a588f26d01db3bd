package database

import (
	"database/sql"
)

type PgSignalRepository struct {
	conn *sql.DB
}

func NewPgSignalRepository(dsn string) (*PgSignalRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgSignalRepository{conn: db}, nil
}

func (db *PgSignalRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgSignalRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
