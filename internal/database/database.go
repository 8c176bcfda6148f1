package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateRoom is returned by CreateRoom when another transaction
// already inserted a room with the same room_id. Callers treat it as
// "room exists, re-fetch".
var ErrDuplicateRoom = errors.New("room already exists")

const uniqueViolation = pq.ErrorCode("23505")

type PgChatRepository struct {
	conn *sql.DB
}

func NewPgChatRepository(dsn string) (*PgChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgChatRepository{conn: db}, nil
}

func (db *PgChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
