package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	TokenBalance int       `json:"tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatRecord is one message/response exchange. Rows are append-only: they are
// written once, as a side effect of a successful debit, and never updated.
type ChatRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}
