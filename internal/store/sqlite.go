package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUsernameTaken is returned by CreateUser when the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInsufficientTokens is returned by DebitTokens when the balance is below the required minimum.
	ErrInsufficientTokens = errors.New("insufficient tokens")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// mattn/go-sqlite3 handles concurrent writers poorly; a single pooled
	// connection keeps every statement serialized. Debit correctness does not
	// depend on this, it rests on the conditional UPDATE in DebitTokens.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err = db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err = db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        token_balance INTEGER NOT NULL DEFAULT 4000 CHECK (token_balance >= 0),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS auth_tokens (
        key TEXT PRIMARY KEY, -- opaque bearer credential, compared by exact match
        user_id INTEGER UNIQUE NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS chat_records (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        message TEXT NOT NULL,
        response TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string, initialBalance int) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, token_balance) VALUES (?, ?, ?)",
		username, passwordHash, initialBalance)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}
	return s.getUserByID(ctx, id)
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, token_balance, created_at FROM users WHERE username = ?",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.TokenBalance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, token_balance, created_at FROM users WHERE id = ?",
		id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.TokenBalance, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Credential methods

// GetOrCreateToken returns the user's bearer token, storing key as the new
// credential if they do not have one yet. Tokens are bound 1:1 to a user and
// never expire.
func (s *SQLiteStore) GetOrCreateToken(ctx context.Context, userID int64, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT key FROM auth_tokens WHERE user_id = ?", userID).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to query token: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_tokens (key, user_id) VALUES (?, ?)", key, userID); err != nil {
		return "", fmt.Errorf("failed to insert token: %w", err)
	}
	return key, nil
}

// GetUserByToken resolves a bearer credential to its user by exact match.
// Returns nil, nil when the token is unknown.
func (s *SQLiteStore) GetUserByToken(ctx context.Context, key string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var user User
	err := s.db.QueryRowContext(ctx, `
        SELECT u.id, u.username, u.password_hash, u.token_balance, u.created_at
        FROM users u
        JOIN auth_tokens t ON t.user_id = u.id
        WHERE t.key = ?`,
		key).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.TokenBalance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Unknown token
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	return &user, nil
}

// Balance ledger methods

func (s *SQLiteStore) GetBalance(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var balance int
	err := s.db.QueryRowContext(ctx, "SELECT token_balance FROM users WHERE id = ?", userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	return balance, nil
}

// DebitTokens atomically subtracts amount from the user's balance, provided
// the balance is at least minBalance, and returns the new balance. The check
// and the decrement are a single statement, so concurrent debits against the
// same user commit one at a time and the loser of a race gets
// ErrInsufficientTokens rather than driving the balance below the threshold.
func (s *SQLiteStore) DebitTokens(ctx context.Context, userID int64, amount, minBalance int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var newBalance int
	err := s.db.QueryRowContext(ctx, `
        UPDATE users
        SET token_balance = token_balance - ?
        WHERE id = ? AND token_balance >= ?
        RETURNING token_balance`,
		amount, userID, minBalance).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInsufficientTokens
		}
		return 0, fmt.Errorf("failed to debit tokens: %w", err)
	}
	return newBalance, nil
}

// ChatRecord methods

// CreateChatRecord persists an exchange and stamps it. Callers must only
// invoke this after a successful debit; a record must never exist without one.
func (s *SQLiteStore) CreateChatRecord(ctx context.Context, rec *ChatRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rec.Timestamp = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_records (user_id, message, response, created_at) VALUES (?, ?, ?, ?)",
		rec.UserID, rec.Message, rec.Response, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert chat record: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ChatRecordsByUser(ctx context.Context, userID int64) ([]ChatRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, message, response, created_at FROM chat_records WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat records: %w", err)
	}
	defer rows.Close()

	var records []ChatRecord
	for rows.Next() {
		var rec ChatRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Message, &rec.Response, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
