package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/l1f3-sh/AI-Chat/internal/store"
)

// Store is the slice of the persistence layer the chat service needs.
// *store.SQLiteStore satisfies it.
type Store interface {
	GetBalance(ctx context.Context, userID int64) (int, error)
	DebitTokens(ctx context.Context, userID int64, amount, minBalance int) (int, error)
	CreateChatRecord(ctx context.Context, rec *store.ChatRecord) error
	ChatRecordsByUser(ctx context.Context, userID int64) ([]store.ChatRecord, error)
}

// Policy carries the token-economy constants. Both values are configuration,
// not hardcoded: a message is accepted only when the balance is at least
// MinBalance, and an accepted message costs DebitAmount.
type Policy struct {
	MinBalance  int
	DebitAmount int
}

type ChatService struct {
	dbStore   Store
	generator ResponseGenerator
	policy    Policy
}

func NewChatService(db Store, gen ResponseGenerator, policy Policy) *ChatService {
	return &ChatService{
		dbStore:   db,
		generator: gen,
		policy:    policy,
	}
}

// SendMessage runs one chat exchange for an authenticated user:
// validate the message, gate on the balance threshold, debit, generate the
// response, persist the record. The debit commits before the generator runs
// so no balance lock is held across the external call, and a record is only
// ever written after a successful debit.
func (s *ChatService) SendMessage(ctx context.Context, userID int64, message string) (*store.ChatRecord, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	// Advisory read so an obviously broke user fails fast. The authoritative
	// check happens inside DebitTokens, atomically with the decrement.
	balance, err := s.dbStore.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < s.policy.MinBalance {
		return nil, ErrInsufficientTokens
	}

	if _, err := s.dbStore.DebitTokens(ctx, userID, s.policy.DebitAmount, s.policy.MinBalance); err != nil {
		return nil, err
	}

	response, err := s.generator.Generate(ctx, message)
	if err != nil {
		log.Printf("Generator failed for user %d after debit: %v", userID, err)
		return nil, &UpstreamError{Err: err}
	}

	record := store.ChatRecord{
		UserID:   userID,
		Message:  message,
		Response: response,
	}
	if err := s.dbStore.CreateChatRecord(ctx, &record); err != nil {
		// The debit already committed. Surface that rather than silently
		// dropping it.
		log.Printf("Failed to persist chat record for user %d after debit: %v", userID, err)
		return nil, &PartialFailure{Debited: s.policy.DebitAmount, Err: err}
	}

	return &record, nil
}

func (s *ChatService) Balance(ctx context.Context, userID int64) (int, error) {
	return s.dbStore.GetBalance(ctx, userID)
}

func (s *ChatService) History(ctx context.Context, userID int64) ([]store.ChatRecord, error) {
	return s.dbStore.ChatRecordsByUser(ctx, userID)
}
