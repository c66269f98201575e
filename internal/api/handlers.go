package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/l1f3-sh/AI-Chat/internal/auth"
	"github.com/l1f3-sh/AI-Chat/internal/core"
	"github.com/l1f3-sh/AI-Chat/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	dbStore       *store.SQLiteStore
	authenticator auth.Authenticator
	chatService   *core.ChatService

	// Balance seeded for new users at registration.
	initialBalance int
}

func NewAPIHandler(db *store.SQLiteStore, authn auth.Authenticator, cs *core.ChatService, initialBalance int) *APIHandler {
	return &APIHandler{
		dbStore:        db,
		authenticator:  authn,
		chatService:    cs,
		initialBalance: initialBalance,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// AuthMiddleware resolves the bearer token on the request and stashes the
// caller's user ID in the request context. Anything that fails to resolve is
// a 401.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		user, err := h.authenticator.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			log.Printf("Error resolving token: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user, err := h.dbStore.CreateUser(r.Context(), req.Username, hashedPassword, h.initialBalance)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			writeError(w, http.StatusBadRequest, "Username already taken")
			return
		}
		log.Printf("Error creating user %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	token, err := h.dbStore.GetOrCreateToken(r.Context(), user.ID, auth.NewTokenKey())
	if err != nil {
		log.Printf("Error issuing token for user %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User registered successfully",
		"token":   token,
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.dbStore.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Failed to look up user")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	token, err := h.dbStore.GetOrCreateToken(r.Context(), user.ID, auth.NewTokenKey())
	if err != nil {
		log.Printf("Error issuing token for user %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type ChatRequest struct {
	Message string `json:"message"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	record, err := h.chatService.SendMessage(r.Context(), userID, req.Message)
	if err != nil {
		var upstream *core.UpstreamError
		var partial *core.PartialFailure
		switch {
		case errors.Is(err, core.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "Message is required")
		case errors.Is(err, core.ErrInsufficientTokens):
			writeError(w, http.StatusPaymentRequired, "Insufficient tokens")
		case errors.As(err, &upstream):
			log.Printf("Upstream failure for user %d: %v", userID, err)
			writeError(w, http.StatusBadGateway, "Failed to generate response")
		case errors.As(err, &partial):
			log.Printf("Partial failure for user %d: %v", userID, err)
			writeError(w, http.StatusInternalServerError, "Message was charged but could not be recorded")
		default:
			log.Printf("Error handling chat for user %d: %v", userID, err)
			writeError(w, http.StatusInternalServerError, "Failed to process message")
		}
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *APIHandler) TokenBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	balance, err := h.chatService.Balance(r.Context(), userID)
	if err != nil {
		log.Printf("Error reading balance for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to read balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tokens": balance})
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	records, err := h.chatService.History(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing history for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}
	if records == nil {
		records = []store.ChatRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
