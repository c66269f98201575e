package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/l1f3-sh/AI-Chat/internal/auth"
	"github.com/l1f3-sh/AI-Chat/internal/core"
	"github.com/l1f3-sh/AI-Chat/internal/testutil"
)

func newTestServer(t *testing.T, name string, initialBalance int) *httptest.Server {
	t.Helper()
	dbStore := testutil.OpenInMemoryStore(t, name)
	authenticator := auth.NewTokenAuthenticator(dbStore)
	chatService := core.NewChatService(dbStore, core.DummyGenerator{}, core.Policy{
		MinBalance:  100,
		DebitAmount: 10,
	})
	handler := NewAPIHandler(dbStore, authenticator, chatService, initialBalance)
	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	fields := map[string]json.RawMessage{}
	// History returns an array; leave fields empty in that case.
	_ = json.NewDecoder(resp.Body).Decode(&fields)
	return resp, fields
}

func register(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/register", "", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status: %d", resp.StatusCode)
	}
	var token string
	if err := json.Unmarshal(fields["token"], &token); err != nil || token == "" {
		t.Fatalf("register returned no token: %v", err)
	}
	return token
}

func TestRegisterAndDuplicate(t *testing.T) {
	srv := newTestServer(t, "apiregister", 4000)

	token := register(t, srv, "alice", "pw123456")
	if token == "" {
		t.Fatal("expected a usable token")
	}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/register", "", map[string]string{
		"username": "alice",
		"password": "different",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register status: %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/register", "", map[string]string{"username": "bob"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing password register status: %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, "apilogin", 4000)
	registered := register(t, srv, "alice", "pw123456")

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/login", "", map[string]string{
		"username": "alice",
		"password": "pw123456",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", resp.StatusCode)
	}
	var token string
	if err := json.Unmarshal(fields["token"], &token); err != nil || token != registered {
		t.Fatalf("login must return the registered credential: %q vs %q", token, registered)
	}

	// The credential authenticates subsequent requests.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/token_balance", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance with login token: %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong password status: %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/login", "", map[string]string{
		"username": "nobody",
		"password": "pw123456",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown user status: %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	srv := newTestServer(t, "apiunauth", 4000)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/chat"},
		{http.MethodGet, "/token_balance"},
		{http.MethodGet, "/history"},
	} {
		resp, _ := doJSON(t, tc.method, srv.URL+tc.path, "", map[string]string{"message": "hi"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s without token: %d", tc.method, tc.path, resp.StatusCode)
		}
		resp, _ = doJSON(t, tc.method, srv.URL+tc.path, "bogus-token", map[string]string{"message": "hi"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s with bogus token: %d", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestChatFlow(t *testing.T) {
	srv := newTestServer(t, "apichat", 4000)
	token := register(t, srv, "alice", "pw123456")

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/chat", token, map[string]string{
		"message": "Hello world",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status: %d", resp.StatusCode)
	}
	var message, response string
	if err := json.Unmarshal(fields["message"], &message); err != nil || message != "Hello world" {
		t.Fatalf("chat message field: %q %v", message, err)
	}
	if err := json.Unmarshal(fields["response"], &response); err != nil {
		t.Fatalf("chat response field: %v", err)
	}
	if response != "This is a dummy AI response to your message: 'Hello world'" {
		t.Fatalf("unexpected response: %q", response)
	}
	if _, ok := fields["timestamp"]; !ok {
		t.Fatal("chat response missing timestamp")
	}

	// Exactly 10 debited.
	resp, fields = doJSON(t, http.MethodGet, srv.URL+"/token_balance", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance status: %d", resp.StatusCode)
	}
	var tokens int
	if err := json.Unmarshal(fields["tokens"], &tokens); err != nil || tokens != 3990 {
		t.Fatalf("balance after chat: %d %v", tokens, err)
	}

	// Exactly one record in history.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	histResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	defer histResp.Body.Close()
	if histResp.StatusCode != http.StatusOK {
		t.Fatalf("history status: %d", histResp.StatusCode)
	}
	var records []map[string]any
	if err := json.NewDecoder(histResp.Body).Decode(&records); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(records) != 1 || records[0]["message"] != "Hello world" {
		t.Fatalf("unexpected history: %+v", records)
	}
}

func TestChatInsufficientTokens(t *testing.T) {
	srv := newTestServer(t, "apibroke", 50)
	token := register(t, srv, "alice", "pw123456")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/chat", token, map[string]string{
		"message": "Hello world",
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("chat status: %d", resp.StatusCode)
	}

	// Balance unchanged, no records.
	_, fields := doJSON(t, http.MethodGet, srv.URL+"/token_balance", token, nil)
	var tokens int
	if err := json.Unmarshal(fields["tokens"], &tokens); err != nil || tokens != 50 {
		t.Fatalf("balance after rejected chat: %d %v", tokens, err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	histResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	defer histResp.Body.Close()
	var records []map[string]any
	if err := json.NewDecoder(histResp.Body).Decode(&records); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %+v", records)
	}
}

func TestChatEmptyMessage(t *testing.T) {
	srv := newTestServer(t, "apiempty", 4000)
	token := register(t, srv, "alice", "pw123456")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/chat", token, map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message status: %d", resp.StatusCode)
	}

	_, fields := doJSON(t, http.MethodGet, srv.URL+"/token_balance", token, nil)
	var tokens int
	if err := json.Unmarshal(fields["tokens"], &tokens); err != nil || tokens != 4000 {
		t.Fatalf("balance after rejected chat: %d %v", tokens, err)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "apihealth", 4000)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status: %d", resp.StatusCode)
	}
}
