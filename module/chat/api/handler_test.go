package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/threadswap/chat-service/module/chat/memstore"
	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/module/chat/service"
	"github.com/threadswap/chat-service/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("unit-test-secret")

func newTestRouter(t *testing.T, health HealthChecker, users ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := memstore.New()
	for _, u := range users {
		st.AddUser(memstore.Profile{ID: u})
	}
	r := gin.New()
	Register(r, &Handler{Svc: service.New(st, st, st, nil)}, testSecret, health)
	return r
}

func signToken(t *testing.T, secret []byte, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// request runs one HTTP call as the given user and decodes the JSON body
// into out when non-nil.
func request(t *testing.T, r *gin.Engine, user, method, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Code < 300 && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

func decodeErrBody(t *testing.T, w *httptest.ResponseRecorder) *errs.CodeError {
	t.Helper()
	var ce errs.CodeError
	if err := json.Unmarshal(w.Body.Bytes(), &ce); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return &ce
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t, nil, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if ce := decodeErrBody(t, w); ce.Code != errs.CodeUnauthorized {
		t.Errorf("body code = %d, want %d", ce.Code, errs.CodeUnauthorized)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	r := newTestRouter(t, nil, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, []byte("other-secret"), "alice"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestConversationFlow(t *testing.T) {
	r := newTestRouter(t, nil, "alice", "bob")

	// alice opens the thread with a first message
	var conv chatmodel.Conversation
	code := request(t, r, "alice", http.MethodPost, "/api/v1/chat/conversations",
		gin.H{"recipient_id": "bob", "text": "is the jacket still available?"}, &conv)
	if code != http.StatusOK {
		t.Fatalf("create: status = %d", code)
	}
	if conv.ID == "" || conv.LastMessage != "is the jacket still available?" {
		t.Fatalf("create returned %+v", conv)
	}

	// creating again resolves to the same thread
	var again chatmodel.Conversation
	request(t, r, "bob", http.MethodPost, "/api/v1/chat/conversations",
		gin.H{"recipient_id": "alice"}, &again)
	if again.ID != conv.ID {
		t.Fatalf("pair resolved to a second conversation: %s vs %s", again.ID, conv.ID)
	}

	// bob sees one unread
	var list struct {
		Conversations []*chatmodel.ConversationSummary `json:"conversations"`
	}
	request(t, r, "bob", http.MethodGet, "/api/v1/chat/conversations", nil, &list)
	if len(list.Conversations) != 1 || list.Conversations[0].Unread != 1 {
		t.Fatalf("bob's list = %+v", list.Conversations)
	}

	// bob replies, alice reads newest first
	var sent chatmodel.Message
	if code := request(t, r, "bob", http.MethodPost, "/api/v1/chat/conversations/"+conv.ID+"/messages",
		gin.H{"text": "yes, still here"}, &sent); code != http.StatusOK {
		t.Fatalf("send: status = %d", code)
	}
	var page chatmodel.MessagePage
	request(t, r, "alice", http.MethodGet, "/api/v1/chat/conversations/"+conv.ID+"/messages", nil, &page)
	if len(page.Messages) != 2 || page.Messages[0].Text != "yes, still here" {
		t.Fatalf("alice's page = %+v", page.Messages)
	}

	// read receipt and per-viewer delete
	if code := request(t, r, "alice", http.MethodPost, "/api/v1/chat/conversations/"+conv.ID+"/read", nil, nil); code != http.StatusNoContent {
		t.Fatalf("read: status = %d", code)
	}
	if code := request(t, r, "alice", http.MethodDelete, "/api/v1/chat/conversations/"+conv.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", code)
	}
	request(t, r, "alice", http.MethodGet, "/api/v1/chat/conversations", nil, &list)
	if len(list.Conversations) != 0 {
		t.Errorf("alice still sees %d conversations after delete", len(list.Conversations))
	}
}

func TestSendErrors(t *testing.T) {
	r := newTestRouter(t, nil, "alice", "bob", "carol")

	var conv chatmodel.Conversation
	request(t, r, "alice", http.MethodPost, "/api/v1/chat/conversations", gin.H{"recipient_id": "bob"}, &conv)

	cases := []struct {
		name string
		user string
		path string
		body any
		want int
	}{
		{"missing text", "alice", "/api/v1/chat/conversations/" + conv.ID + "/messages", gin.H{}, http.StatusBadRequest},
		{"unknown conversation", "alice", "/api/v1/chat/conversations/nope/messages", gin.H{"text": "hi"}, http.StatusNotFound},
		{"non participant", "carol", "/api/v1/chat/conversations/" + conv.ID + "/messages", gin.H{"text": "hi"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		if code := request(t, r, tc.user, http.MethodPost, tc.path, tc.body, nil); code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, code, tc.want)
		}
	}
}

func TestListMessagesBadParams(t *testing.T) {
	r := newTestRouter(t, nil, "alice", "bob")
	var conv chatmodel.Conversation
	request(t, r, "alice", http.MethodPost, "/api/v1/chat/conversations", gin.H{"recipient_id": "bob"}, &conv)

	base := "/api/v1/chat/conversations/" + conv.ID + "/messages"
	if code := request(t, r, "alice", http.MethodGet, base+"?page_size=zero", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad page_size: status = %d, want 400", code)
	}
	if code := request(t, r, "alice", http.MethodGet, base+"?cursor=%21%21", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad cursor: status = %d, want 400", code)
	}
}

func TestHealthz(t *testing.T) {
	ok := newTestRouter(t, nil, "alice")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	ok.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("healthy: status = %d, want 200", w.Code)
	}

	down := newTestRouter(t, func() error { return errors.New("mongo unreachable") }, "alice")
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded: status = %d, want 503", w.Code)
	}
}
