package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/testutil"
)

func newTestServer(t *testing.T, st *testutil.FakeStore) *Server {
	t.Helper()
	return NewServer(st, WithToken("secret-token"))
}

func doRequest(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, testutil.NewFakeStore())
	rec := doRequest(s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	s := newTestServer(t, testutil.NewFakeStore())

	if rec := doRequest(s, http.MethodGet, "/admin/sessions/+549", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(s, http.MethodGet, "/admin/sessions/+549", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
}

func TestAdminRejectsWhenNoTokenConfigured(t *testing.T) {
	s := NewServer(testutil.NewFakeStore())
	if rec := doRequest(s, http.MethodGet, "/admin/sessions/+549", "anything"); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when no token configured", rec.Code)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	st := testutil.NewFakeStore()
	sess := models.Session{
		ID: "s1", BusinessID: "biz-1", PhoneNumber: "+5491122223333",
		FlowType: models.FlowTypeCustomer, State: models.StateCollectingDatetime,
	}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, st)

	rec := doRequest(s, http.MethodGet, "/admin/sessions/+5491122223333", "secret-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string           `json:"status"`
		Result []models.Session `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Status != "ok" || len(resp.Result) != 1 || resp.Result[0].ID != "s1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestToolCallsEndpoint(t *testing.T) {
	st := testutil.NewFakeStore()
	for i := 0; i < 3; i++ {
		if err := st.AddToolCallRecord(models.ToolCallRecord{
			ID: string(rune('a' + i)), PhoneNumber: "+549111", ToolName: "select_service",
			Success: true, CreatedAt: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	s := newTestServer(t, st)

	rec := doRequest(s, http.MethodGet, "/admin/tool-calls/+549111?limit=2", "secret-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Result []models.ToolCallRecord `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(resp.Result) != 2 {
		t.Errorf("got %d records, want 2", len(resp.Result))
	}

	if rec := doRequest(s, http.MethodGet, "/admin/tool-calls/+549111?limit=zero", "secret-token"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, testutil.NewFakeStore())
	if rec := doRequest(s, http.MethodPost, "/admin/sessions/+549", "secret-token"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
