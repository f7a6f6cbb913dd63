package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAPI mimics the server's envelope for the endpoints botctl calls.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	authz    []string
	sent     map[string]string
	qrMisses int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.authz = append(f.authz, r.Header.Get("Authorization"))
	f.mu.Unlock()

	reply := func(status int, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/token":
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "rahasia" {
			reply(http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid username or password", "error": map[string]string{"code": "INVALID_CREDENTIALS"}})
			return
		}
		reply(http.StatusOK, map[string]any{"success": true, "data": map[string]any{"accessToken": "tok", "expiresAt": time.Now().Add(time.Hour)}})
	case r.Method == http.MethodGet && r.URL.Path == "/api/bots":
		reply(http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"total": 1,
			"bots":  []map[string]any{{"botId": "bot_1", "statusLabel": "✅ Connected", "phoneNumber": "628123", "createdAt": time.Now()}},
		}})
	case r.Method == http.MethodPost && r.URL.Path == "/api/bots":
		reply(http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"bot": map[string]any{"botId": "bot_2"}}})
	case r.Method == http.MethodGet && r.URL.Path == "/api/bots/bot_2/qr":
		f.mu.Lock()
		miss := f.qrMisses > 0
		if miss {
			f.qrMisses--
		}
		f.mu.Unlock()
		if miss {
			reply(http.StatusNotFound, map[string]any{"success": false, "message": "QR code not available yet", "error": map[string]string{"code": "QR_NOT_AVAILABLE"}})
			return
		}
		reply(http.StatusOK, map[string]any{"success": true, "data": map[string]any{"qrCode": "2@abc"}})
	case r.Method == http.MethodPost && r.URL.Path == "/api/bots/bot_1/send":
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.sent = req
		f.mu.Unlock()
		reply(http.StatusOK, map[string]any{"success": true, "data": map[string]any{"messageId": "MSG1"}})
	case r.Method == http.MethodDelete && r.URL.Path == "/api/bots/bot_1":
		reply(http.StatusOK, map[string]any{"success": true, "data": map[string]any{"botId": "bot_1"}})
	case r.Method == http.MethodPost && r.URL.Path == "/api/bots/bot_1/logout":
		reply(http.StatusOK, map[string]any{"success": true, "data": map[string]any{"botId": "bot_1"}})
	default:
		reply(http.StatusNotFound, map[string]any{"success": false, "message": "Bot not found", "error": map[string]string{"code": "BOT_NOT_FOUND"}})
	}
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--url", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"list"}, "bot_1"},
		{[]string{"new"}, "bot_2 created"},
		{[]string{"logout", "bot_1"}, "bot_1 logged out"},
		{[]string{"delete", "bot_1"}, "bot_1 deleted"},
		{[]string{"send", "bot_1", "08123", "halo", "dunia"}, "sent MSG1"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			out, err := run(t, srv, tt.args...)
			if err != nil {
				t.Fatalf("err = %v (%s)", err, out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
		})
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if api.sent["to"] != "08123" || api.sent["message"] != "halo dunia" {
		t.Errorf("sent = %v", api.sent)
	}
	for _, a := range api.authz {
		if a != "" {
			t.Errorf("unexpected Authorization %q without credentials", a)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()

	_, err := run(t, srv, "delete", "bot_9")
	if err == nil || !strings.Contains(err.Error(), "BOT_NOT_FOUND") {
		t.Errorf("err = %v", err)
	}

	if _, err := run(t, srv, "send", "bot_1"); err == nil {
		t.Error("send without text should fail")
	}
}

func TestQRWaitsForCode(t *testing.T) {
	api := &fakeAPI{qrMisses: 1}
	srv := httptest.NewServer(api)
	defer srv.Close()

	out, err := run(t, srv, "qr", "bot_2", "--wait", "5s")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, "Linked devices") || len(out) < 100 {
		t.Errorf("qr output = %q", out)
	}
}

func TestLoginWithCredentials(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	t.Setenv("BOTCTL_USER", "admin")
	t.Setenv("BOTCTL_PASS", "rahasia")
	if _, err := run(t, srv, "list"); err != nil {
		t.Fatal(err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.requests) != 2 || api.requests[0] != "POST /api/token" {
		t.Fatalf("requests = %v", api.requests)
	}
	if api.authz[1] != "Bearer tok" {
		t.Errorf("authorization = %q", api.authz[1])
	}

	t.Setenv("BOTCTL_PASS", "salah")
	if _, err := run(t, srv, "list"); err == nil || !strings.Contains(err.Error(), "login failed") {
		t.Errorf("err = %v", err)
	}
}

func TestHashPasswordCommand(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()

	out, err := run(t, srv, "hash-password", "rahasia123")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "$2a$") {
		t.Errorf("hash = %q", out)
	}
	if _, err := run(t, srv, "hash-password", "short"); err == nil {
		t.Error("short password accepted")
	}
}
