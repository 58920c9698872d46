package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rsclarke/salonrelay/internal/api"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestListTenants(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/tenants" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, api.ListTenantsResponse{Tenants: []api.TenantInfo{
			{ID: "salon_a", Name: "Downtown", Port: 3005, Ready: true},
		}})
	}))

	resp, err := c.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("ListTenants() error = %v", err)
	}
	if len(resp.Tenants) != 1 || resp.Tenants[0].ID != "salon_a" || !resp.Tenants[0].Ready {
		t.Errorf("tenants = %+v", resp.Tenants)
	}
}

func TestConnectionStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenants/salon_a/connection-status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, api.ConnectionStatusResponse{
			ConnectionStatus: api.ConnectionStatus{SalonID: "salon_a", ConnectionCount: 4},
			CurrentStatus:    "connected",
		})
	}))

	resp, err := c.ConnectionStatus(context.Background(), "salon_a")
	if err != nil {
		t.Fatal(err)
	}
	if resp.CurrentStatus != "connected" || resp.ConnectionCount != 4 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tenants/salon_a/send-message" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var req api.SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Phone != "15557654321" || req.Message != "hello" {
			t.Errorf("req = %+v", req)
		}
		writeJSON(w, http.StatusOK, api.SendMessageResponse{Success: true, MessageID: "3EB0", Salon: "Downtown"})
	}))

	resp, err := c.SendMessage(context.Background(), "salon_a", "15557654321", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.MessageID != "3EB0" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		call    func(*Client) error
		wantErr string
	}{
		{
			name:   "not ready",
			status: http.StatusServiceUnavailable,
			body:   api.ErrorResponse{Error: "WhatsApp client not ready"},
			call: func(c *Client) error {
				_, err := c.SendMessage(context.Background(), "salon_a", "1", "m")
				return err
			},
			wantErr: "WhatsApp client not ready",
		},
		{
			name:   "unknown tenant",
			status: http.StatusNotFound,
			body:   api.ErrorResponse{Error: "tenant not found"},
			call: func(c *Client) error {
				_, err := c.ConnectionStatus(context.Background(), "nope")
				return err
			},
			wantErr: "tenant not found",
		},
		{
			name:   "reset failure",
			status: http.StatusInternalServerError,
			body:   api.ResetResponse{Error: "discard credentials: boom"},
			call: func(c *Client) error {
				_, err := c.ResetConnection(context.Background(), "salon_a")
				return err
			},
			wantErr: "discard credentials: boom",
		},
		{
			name:   "no error field",
			status: http.StatusBadGateway,
			body:   map[string]string{},
			call: func(c *Client) error {
				_, err := c.Health(context.Background())
				return err
			},
			wantErr: "request failed with status 502: {}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			err := tt.call(c)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMessagesLimit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		writeJSON(w, http.StatusOK, api.MessagesResponse{SalonID: "salon_a", Messages: []api.RelayEntry{{ID: 1, Outcome: "replied"}}})
	}))

	resp, err := c.Messages(context.Background(), "salon_a", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Outcome != "replied" {
		t.Errorf("resp = %+v", resp)
	}
}
