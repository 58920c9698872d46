// Package server implements the per-tenant and admin HTTP control surfaces.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/api"
	"github.com/rsclarke/salonrelay/internal/logging"
	"github.com/rsclarke/salonrelay/internal/models"
	"github.com/rsclarke/salonrelay/internal/pairing"
	"github.com/rsclarke/salonrelay/internal/status"
	"github.com/rsclarke/salonrelay/internal/tenant"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 500
	qrImageSize          = 256
)

// Session is the part of a tenant session the control surface drives.
type Session interface {
	Tenant() tenant.Config
	Snapshot() pairing.Snapshot
	Status(ctx context.Context) status.ConnectionStatus
	Send(ctx context.Context, to, text string) (string, error)
	Reset(ctx context.Context) error
}

// Journal reads a tenant's relay journal.
type Journal interface {
	Recent(ctx context.Context, tenantID string, limit int) ([]models.RelayEntry, error)
	Counts(ctx context.Context, tenantID string) (map[string]int, error)
}

// Tenant pairs a session with its journal. Journal may be nil.
type Tenant struct {
	Session Session
	Journal Journal
}

// ControlServer serves the operator HTTP surface.
type ControlServer struct {
	Service    string
	BackendURL string
	Logger     *zap.Logger
	Now        func() time.Time

	order   []string
	tenants map[string]Tenant
}

// NewControlServer creates a control server for the given tenants.
func NewControlServer(service, backendURL string, logger *zap.Logger, tenants ...Tenant) *ControlServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ControlServer{
		Service:    service,
		BackendURL: backendURL,
		Logger:     logger,
		Now:        time.Now,
		tenants:    make(map[string]Tenant, len(tenants)),
	}
	for _, t := range tenants {
		id := t.Session.Tenant().ID
		if _, ok := s.tenants[id]; ok {
			continue
		}
		s.order = append(s.order, id)
		s.tenants[id] = t
	}
	return s
}

func (s *ControlServer) lookup(id string) (Tenant, bool) {
	t, ok := s.tenants[id]
	return t, ok
}

func (s *ControlServer) all() []Tenant {
	out := make([]Tenant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tenants[id])
	}
	return out
}

type tenantHandler func(w http.ResponseWriter, r *http.Request, t Tenant, links pageLinks)

type route struct {
	method  string
	path    string
	handler tenantHandler
}

func (s *ControlServer) routes() []route {
	return []route{
		{http.MethodGet, "/health", s.handleHealth},
		{http.MethodGet, "/info", s.handleInfo},
		{http.MethodGet, "/connection-status", s.handleConnectionStatus},
		{http.MethodGet, "/qr", s.handleQRPage},
		{http.MethodGet, "/qr-image", s.handleQRImage},
		{http.MethodPost, "/send-message", s.handleSendMessage},
		{http.MethodPost, "/reset-connection", s.handleReset},
		{http.MethodGet, "/messages", s.handleMessages},
	}
}

// TenantHandler returns the handler for a tenant's own listener.
func (s *ControlServer) TenantHandler(id string) (http.Handler, error) {
	t, ok := s.lookup(id)
	if !ok {
		return nil, tenant.ErrNotFound
	}
	links := pageLinks{Image: "/qr-image", Reset: "/reset-connection"}

	mux := http.NewServeMux()
	for _, rt := range s.routes() {
		h := rt.handler
		mux.HandleFunc(rt.method+" "+rt.path, func(w http.ResponseWriter, r *http.Request) {
			h(w, r, t, links)
		})
	}
	return s.middleware(mux, logging.Tenant(id)), nil
}

// AdminHandler returns the handler for the admin listener, which addresses
// tenants by id.
func (s *ControlServer) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleAdminHealth)
	mux.HandleFunc("GET /tenants", s.handleListTenants)

	for _, rt := range s.routes() {
		mux.HandleFunc(rt.method+" /tenants/{tenant}"+rt.path, s.resolve(rt.handler, func(id string) pageLinks {
			base := "/tenants/" + id
			return pageLinks{Image: base + "/qr-image", Reset: base + "/reset-connection"}
		}))
	}

	legacy := func(id string) pageLinks {
		return pageLinks{Image: "/qr-image/" + id, Reset: "/tenants/" + id + "/reset-connection"}
	}
	mux.HandleFunc("GET /qr/{tenant}", s.resolve(s.handleQRPage, legacy))
	mux.HandleFunc("GET /qr-image/{tenant}", s.resolve(s.handleQRImage, legacy))

	return s.middleware(mux, logging.Component("admin"))
}

func (s *ControlServer) resolve(h tenantHandler, links func(id string) pageLinks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("tenant")
		t, ok := s.lookup(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: tenant.ErrNotFound.Error()})
			return
		}
		h(w, r, t, links(id))
	}
}

func (s *ControlServer) handleHealth(w http.ResponseWriter, r *http.Request, t Tenant, _ pageLinks) {
	cfg := t.Session.Tenant()
	snap := t.Session.Snapshot()
	st := t.Session.Status(r.Context())

	resp := api.HealthResponse{
		Status:           "not_ready",
		Salon:            cfg.Name,
		SalonID:          cfg.ID,
		Port:             cfg.Port,
		Timestamp:        s.Now().UTC().Format(time.RFC3339),
		State:            string(snap.State),
		QRPending:        snap.QRPending(),
		ClientInfo:       toClientInfo(snap.Account),
		ConnectionStatus: toAPIStatus(st),
	}
	if snap.Ready() {
		resp.Status = "ready"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ControlServer) handleInfo(w http.ResponseWriter, r *http.Request, t Tenant, _ pageLinks) {
	cfg := t.Session.Tenant()
	snap := t.Session.Snapshot()

	resp := api.InfoResponse{
		Service:          cfg.Name + " WhatsApp Service",
		SalonID:          cfg.ID,
		Port:             cfg.Port,
		Status:           "initializing",
		QRAvailable:      snap.QRPending(),
		BackendURL:       s.BackendURL,
		WebhookPath:      cfg.WebhookURL(""),
		ConnectionStatus: toAPIStatus(t.Session.Status(r.Context())),
	}
	if snap.Ready() {
		resp.Status = "ready"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ControlServer) handleConnectionStatus(w http.ResponseWriter, r *http.Request, t Tenant, _ pageLinks) {
	snap := t.Session.Snapshot()
	st := t.Session.Status(r.Context())

	resp := api.ConnectionStatusResponse{
		ConnectionStatus: toAPIStatus(st),
		CurrentStatus:    "disconnected",
		QRNeeded:         !snap.Ready() && !st.IsConnected,
		State:            string(snap.State),
		LastError:        snap.LastError,
	}
	if snap.Ready() {
		resp.CurrentStatus = "connected"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ControlServer) handleQRImage(w http.ResponseWriter, _ *http.Request, t Tenant, _ pageLinks) {
	snap := t.Session.Snapshot()
	if !snap.QRPending() {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "QR code not available"})
		return
	}
	png, err := qrcode.Encode(snap.QR, qrcode.Medium, qrImageSize)
	if err != nil {
		s.Logger.Error("failed to render qr code", logging.Tenant(t.Session.Tenant().ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to render QR code"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *ControlServer) handleSendMessage(w http.ResponseWriter, r *http.Request, t Tenant, _ pageLinks) {
	var req api.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "phone and message are required"})
		return
	}
	if !t.Session.Snapshot().Ready() {
		writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: pairing.ErrNotReady.Error()})
		return
	}

	to := req.Phone
	if !strings.Contains(to, "@") {
		to += "@c.us"
	}

	cfg := t.Session.Tenant()
	id, err := t.Session.Send(r.Context(), to, req.Message)
	if errors.Is(err, pairing.ErrNotReady) {
		writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.Logger.Error("send message failed", logging.Tenant(cfg.ID), logging.Chat(to), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}

	s.Logger.Info("message sent", logging.Tenant(cfg.ID), logging.Chat(to), logging.MessageID(id))
	writeJSON(w, http.StatusOK, api.SendMessageResponse{Success: true, MessageID: id, Salon: cfg.Name})
}

func (s *ControlServer) handleReset(w http.ResponseWriter, r *http.Request, t Tenant, _ pageLinks) {
	cfg := t.Session.Tenant()
	if err := t.Session.Reset(r.Context()); err != nil {
		s.Logger.Error("reset failed", logging.Tenant(cfg.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ResetResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, api.ResetResponse{
		Success: true,
		Message: "Connection reset for " + cfg.Name + ". Scan the new QR code to reconnect.",
	})
}

func (s *ControlServer) handleMessages(w http.ResponseWriter, r *http.Request, t Tenant, _ pageLinks) {
	cfg := t.Session.Tenant()
	resp := api.MessagesResponse{SalonID: cfg.ID, Counts: map[string]int{}, Messages: []api.RelayEntry{}}
	if t.Journal == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	limit := defaultMessagesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxMessagesLimit)
	}

	entries, err := t.Journal.Recent(r.Context(), cfg.ID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	counts, err := t.Journal.Counts(r.Context(), cfg.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	resp.Counts = counts
	for _, e := range entries {
		resp.Messages = append(resp.Messages, api.RelayEntry{
			ID:         e.ID,
			MessageID:  e.MessageID,
			Sender:     e.Sender,
			Outcome:    e.Outcome,
			HTTPStatus: e.HTTPStatus,
			Error:      e.Error,
			OccurredAt: time.Unix(e.OccurredAt, 0).UTC().Format(time.RFC3339),
			DurationMS: e.DurationMS,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ControlServer) handleAdminHealth(w http.ResponseWriter, _ *http.Request) {
	resp := api.AdminHealthResponse{
		Service: s.Service,
		Status:  "ok",
		Salons:  make(map[string]api.SalonHealth, len(s.order)),
	}
	for _, t := range s.all() {
		cfg := t.Session.Tenant()
		snap := t.Session.Snapshot()
		resp.Salons[cfg.ID] = api.SalonHealth{
			Ready: snap.Ready(),
			HasQR: snap.QRPending(),
			State: string(snap.State),
			Port:  cfg.Port,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ControlServer) handleListTenants(w http.ResponseWriter, _ *http.Request) {
	resp := api.ListTenantsResponse{Tenants: make([]api.TenantInfo, 0, len(s.order))}
	for _, t := range s.all() {
		resp.Tenants = append(resp.Tenants, tenantInfo(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func tenantInfo(t Tenant) api.TenantInfo {
	cfg := t.Session.Tenant()
	snap := t.Session.Snapshot()
	return api.TenantInfo{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Phone:       cfg.Phone,
		Port:        cfg.Port,
		ClientID:    cfg.ClientID,
		WebhookPath: cfg.WebhookURL(""),
		State:       string(snap.State),
		Ready:       snap.Ready(),
	}
}

func toClientInfo(acc *pairing.Account) *api.ClientInfo {
	if acc == nil {
		return nil
	}
	return &api.ClientInfo{JID: acc.JID, Phone: acc.Phone, PushName: acc.PushName, Platform: acc.Platform}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toAPIStatus(st status.ConnectionStatus) api.ConnectionStatus {
	return api.ConnectionStatus{
		SalonID:          st.TenantID,
		SalonName:        st.TenantName,
		IsConnected:      st.IsConnected,
		PhoneNumber:      st.PhoneNumber,
		ConnectedAt:      formatTime(st.ConnectedAt),
		LastSeen:         formatTime(st.LastSeen),
		ConnectionCount:  st.ConnectionCount,
		QRGeneratedCount: st.QRGeneratedCount,
	}
}

// decodeJSON reads a single JSON object from the request body. It writes the
// error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "request body required"})
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16) // 64KB limit
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "request body too large"})
		case errors.Is(err, io.EOF):
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "request body required"})
		default:
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid JSON"})
		}
		return false
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "unexpected trailing data"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
