package server

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/logging"
)

// pageLinks holds the URLs a QR page links to, which differ between the
// tenant listener and the admin listener.
type pageLinks struct {
	Image string
	Reset string
}

const pageHead = `{{define "head"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if .Refresh}}<meta http-equiv="refresh" content="{{.Refresh}}">{{end}}
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; text-align: center; padding: 40px; background: #f0f8ff; }
.container { background: white; padding: 30px; border-radius: 10px; display: inline-block; box-shadow: 0 4px 6px rgba(0,0,0,0.1); max-width: 520px; }
.salon-info { background: #e8f5e8; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
.details { background: #f0f8ff; padding: 15px; border-radius: 5px; margin: 20px 0; text-align: left; }
.instructions { background: #fff3cd; padding: 15px; border-radius: 5px; margin-top: 20px; text-align: left; }
.success { color: #25D366; }
.qr { max-width: 300px; border: 2px solid #25D366; border-radius: 10px; }
.reset-btn { background: #ff6b6b; color: white; border: none; padding: 10px 20px; border-radius: 5px; cursor: pointer; }
table { margin: 0 auto; border-collapse: collapse; }
td, th { padding: 6px 12px; border-bottom: 1px solid #ddd; text-align: left; }
</style>
</head>
<body>
<div class="container">
{{end}}`

const pageFoot = `{{define "foot"}}</div>
</body>
</html>{{end}}`

var pages = template.Must(template.New("pages").Parse(pageHead + pageFoot + `
{{define "connected"}}{{template "head" .}}
<div class="salon-info"><h2>{{.Salon}}</h2><p>Salon ID: {{.SalonID}}</p></div>
<h1 class="success">WhatsApp Already Connected</h1>
<p>This salon's WhatsApp is connected and ready to receive messages.</p>
<div class="details">
<strong>Connection details</strong><br>
Phone: {{.Phone}}<br>
Connected: {{.ConnectedAt}}<br>
Online for: {{.Hours}} hours<br>
Total connections: {{.ConnectionCount}}
</div>
<div class="instructions">
<strong>Need to reconnect?</strong>
<p>Only use this if you are having connection issues.</p>
<button class="reset-btn" onclick="resetConnection()">Reset Connection</button>
</div>
<script>
async function resetConnection() {
  if (!confirm('Reset the connection? You will need to scan a new QR code.')) { return; }
  try {
    const response = await fetch({{.Links.Reset}}, { method: 'POST' });
    const result = await response.json();
    alert(result.message || result.error);
    if (result.success) { window.location.reload(); }
  } catch (error) {
    alert('Error resetting connection: ' + error.message);
  }
}
</script>
{{template "foot" .}}{{end}}

{{define "qr"}}{{template "head" .}}
<div class="salon-info"><h2>{{.Salon}}</h2><p>Salon ID: {{.SalonID}}</p><p>Port: {{.Port}}</p></div>
<h1>WhatsApp QR Code</h1>
<p><img class="qr" src="{{.Links.Image}}" alt="WhatsApp QR Code"></p>
<div class="instructions">
<h3>How to connect</h3>
<ol>
<li>Open WhatsApp on your phone</li>
<li>Go to Settings, then Linked Devices</li>
<li>Tap "Link a Device"</li>
<li>Scan the QR code above</li>
<li>Wait for the connection confirmation</li>
</ol>
</div>
<p>This page refreshes every {{.Refresh}} seconds to check the connection.</p>
{{template "foot" .}}{{end}}

{{define "waiting"}}{{template "head" .}}
<div class="salon-info"><h2>{{.Salon}}</h2><p>Salon ID: {{.SalonID}}</p></div>
<h1>Initializing WhatsApp...</h1>
<p>Please wait while the QR code is generated.</p>
{{if .LastError}}<p>Last error: {{.LastError}}</p>{{end}}
<p>This page refreshes automatically.</p>
{{template "foot" .}}{{end}}

{{define "index"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<table>
<tr><th>Salon</th><th>ID</th><th>Port</th><th>State</th><th></th></tr>
{{range .Tenants}}<tr><td>{{.Name}}</td><td>{{.ID}}</td><td>{{.Port}}</td><td>{{.State}}</td><td><a href="/qr/{{.ID}}">QR</a></td></tr>
{{end}}</table>
{{template "foot" .}}{{end}}
`))

type qrPage struct {
	Title           string
	Refresh         int
	Salon           string
	SalonID         string
	Port            int
	Phone           string
	ConnectedAt     string
	Hours           int
	ConnectionCount int
	LastError       string
	Links           pageLinks
}

func (s *ControlServer) handleQRPage(w http.ResponseWriter, r *http.Request, t Tenant, links pageLinks) {
	cfg := t.Session.Tenant()
	snap := t.Session.Snapshot()
	st := t.Session.Status(r.Context())

	page := qrPage{
		Salon:   cfg.Name,
		SalonID: cfg.ID,
		Port:    cfg.Port,
		Links:   links,
	}

	var name string
	switch {
	case snap.Ready():
		name = "connected"
		page.Title = cfg.Name + " - Already Connected"
		switch {
		case st.PhoneNumber != nil:
			page.Phone = *st.PhoneNumber
		case snap.Account != nil:
			page.Phone = snap.Account.Phone
		}
		if st.ConnectedAt != nil {
			page.ConnectedAt = st.ConnectedAt.UTC().Format(time.RFC1123)
			page.Hours = int(s.Now().Sub(*st.ConnectedAt).Hours())
		}
		page.ConnectionCount = st.ConnectionCount
	case snap.QRPending():
		name = "qr"
		page.Title = cfg.Name + " - WhatsApp QR Code"
		page.Refresh = 30
	default:
		name = "waiting"
		page.Title = cfg.Name + " - Initializing"
		page.Refresh = 5
		page.LastError = snap.LastError
	}

	s.renderPage(w, name, page)
}

type indexPage struct {
	Title   string
	Refresh int
	Tenants []indexTenant
}

type indexTenant struct {
	ID    string
	Name  string
	Port  int
	State string
}

func (s *ControlServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page := indexPage{Title: s.Service}
	for _, t := range s.all() {
		cfg := t.Session.Tenant()
		page.Tenants = append(page.Tenants, indexTenant{
			ID:    cfg.ID,
			Name:  cfg.Name,
			Port:  cfg.Port,
			State: string(t.Session.Snapshot().State),
		})
	}
	s.renderPage(w, "index", page)
}

func (s *ControlServer) renderPage(w http.ResponseWriter, name string, data any) {
	buf := new(bytes.Buffer)
	if err := pages.ExecuteTemplate(buf, name, data); err != nil {
		s.Logger.Error("failed to render page", zap.String("page", name), logging.Component("server"), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
