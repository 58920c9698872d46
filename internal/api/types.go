package api

type ConnectionStatus struct {
	SalonID          string  `json:"salon_id"`
	SalonName        string  `json:"salon_name"`
	IsConnected      bool    `json:"is_connected"`
	PhoneNumber      *string `json:"phone_number"`
	ConnectedAt      *string `json:"connected_at"`
	LastSeen         *string `json:"last_seen"`
	ConnectionCount  int     `json:"connection_count"`
	QRGeneratedCount int     `json:"qr_generated_count"`
}

type ClientInfo struct {
	JID      string `json:"jid"`
	Phone    string `json:"phone"`
	PushName string `json:"push_name,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type HealthResponse struct {
	Status           string           `json:"status"`
	Salon            string           `json:"salon"`
	SalonID          string           `json:"salon_id"`
	Port             int              `json:"port"`
	Timestamp        string           `json:"timestamp"`
	State            string           `json:"state"`
	QRPending        bool             `json:"qr_pending"`
	ClientInfo       *ClientInfo      `json:"client_info"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
}

type InfoResponse struct {
	Service          string           `json:"service"`
	SalonID          string           `json:"salon_id"`
	Port             int              `json:"port"`
	Status           string           `json:"status"`
	QRAvailable      bool             `json:"qr_available"`
	BackendURL       string           `json:"backend_url"`
	WebhookPath      string           `json:"webhook_path"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
}

type ConnectionStatusResponse struct {
	ConnectionStatus
	CurrentStatus string `json:"current_status"`
	QRNeeded      bool   `json:"qr_needed"`
	State         string `json:"state"`
	LastError     string `json:"last_error,omitempty"`
}

type SendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type SendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Salon     string `json:"salon"`
}

type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type RelayEntry struct {
	ID         int64   `json:"id"`
	MessageID  string  `json:"message_id"`
	Sender     string  `json:"sender"`
	Outcome    string  `json:"outcome"`
	HTTPStatus int     `json:"http_status"`
	Error      *string `json:"error"`
	OccurredAt string  `json:"occurred_at"`
	DurationMS int64   `json:"duration_ms"`
}

type MessagesResponse struct {
	SalonID  string         `json:"salon_id"`
	Counts   map[string]int `json:"counts"`
	Messages []RelayEntry   `json:"messages"`
}

type SalonHealth struct {
	Ready bool   `json:"ready"`
	HasQR bool   `json:"has_qr"`
	State string `json:"state"`
	Port  int    `json:"port"`
}

type AdminHealthResponse struct {
	Service string                 `json:"service"`
	Status  string                 `json:"status"`
	Salons  map[string]SalonHealth `json:"salons"`
}

type TenantInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	WebhookPath string `json:"webhook_path"`
	State       string `json:"state"`
	Ready       bool   `json:"ready"`
}

type ListTenantsResponse struct {
	Tenants []TenantInfo `json:"tenants"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
