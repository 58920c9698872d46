// Package relay forwards inbound chat messages to the booking backend and
// sends its reply back into the chat.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/logging"
	"github.com/rsclarke/salonrelay/internal/models"
	"github.com/rsclarke/salonrelay/internal/pairing"
	"github.com/rsclarke/salonrelay/internal/tenant"
)

// FallbackMessage is sent to the customer whenever the backend cannot answer.
const FallbackMessage = "😔 Sorry, we're experiencing technical difficulties. Please try again later or contact us directly."

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 10 * time.Second

// Outcome is the journaled result of relaying one message.
type Outcome string

// Relay outcomes.
const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeReplied    Outcome = "replied"
	OutcomeFallback   Outcome = "fallback"
	OutcomeSendFailed Outcome = "send_failed"
	OutcomeDropped    Outcome = "dropped"
)

var errEmptyReply = errors.New("backend returned an empty reply")

// Payload is the JSON body posted to the backend webhook.
type Payload struct {
	Body        string `json:"body"`
	From        string `json:"from"`
	To          string `json:"to"`
	Timestamp   int64  `json:"timestamp"`
	ContactName string `json:"contactName"`
	IsGroupMsg  bool   `json:"isGroupMsg"`
	ID          string `json:"id"`
	Author      string `json:"author"`
}

// UnknownContact is sent as contactName when the sender has no push name.
const UnknownContact = "Unknown"


// NewPayload builds the webhook body for msg.
func NewPayload(msg pairing.InboundMessage) Payload {
	var ts int64
	if !msg.Timestamp.IsZero() {
		ts = msg.Timestamp.Unix()
	}
	name := msg.ContactName
	if name == "" {
		name = UnknownContact
	}
	author := msg.Author
	if author == "" {
		author = msg.From
	}
	return Payload{
		Body:        msg.Body,
		From:        msg.From,
		To:          msg.To,
		Timestamp:   ts,
		ContactName: name,
		IsGroupMsg:  msg.IsGroup,
		ID:          msg.ID,
		Author:      author,
	}
}

type webhookResponse struct {
	Reply string `json:"reply"`
}

// Journal records relay outcomes.
type Journal interface {
	Record(ctx context.Context, e models.RelayEntry) error
}

// Config configures a Relay.
type Config struct {
	BackendURL string
	Timeout    time.Duration
	Logger     *zap.Logger
	// Journal is optional.
	Journal Journal
	// HTTPClient may be shared between relays. Nil creates one.
	HTTPClient *resty.Client
	Now        func() time.Time
}

// Result describes how one message was handled.
type Result struct {
	Outcome    Outcome
	HTTPStatus int
	Reply      string
	RequestID  string
	Err        error
}

// Relay posts inbound messages to the backend webhook.
type Relay struct {
	backendURL string
	timeout    time.Duration
	http       *resty.Client
	journal    Journal
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Relay.
func New(cfg Config) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Relay{
		backendURL: strings.TrimRight(cfg.BackendURL, "/"),
		timeout:    timeout,
		http:       httpClient,
		journal:    cfg.Journal,
		logger:     logger.Named("relay"),
		now:        now,
	}
}

// NewHTTPClient returns a resty client suited to webhook calls. Retries are
// disabled; each message gets exactly one backend call.
func NewHTTPClient() *resty.Client {
	return resty.New().
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// Relay implements pairing.Relayer.
func (r *Relay) Relay(ctx context.Context, t tenant.Config, msg pairing.InboundMessage, reply pairing.Sender) {
	r.Process(ctx, t, msg, reply)
}

// Process relays msg and reports what happened. Errors are never returned to
// the caller; they are logged, journaled and answered with FallbackMessage.
func (r *Relay) Process(ctx context.Context, t tenant.Config, msg pairing.InboundMessage, reply pairing.Sender) Result {
	start := r.now()
	logger := r.logger.With(logging.Tenant(t.ID), logging.MessageID(msg.ID), logging.Chat(msg.From))

	if skip(msg) {
		logger.Debug("skipping group or broadcast message")
		res := Result{Outcome: OutcomeSkipped}
		r.record(ctx, t, msg, res, start)
		return res
	}

	requestID := uuid.NewString()
	logger = logger.With(logging.RequestID(requestID))
	logger.Info("relaying message", zap.Int("body_len", len(msg.Body)))

	text, status, err := r.call(ctx, t, msg, requestID)
	res := Result{HTTPStatus: status, RequestID: requestID}
	if err == nil {
		res.Reply = text
		_, sendErr := reply.Send(ctx, msg.From, text)
		if sendErr == nil {
			res.Outcome = OutcomeReplied
			logger.Info("reply sent", logging.Status(status))
			r.record(ctx, t, msg, res, start)
			return res
		}
		err = fmt.Errorf("send reply: %w", sendErr)
	}

	res.Err = err
	logger.Warn("backend relay failed, sending fallback", logging.Status(status), zap.Error(err))
	if _, sendErr := reply.Send(ctx, msg.From, FallbackMessage); sendErr != nil {
		res.Outcome = OutcomeSendFailed
		res.Err = fmt.Errorf("%w; send fallback: %w", err, sendErr)
		logger.Error("fallback message failed", zap.Error(sendErr))
	} else {
		res.Outcome = OutcomeFallback
	}
	r.record(ctx, t, msg, res, start)
	return res
}

func skip(msg pairing.InboundMessage) bool {
	return msg.IsGroup || msg.IsBroadcast ||
		strings.HasSuffix(msg.From, "@g.us") ||
		strings.HasSuffix(msg.From, "@broadcast")
}

func (r *Relay) call(ctx context.Context, t tenant.Config, msg pairing.InboundMessage, requestID string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	url := t.WebhookURL(r.backendURL)
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetHeader("X-Salon-ID", t.ID).
		SetBody(NewPayload(msg)).
		Post(url)
	if err != nil {
		return "", 0, fmt.Errorf("post %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return "", resp.StatusCode(), fmt.Errorf("backend returned %s", resp.Status())
	}

	var out webhookResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", resp.StatusCode(), fmt.Errorf("decode backend response: %w", err)
	}
	text := strings.TrimSpace(out.Reply)
	if text == "" {
		return "", resp.StatusCode(), errEmptyReply
	}
	return text, resp.StatusCode(), nil
}

// RecordDrop implements pairing.DropRecorder.
func (r *Relay) RecordDrop(ctx context.Context, t tenant.Config, msg pairing.InboundMessage) {
	r.record(ctx, t, msg, Result{Outcome: OutcomeDropped, Err: errors.New("relay queue full")}, r.now())
}

func (r *Relay) record(ctx context.Context, t tenant.Config, msg pairing.InboundMessage, res Result, start time.Time) {
	if r.journal == nil {
		return
	}
	end := r.now()
	entry := models.RelayEntry{
		TenantID:   t.ID,
		MessageID:  msg.ID,
		Sender:     msg.From,
		Outcome:    string(res.Outcome),
		HTTPStatus: res.HTTPStatus,
		OccurredAt: end.Unix(),
		DurationMS: end.Sub(start).Milliseconds(),
	}
	if res.Err != nil {
		errText := res.Err.Error()
		entry.Error = &errText
	}
	if err := r.journal.Record(ctx, entry); err != nil {
		r.logger.Warn("failed to journal relay outcome",
			logging.Tenant(t.ID),
			logging.Outcome(string(res.Outcome)),
			zap.Error(err))
	}
}
