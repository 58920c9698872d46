// Package whatsapp implements the pairing client on top of whatsmeow.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/rsclarke/salonrelay/internal/db"
	"github.com/rsclarke/salonrelay/internal/logging"
	"github.com/rsclarke/salonrelay/internal/pairing"
	"github.com/rsclarke/salonrelay/internal/tenant"
)

const (
	eventBuffer  = 64
	emitTimeout  = 5 * time.Second
	sqlDialect   = "sqlite3"
	qrEventCode  = "code"
	qrEventError = "error"
)

// OpenStore prepares the whatsmeow device tables in database.
func OpenStore(ctx context.Context, database *sql.DB, logger *zap.Logger) (*sqlstore.Container, error) {
	container := sqlstore.NewWithDB(database, sqlDialect, NewLogger(logger.Named("store")))
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrade device store: %w", err)
	}
	return container, nil
}

// Client is a pairing.Client backed by one whatsmeow device.
type Client struct {
	tenant    tenant.Config
	db        *sql.DB
	container *sqlstore.Container
	logger    *zap.Logger
	events    chan pairing.Event

	mu        sync.Mutex
	cli       *whatsmeow.Client
	handlerID uint32
	cancelQR  context.CancelFunc
}

// NewClient creates a client for a tenant. database must hold the tenant's
// relay tables and container its device store.
func NewClient(t tenant.Config, database *sql.DB, container *sqlstore.Container, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("whatsapp").With(logging.Tenant(t.ID))
	return &Client{
		tenant:    t,
		db:        database,
		container: container,
		logger:    logger,
		events:    make(chan pairing.Event, eventBuffer),
	}
}

// Events implements pairing.Client.
func (c *Client) Events() <-chan pairing.Event { return c.events }

// Start loads the tenant's device and connects. Unpaired devices stream QR
// challenges on the event channel until scanned.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cli != nil && c.cli.IsConnected() {
		return nil
	}

	device, err := c.loadDevice(ctx)
	if err != nil {
		return err
	}

	cli := whatsmeow.NewClient(device, NewLogger(c.logger.Named("client")))
	cli.EnableAutoReconnect = false
	handlerID := cli.AddEventHandler(c.handleEvent)

	var cancelQR context.CancelFunc
	if cli.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(ctx)
		qrChan, err := cli.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			cli.RemoveEventHandler(handlerID)
			return fmt.Errorf("get qr channel: %w", err)
		}
		cancelQR = cancel
		go c.forwardQR(qrChan)
	}

	if err := cli.Connect(); err != nil {
		if cancelQR != nil {
			cancelQR()
		}
		cli.RemoveEventHandler(handlerID)
		return fmt.Errorf("connect: %w", err)
	}

	c.cli = cli
	c.handlerID = handlerID
	c.cancelQR = cancelQR
	c.logger.Info("client started", zap.Bool("paired", cli.Store.ID != nil))
	return nil
}

func (c *Client) loadDevice(ctx context.Context) (*store.Device, error) {
	link, err := db.GetTenantDevice(c.db, c.tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("load tenant device: %w", err)
	}
	if link != nil {
		jid, err := types.ParseJID(link.JID)
		if err != nil {
			return nil, fmt.Errorf("parse stored jid: %w", err)
		}
		dev, err := c.container.GetDevice(ctx, jid)
		if err != nil {
			return nil, fmt.Errorf("get device: %w", err)
		}
		if dev != nil {
			return dev, nil
		}
		c.logger.Warn("linked device missing from store, pairing again", zap.String("jid", link.JID))
		if err := db.DeleteTenantDevice(c.db, c.tenant.ID); err != nil {
			c.logger.Warn("failed to clear device link", zap.Error(err))
		}
	}
	dev, err := c.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return dev, nil
}

func (c *Client) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case qrEventCode:
			c.emit(pairing.Event{Kind: pairing.EventQR, QR: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			c.logger.Info("qr code scanned")
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(pairing.Event{Kind: pairing.EventAuthFailure, Reason: "qr code was not scanned in time"})
		case qrEventError:
			reason := "qr pairing failed"
			if item.Error != nil {
				reason = item.Error.Error()
			}
			c.emit(pairing.Event{Kind: pairing.EventAuthFailure, Reason: reason})
		default:
			c.emit(pairing.Event{Kind: pairing.EventAuthFailure, Reason: "qr pairing: " + item.Event})
		}
	}
}

func (c *Client) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		c.logger.Info("device paired", zap.String("jid", e.ID.String()), zap.String("platform", e.Platform))
		if err := db.SaveTenantDevice(c.db, c.tenant.ID, e.ID.String()); err != nil {
			c.logger.Warn("failed to record device link", zap.Error(err))
		}
	case *events.Connected:
		c.emit(pairing.Event{Kind: pairing.EventReady, Account: c.account()})
	case *events.Disconnected:
		c.emit(pairing.Event{Kind: pairing.EventDisconnected, Reason: "connection lost"})
	case *events.StreamReplaced:
		c.emit(pairing.Event{Kind: pairing.EventDisconnected, Reason: "stream replaced by another client"})
	case *events.KeepAliveTimeout:
		c.logger.Warn("keepalive timeout", zap.Int("errors", e.ErrorCount))
	case *events.LoggedOut:
		if err := db.DeleteTenantDevice(c.db, c.tenant.ID); err != nil {
			c.logger.Warn("failed to clear device link", zap.Error(err))
		}
		c.emit(pairing.Event{Kind: pairing.EventLoggedOut, Reason: e.Reason.String()})
	case *events.ConnectFailure:
		c.emit(pairing.Event{Kind: pairing.EventAuthFailure, Reason: fmt.Sprintf("connect failure: %s %s", e.Reason, e.Message)})
	case *events.TemporaryBan:
		c.emit(pairing.Event{Kind: pairing.EventAuthFailure, Reason: e.String()})
	case *events.Message:
		if e.Info.IsFromMe {
			return
		}
		msg := ConvertMessage(e, c.ownJID())
		if msg.Body == "" {
			c.logger.Debug("ignoring message without text", logging.MessageID(msg.ID), logging.Chat(msg.From))
			return
		}
		c.emit(pairing.Event{Kind: pairing.EventMessage, Message: &msg})
	}
}

func (c *Client) emit(ev pairing.Event) {
	timer := time.NewTimer(emitTimeout)
	defer timer.Stop()
	select {
	case c.events <- ev:
	case <-timer.C:
		c.logger.Error("event channel full, dropping event", zap.String("event", string(ev.Kind)))
	}
}

func (c *Client) current() *whatsmeow.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cli
}

func (c *Client) account() *pairing.Account {
	cli := c.current()
	if cli == nil {
		return nil
	}
	return AccountFor(cli.Store)
}

func (c *Client) ownJID() types.JID {
	cli := c.current()
	if cli == nil || cli.Store.ID == nil {
		return types.EmptyJID
	}
	return *cli.Store.ID
}

// Send implements pairing.Client.
func (c *Client) Send(ctx context.Context, to, text string) (string, error) {
	cli := c.current()
	if cli == nil || !cli.IsConnected() {
		return "", pairing.ErrNotReady
	}
	jid, err := ParseChatID(to)
	if err != nil {
		return "", err
	}
	resp, err := cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// Logout unlinks the device and deletes its credentials.
func (c *Client) Logout(ctx context.Context) error {
	cli := c.current()

	var err error
	switch {
	case cli != nil && cli.Store.ID != nil && cli.IsLoggedIn():
		if err = cli.Logout(ctx); err != nil {
			c.logger.Warn("logout request failed, deleting local credentials", zap.Error(err))
			cli.Disconnect()
			err = cli.Store.Delete(ctx)
		}
	case cli != nil && cli.Store.ID != nil:
		cli.Disconnect()
		err = cli.Store.Delete(ctx)
	default:
		err = c.deleteStoredDevice(ctx)
	}
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}

	if err := db.DeleteTenantDevice(c.db, c.tenant.ID); err != nil {
		return fmt.Errorf("clear device link: %w", err)
	}
	c.Stop()
	c.logger.Info("credentials discarded")
	return nil
}

func (c *Client) deleteStoredDevice(ctx context.Context) error {
	dev, err := c.loadDevice(ctx)
	if err != nil {
		return err
	}
	if dev.ID == nil {
		return nil
	}
	return dev.Delete(ctx)
}

// Stop disconnects the current connection, if any. Start may be called again.
func (c *Client) Stop() {
	c.mu.Lock()
	cli, handlerID, cancelQR := c.cli, c.handlerID, c.cancelQR
	c.cli, c.handlerID, c.cancelQR = nil, 0, nil
	c.mu.Unlock()

	if cancelQR != nil {
		cancelQR()
	}
	if cli != nil {
		cli.RemoveEventHandler(handlerID)
		cli.Disconnect()
	}
}
