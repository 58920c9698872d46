package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/rsclarke/salonrelay/internal/pairing"
)

// ChatID renders a JID the way chat ids appear on the wire to the backend:
// personal chats use the "<number>@c.us" form, everything else is unchanged.
func ChatID(jid types.JID) string {
	if jid.IsEmpty() {
		return ""
	}
	jid = jid.ToNonAD()
	if jid.Server == types.DefaultUserServer {
		return jid.User + "@" + types.LegacyUserServer
	}
	return jid.String()
}

// ParseChatID accepts a bare number, a "<number>@c.us" id or any full JID.
func ParseChatID(id string) (types.JID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.JID{}, fmt.Errorf("empty chat id")
	}
	if !strings.Contains(id, "@") {
		return types.NewJID(strings.TrimPrefix(id, "+"), types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(id)
	if err != nil {
		return types.JID{}, fmt.Errorf("parse chat id %q: %w", id, err)
	}
	if jid.Server == types.LegacyUserServer {
		jid.Server = types.DefaultUserServer
	}
	return jid, nil
}

// MessageText extracts the plain text of a message, or "".
func MessageText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if text := m.GetConversation(); text != "" {
		return text
	}
	if text := m.GetExtendedTextMessage().GetText(); text != "" {
		return text
	}
	if caption := m.GetImageMessage().GetCaption(); caption != "" {
		return caption
	}
	return m.GetVideoMessage().GetCaption()
}

// ConvertMessage maps a whatsmeow message event to an inbound message
// addressed to own.
func ConvertMessage(evt *events.Message, own types.JID) pairing.InboundMessage {
	info := evt.Info
	msg := pairing.InboundMessage{
		ID:          info.ID,
		From:        ChatID(info.Chat),
		To:          ChatID(own),
		Body:        MessageText(evt.Message),
		ContactName: info.PushName,
		Timestamp:   info.Timestamp,
		IsGroup:     info.IsGroup || info.Chat.Server == types.GroupServer,
		IsBroadcast: info.Chat.Server == types.BroadcastServer,
	}
	if msg.IsGroup {
		msg.Author = ChatID(info.Sender)
	}
	return msg
}

// AccountFor describes the account a device is linked to, or nil when the
// device has not been paired.
func AccountFor(dev *store.Device) *pairing.Account {
	if dev == nil || dev.ID == nil {
		return nil
	}
	return &pairing.Account{
		JID:      dev.ID.String(),
		Phone:    dev.ID.User,
		PushName: dev.PushName,
		Platform: dev.Platform,
	}
}
