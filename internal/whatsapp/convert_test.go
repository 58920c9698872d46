package whatsapp

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/proto"
)

func TestChatID(t *testing.T) {
	tests := []struct {
		name string
		jid  types.JID
		want string
	}{
		{"user", types.NewJID("15551234567", types.DefaultUserServer), "15551234567@c.us"},
		{"user device", types.NewADJID("15551234567", 0, 3), "15551234567@c.us"},
		{"group", types.NewJID("120363000000000000", types.GroupServer), "120363000000000000@g.us"},
		{"broadcast", types.StatusBroadcastJID, "status@broadcast"},
		{"empty", types.EmptyJID, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChatID(tt.jid); got != tt.want {
				t.Errorf("ChatID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseChatID(t *testing.T) {
	tests := []struct {
		in      string
		want    types.JID
		wantErr bool
	}{
		{in: "15551234567@c.us", want: types.NewJID("15551234567", types.DefaultUserServer)},
		{in: "15551234567", want: types.NewJID("15551234567", types.DefaultUserServer)},
		{in: "+15551234567", want: types.NewJID("15551234567", types.DefaultUserServer)},
		{in: "15551234567@s.whatsapp.net", want: types.NewJID("15551234567", types.DefaultUserServer)},
		{in: "120363000000000000@g.us", want: types.NewJID("120363000000000000", types.GroupServer)},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChatID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseChatID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseChatID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("link https://x")}}, "link https://x"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("my nails")}}, "my nails"},
		{"no text", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MessageText(tt.msg); got != tt.want {
				t.Errorf("MessageText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertMessage(t *testing.T) {
	own := types.NewJID("15551234567", types.DefaultUserServer)
	ts := time.Unix(1700000000, 0)

	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("15557654321", types.DefaultUserServer),
				Sender: types.NewJID("15557654321", types.DefaultUserServer),
			},
			ID:        "3EB0ABCDEF",
			PushName:  "Jane",
			Timestamp: ts,
		},
		Message: &waE2E.Message{Conversation: proto.String("Book me in")},
	}

	got := ConvertMessage(evt, own)
	if got.ID != "3EB0ABCDEF" || got.From != "15557654321@c.us" || got.To != "15551234567@c.us" {
		t.Errorf("ids = %+v", got)
	}
	if got.Body != "Book me in" || got.ContactName != "Jane" || !got.Timestamp.Equal(ts) {
		t.Errorf("content = %+v", got)
	}
	if got.IsGroup || got.IsBroadcast || got.Author != "" {
		t.Errorf("flags = %+v", got)
	}
}

func TestConvertGroupAndBroadcast(t *testing.T) {
	own := types.NewJID("15551234567", types.DefaultUserServer)

	group := &events.Message{Info: types.MessageInfo{MessageSource: types.MessageSource{
		Chat:    types.NewJID("120363000000000000", types.GroupServer),
		Sender:  types.NewJID("15557654321", types.DefaultUserServer),
		IsGroup: true,
	}}}
	got := ConvertMessage(group, own)
	if !got.IsGroup || got.Author != "15557654321@c.us" {
		t.Errorf("group message = %+v", got)
	}

	status := &events.Message{Info: types.MessageInfo{MessageSource: types.MessageSource{
		Chat:   types.StatusBroadcastJID,
		Sender: types.NewJID("15557654321", types.DefaultUserServer),
	}}}
	if got := ConvertMessage(status, own); !got.IsBroadcast {
		t.Errorf("status message = %+v", got)
	}
}

func TestAccountFor(t *testing.T) {
	if AccountFor(nil) != nil {
		t.Error("nil device should have no account")
	}
	if AccountFor(&store.Device{}) != nil {
		t.Error("unpaired device should have no account")
	}

	jid := types.NewADJID("15551234567", 0, 12)
	acc := AccountFor(&store.Device{ID: &jid, PushName: "Downtown", Platform: "android"})
	if acc == nil {
		t.Fatal("expected account")
	}
	if acc.Phone != "15551234567" || acc.PushName != "Downtown" || acc.Platform != "android" {
		t.Errorf("account = %+v", acc)
	}
}

func TestNewLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLogger(zap.New(core))

	l.Infof("connected to %s", "server")
	l.Sub("Socket").Warnf("ping %d failed", 3)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "connected to server" {
		t.Errorf("message = %q", entries[0].Message)
	}
	if entries[1].LoggerName != "Socket" || entries[1].Level != zap.WarnLevel {
		t.Errorf("sub entry = %+v", entries[1])
	}
}
