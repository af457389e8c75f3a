package bot

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/gosentinel/internal/config"
	"github.com/nextlevelbuilder/gosentinel/internal/confstore"
	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

func messageEnvelope() *onebot.Envelope {
	return &onebot.Envelope{
		PostType: "message",
		Message: &onebot.MessageEvent{
			PostType:    "message",
			MessageType: "group",
			GroupID:     70001,
			UserID:      111,
			Message:     onebot.Message{onebot.Text("hi")},
		},
	}
}

func noticeEnvelope() *onebot.Envelope {
	return &onebot.Envelope{
		PostType: "notice",
		Notice: &onebot.NoticeEvent{
			PostType:   "notice",
			NoticeType: "group_recall",
			GroupID:    70001,
			MessageID:  1001,
		},
	}
}

func recordHandler(order *[]string, name string, stop bool) MessageHandler {
	return MessageHandler{Name: name, Fn: func(context.Context, *onebot.MessageEvent) bool {
		*order = append(*order, name)
		return stop
	}}
}

func TestMessageHandlersRunInPriorityOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	late := recordHandler(&order, "late", false)
	late.Priority = 10
	first := recordHandler(&order, "first", false)
	first.Priority = 1
	mid := recordHandler(&order, "mid", false)
	mid.Priority = 2

	d.OnMessage(late)
	d.OnMessage(first)
	d.OnMessage(mid)

	d.Handle(context.Background(), messageEnvelope())

	want := []string{"first", "mid", "late"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestBlockingHandlerStopsPropagation(t *testing.T) {
	d := NewDispatcher()
	var order []string

	first := recordHandler(&order, "first", true)
	first.Priority = 1
	late := recordHandler(&order, "late", false)
	late.Priority = 10

	d.OnMessage(first)
	d.OnMessage(late)

	d.Handle(context.Background(), messageEnvelope())

	if len(order) != 1 || order[0] != "first" {
		t.Fatalf("order = %v, want [first]", order)
	}
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	d := NewDispatcher()
	var order []string

	bad := MessageHandler{Name: "bad", Priority: 1, Fn: func(context.Context, *onebot.MessageEvent) bool {
		panic("boom")
	}}
	good := recordHandler(&order, "good", false)
	good.Priority = 2

	d.OnMessage(bad)
	d.OnMessage(good)

	d.Handle(context.Background(), messageEnvelope())

	if len(order) != 1 || order[0] != "good" {
		t.Fatalf("order = %v, want [good]", order)
	}
}

func TestPrepareRunsBeforeHandlers(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Prepare = func(context.Context, *onebot.MessageEvent) {
		order = append(order, "prepare")
	}
	d.OnMessage(recordHandler(&order, "handler", false))

	d.Handle(context.Background(), messageEnvelope())

	if len(order) != 2 || order[0] != "prepare" || order[1] != "handler" {
		t.Fatalf("order = %v", order)
	}
}

func TestNoticeDispatch(t *testing.T) {
	d := NewDispatcher()
	var messages, notices int
	d.OnMessage(MessageHandler{Name: "msg", Fn: func(context.Context, *onebot.MessageEvent) bool {
		messages++
		return false
	}})
	d.OnNotice(NoticeHandler{Name: "panic-first", Fn: func(context.Context, *onebot.NoticeEvent) {
		panic("boom")
	}})
	d.OnNotice(NoticeHandler{Name: "notice", Fn: func(context.Context, *onebot.NoticeEvent) {
		notices++
	}})

	d.Handle(context.Background(), noticeEnvelope())

	if messages != 0 || notices != 1 {
		t.Fatalf("messages = %d, notices = %d", messages, notices)
	}
}

func TestRunDeliversAndStops(t *testing.T) {
	d := NewDispatcher()
	got := make(chan string, 1)
	d.OnMessage(MessageHandler{Name: "probe", Fn: func(_ context.Context, ev *onebot.MessageEvent) bool {
		got <- ev.Message.PlainText()
		return false
	}})

	events := make(chan *onebot.Envelope, 1)
	events <- messageEnvelope()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, events) }()

	select {
	case text := <-got:
		if text != "hi" {
			t.Fatalf("text = %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRunStopsWhenStreamCloses(t *testing.T) {
	d := NewDispatcher()
	events := make(chan *onebot.Envelope)
	close(events)
	if err := d.Run(context.Background(), events); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestNewWiresHandlers(t *testing.T) {
	cfg := config.Default()
	cfg.Superusers = config.Int64List{111}
	cfg.OneBot.ListenAddr = "127.0.0.1:0"
	store := confstore.Open(t.TempDir() + "/config.json")

	b := New(cfg, store)

	if b.server == nil {
		t.Fatal("listen_addr configured but no reverse listener built")
	}
	if got := len(b.dispatcher.message); got != 3 {
		t.Fatalf("message handlers = %d, want 3", got)
	}
	if got := len(b.dispatcher.notice); got != 1 {
		t.Fatalf("notice handlers = %d, want 1", got)
	}
	if b.dispatcher.Prepare == nil {
		t.Fatal("reply resolution hook missing")
	}

	cfg.OneBot.ListenAddr = ""
	if b2 := New(cfg, store); b2.server != nil {
		t.Fatal("reverse listener built without listen_addr")
	}
}
