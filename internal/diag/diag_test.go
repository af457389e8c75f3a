package diag

import (
	"context"
	"strings"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

type fakeDoer struct {
	mu    sync.Mutex
	calls []string
	sent  []string
}

func (f *fakeDoer) Do(_ context.Context, action string, params map[string]interface{}) (jsoniter.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	if action == "send_group_msg" || action == "send_private_msg" {
		if s, ok := params["message"].(string); ok {
			f.sent = append(f.sent, s)
		}
	}
	return jsoniter.RawMessage(`{"message_id":1}`), nil
}

func (f *fakeDoer) lastSent(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func groupEvent(msg onebot.Message) *onebot.MessageEvent {
	return &onebot.MessageEvent{
		PostType:    "message",
		MessageType: "group",
		SelfID:      10000,
		GroupID:     70001,
		UserID:      111,
		Message:     msg,
	}
}

func TestHandleSendBeforeAnySend(t *testing.T) {
	doer := &fakeDoer{}
	api := onebot.NewAPI(doer)
	c := NewCommands(api)

	c.HandleSend(context.Background(), groupEvent(nil), nil)

	if got := doer.lastSent(t); got != "尚未记录到任何发送" {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleSendSnapshotsLastSend(t *testing.T) {
	doer := &fakeDoer{}
	api := onebot.NewAPI(doer)
	ctx := context.Background()

	if _, err := api.SendGroupMsg(ctx, 70001, "hi"); err != nil {
		t.Fatal(err)
	}

	c := NewCommands(api)
	c.HandleSend(ctx, groupEvent(nil), nil)

	got := doer.lastSent(t)
	for _, want := range []string{
		"动作: send_group_msg",
		"目标: group_id=70001",
		"状态: 成功",
		`内容: "hi"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("reply %q missing %q", got, want)
		}
	}
}

func TestHandleEcho(t *testing.T) {
	doer := &fakeDoer{}
	c := NewCommands(onebot.NewAPI(doer))

	msg := onebot.Message{
		onebot.Text("look"),
		{Type: "image", Data: map[string]interface{}{"file": "a.png"}},
		onebot.Text("again"),
	}
	c.HandleEcho(context.Background(), groupEvent(msg), []string{"下载", "奥本海默"})

	got := doer.lastSent(t)
	if !strings.Contains(got, "参数: 下载 奥本海默") {
		t.Fatalf("reply %q missing args", got)
	}
	if !strings.Contains(got, "消息段: text, image") {
		t.Fatalf("reply %q missing segment kinds", got)
	}
}

func TestHandleEchoWithoutArgs(t *testing.T) {
	doer := &fakeDoer{}
	c := NewCommands(onebot.NewAPI(doer))

	c.HandleEcho(context.Background(), groupEvent(nil), nil)

	got := doer.lastSent(t)
	if !strings.Contains(got, "参数: 无") || !strings.Contains(got, "消息段: 无") {
		t.Fatalf("reply = %q", got)
	}
}
