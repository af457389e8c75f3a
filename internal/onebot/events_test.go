package onebot

import (
	"context"
	"errors"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

func TestDecodeEvent_GroupMessage(t *testing.T) {
	env, err := DecodeEvent([]byte(`{
		"time": 1700000000, "self_id": 10000, "post_type": "message",
		"message_type": "group", "sub_type": "normal", "message_id": 555,
		"group_id": 1111, "user_id": 2222,
		"sender": {"user_id": 2222, "nickname": "nick", "card": "卡片"},
		"raw_message": "hello",
		"message": [{"type": "text", "data": {"text": "hello"}}]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	ev := env.Message
	if ev == nil {
		t.Fatal("message event not decoded")
	}
	if !ev.IsGroup() || ev.GroupID != 1111 || ev.MessageID != 555 {
		t.Errorf("event = %+v", ev)
	}
	if ev.SenderName() != "卡片" {
		t.Errorf("SenderName = %q, want card", ev.SenderName())
	}
	if ev.Message.PlainText() != "hello" {
		t.Errorf("PlainText = %q", ev.Message.PlainText())
	}
	if env.SelfID() != 10000 {
		t.Errorf("SelfID = %d", env.SelfID())
	}
}

func TestDecodeEvent_MessageAsCQString(t *testing.T) {
	env, err := DecodeEvent([]byte(`{
		"post_type": "message", "message_type": "private",
		"message_id": 1, "user_id": 2,
		"message": "hi [CQ:image,file=x.png]"
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(env.Message.Message) != 2 || env.Message.Message[1].Type != "image" {
		t.Errorf("message = %#v", env.Message.Message)
	}
}

func TestDecodeEvent_RecallNotice(t *testing.T) {
	env, err := DecodeEvent([]byte(`{
		"time": 1, "self_id": 10000, "post_type": "notice",
		"notice_type": "group_recall", "group_id": 1111,
		"user_id": 2222, "operator_id": 3333, "message_id": 555
	}`))
	if err != nil {
		t.Fatal(err)
	}
	ev := env.Notice
	if ev == nil || !ev.IsGroupRecall() {
		t.Fatalf("notice = %+v", ev)
	}
	if ev.OperatorID != 3333 || ev.MessageID != 555 {
		t.Errorf("notice = %+v", ev)
	}
}

func TestDecodeEvent_Meta(t *testing.T) {
	env, err := DecodeEvent([]byte(`{
		"post_type": "meta_event", "meta_event_type": "lifecycle",
		"sub_type": "connect", "self_id": 10000
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Meta == nil || env.Meta.SubType != "connect" {
		t.Errorf("meta = %+v", env.Meta)
	}
}

// scriptedDoer answers API actions from a table and records calls.
type scriptedDoer struct {
	calls   []string
	params  []map[string]interface{}
	results map[string]interface{}
	errs    map[string]error
}

func (d *scriptedDoer) Do(ctx context.Context, action string, params map[string]interface{}) (jsoniter.RawMessage, error) {
	d.calls = append(d.calls, action)
	d.params = append(d.params, params)
	if err, ok := d.errs[action]; ok {
		return nil, err
	}
	res, ok := d.results[action]
	if !ok {
		return jsoniter.RawMessage(`{}`), nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func messageEventWithReply() *MessageEvent {
	return &MessageEvent{
		PostType:    "message",
		MessageType: "group",
		MessageID:   1003,
		GroupID:     1111,
		UserID:      2222,
		Message: Message{
			{Type: "reply", Data: map[string]interface{}{"id": "1001"}},
			Text("what about this"),
		},
	}
}

func TestAttachReply_Resolves(t *testing.T) {
	doer := &scriptedDoer{results: map[string]interface{}{
		"get_msg": map[string]interface{}{
			"message_id": 1001,
			"sender":     map[string]interface{}{"user_id": float64(777), "nickname": "alice"},
			"message":    "original text",
		},
	}}
	api := NewAPI(doer)
	ev := messageEventWithReply()

	AttachReply(context.Background(), api, ev)

	if ev.Reply == nil {
		t.Fatal("reply not attached")
	}
	if ev.Reply.MessageID != 1001 || ev.Reply.SenderID != 777 || ev.Reply.SenderName != "alice" {
		t.Errorf("reply = %+v", ev.Reply)
	}
	if ev.Reply.Message.PlainText() != "original text" {
		t.Errorf("reply message = %q", ev.Reply.Message.PlainText())
	}
	// The reply segment is consumed.
	if len(ev.Message) != 1 || ev.Message[0].Type != "text" {
		t.Errorf("message after attach = %#v", ev.Message)
	}
}

func TestAttachReply_FailureKeepsSegment(t *testing.T) {
	doer := &scriptedDoer{errs: map[string]error{"get_msg": errors.New("gone")}}
	api := NewAPI(doer)
	ev := messageEventWithReply()

	AttachReply(context.Background(), api, ev)

	if ev.Reply != nil {
		t.Error("reply should not attach on failure")
	}
	if len(ev.Message) != 2 || ev.Message[0].Type != "reply" {
		t.Errorf("reply segment should survive: %#v", ev.Message)
	}
}

func TestAttachReply_NoReplySegment(t *testing.T) {
	doer := &scriptedDoer{}
	api := NewAPI(doer)
	ev := &MessageEvent{Message: Message{Text("plain")}}

	AttachReply(context.Background(), api, ev)

	if len(doer.calls) != 0 {
		t.Errorf("unexpected api calls: %v", doer.calls)
	}
}
