package onebot

import (
	"context"
	"fmt"
	"log/slog"
)

// Sender identifies who sent a message. Card is the per-group display name
// and wins over Nickname when set.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
}

// DisplayName returns the group card if set, else the nickname.
func (s Sender) DisplayName() string {
	if s.Card != "" {
		return s.Card
	}
	return s.Nickname
}

// MessageEvent is an inbound group or private message.
type MessageEvent struct {
	Time        int64   `json:"time"`
	SelfID      int64   `json:"self_id"`
	PostType    string  `json:"post_type"`
	MessageType string  `json:"message_type"`
	SubType     string  `json:"sub_type"`
	MessageID   int64   `json:"message_id"`
	GroupID     int64   `json:"group_id"`
	UserID      int64   `json:"user_id"`
	Sender      Sender  `json:"sender"`
	RawMessage  string  `json:"raw_message"`
	Message     Message `json:"message"`

	// Reply is filled by AttachReply when the message quotes another and
	// the quote resolved; the reply segment is then removed from Message.
	Reply *Reply `json:"-"`
}

// IsGroup reports whether the message came from a group chat.
func (ev *MessageEvent) IsGroup() bool {
	return ev.MessageType == "group"
}

// IsPrivate reports whether the message came from a direct chat.
func (ev *MessageEvent) IsPrivate() bool {
	return ev.MessageType == "private"
}

// SenderName returns the best display name for the sender.
func (ev *MessageEvent) SenderName() string {
	return ev.Sender.DisplayName()
}

// Reply describes the message a MessageEvent quoted.
type Reply struct {
	MessageID  int64
	SenderID   int64
	SenderName string
	Message    Message
}

// NoticeEvent is an inbound notice; the bot cares about recall notices.
type NoticeEvent struct {
	Time       int64  `json:"time"`
	SelfID     int64  `json:"self_id"`
	PostType   string `json:"post_type"`
	NoticeType string `json:"notice_type"`
	GroupID    int64  `json:"group_id"`
	UserID     int64  `json:"user_id"`
	OperatorID int64  `json:"operator_id"`
	MessageID  int64  `json:"message_id"`
}

// IsGroupRecall reports whether this notice is a group message recall.
func (ev *NoticeEvent) IsGroupRecall() bool {
	return ev.NoticeType == "group_recall"
}

// MetaEvent is a lifecycle or heartbeat frame from the gateway.
type MetaEvent struct {
	Time          int64  `json:"time"`
	SelfID        int64  `json:"self_id"`
	PostType      string `json:"post_type"`
	MetaEventType string `json:"meta_event_type"`
	SubType       string `json:"sub_type"`
}

// Envelope is one decoded gateway event. At most one of the typed fields
// is set, matching PostType.
type Envelope struct {
	PostType string
	Message  *MessageEvent
	Notice   *NoticeEvent
	Meta     *MetaEvent
}

// SelfID returns the bot account id the event was delivered for.
func (e *Envelope) SelfID() int64 {
	switch {
	case e.Message != nil:
		return e.Message.SelfID
	case e.Notice != nil:
		return e.Notice.SelfID
	case e.Meta != nil:
		return e.Meta.SelfID
	}
	return 0
}

// DecodeEvent parses a raw gateway frame into an Envelope. Post types the
// bot does not handle decode to an Envelope with only PostType set.
func DecodeEvent(data []byte) (*Envelope, error) {
	var head struct {
		PostType string `json:"post_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	env := &Envelope{PostType: head.PostType}
	switch head.PostType {
	case "message":
		ev := &MessageEvent{}
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, fmt.Errorf("decode message event: %w", err)
		}
		env.Message = ev
	case "notice":
		ev := &NoticeEvent{}
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, fmt.Errorf("decode notice event: %w", err)
		}
		env.Notice = ev
	case "meta_event":
		ev := &MetaEvent{}
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, fmt.Errorf("decode meta event: %w", err)
		}
		env.Meta = ev
	}
	return env, nil
}

// AttachReply resolves the quoted message for events carrying a reply
// segment, the way chat clients show the quote. On success the descriptor
// is attached and the reply segment removed from the message; on failure
// the segment stays so downstream expansion can try again.
func AttachReply(ctx context.Context, api *API, ev *MessageEvent) {
	idx := -1
	for i, seg := range ev.Message {
		if seg.Type == "reply" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	replyID := ReplyTargetID(ev.Message[idx])
	if replyID == 0 {
		return
	}

	data, err := api.GetMsg(ctx, replyID)
	if err != nil {
		slog.Debug("resolve reply failed", "message_id", replyID, "error", err)
		return
	}
	sender, _ := data["sender"].(map[string]interface{})
	content, ok := data["message"]
	if !ok {
		content = data["content"]
	}
	ev.Reply = &Reply{
		MessageID:  replyID,
		SenderID:   ExtractSenderID(sender),
		SenderName: SenderDisplayName(sender),
		Message:    NormalizeContent(content),
	}
	ev.Message = append(ev.Message[:idx], ev.Message[idx+1:]...)
}
