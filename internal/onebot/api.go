package onebot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Per-action deadlines. Forwarding touches gateway-side media downloads
// and is much slower than plain sends.
const (
	defaultTimeout = 10 * time.Second
	forwardTimeout = 60 * time.Second
	historyTimeout = 20 * time.Second
)

// Doer performs one gateway API action and returns the raw result data.
// *Client implements it; tests substitute fakes.
type Doer interface {
	Do(ctx context.Context, action string, params map[string]interface{}) (jsoniter.RawMessage, error)
}

// API is the typed action surface over a gateway connection.
type API struct {
	doer Doer
	rec  *SendRecorder
}

// NewAPI wraps a Doer with typed actions and send recording.
func NewAPI(d Doer) *API {
	return &API{doer: d, rec: &SendRecorder{}}
}

// Recorder exposes the last-send record for diagnostics.
func (a *API) Recorder() *SendRecorder {
	return a.rec
}

func (a *API) call(ctx context.Context, action string, params map[string]interface{}, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := a.doer.Do(ctx, action, params)
	a.rec.observe(action, params, err)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if uerr := json.Unmarshal(raw, out); uerr != nil {
			return fmt.Errorf("%s: decode result: %w", action, uerr)
		}
	}
	return nil
}

// SendPrivateMsg sends message to a user and returns the new message id.
// message may be a Message, a CQ string, or anything the gateway accepts.
func (a *API) SendPrivateMsg(ctx context.Context, userID int64, message interface{}) (int64, error) {
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	err := a.call(ctx, "send_private_msg", map[string]interface{}{
		"user_id": userID,
		"message": message,
	}, defaultTimeout, &out)
	return out.MessageID, err
}

// SendGroupMsg sends message to a group and returns the new message id.
func (a *API) SendGroupMsg(ctx context.Context, groupID int64, message interface{}) (int64, error) {
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	err := a.call(ctx, "send_group_msg", map[string]interface{}{
		"group_id": groupID,
		"message":  message,
	}, defaultTimeout, &out)
	return out.MessageID, err
}

// Node is one entry of a custom forward bundle.
type Node struct {
	Type string   `json:"type"`
	Data NodeData `json:"data"`
}

// NodeData is the displayed author and content of a forward node. Content
// is CQ-encoded.
type NodeData struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Content  string `json:"content"`
}

// CustomNode builds a forward node attributed to the given user.
func CustomNode(userID int64, nickname, content string) Node {
	return Node{Type: "node", Data: NodeData{UserID: userID, Nickname: nickname, Content: content}}
}

// SendPrivateForwardMsg sends a custom forward bundle to a user.
func (a *API) SendPrivateForwardMsg(ctx context.Context, userID int64, nodes []Node) (int64, error) {
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	err := a.call(ctx, "send_private_forward_msg", map[string]interface{}{
		"user_id":  userID,
		"messages": nodes,
	}, forwardTimeout, &out)
	return out.MessageID, err
}

// SendGroupForwardMsg sends a custom forward bundle to a group.
func (a *API) SendGroupForwardMsg(ctx context.Context, groupID int64, nodes []Node) (int64, error) {
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	err := a.call(ctx, "send_group_forward_msg", map[string]interface{}{
		"group_id": groupID,
		"messages": nodes,
	}, forwardTimeout, &out)
	return out.MessageID, err
}

// ForwardFriendSingleMsg forwards an existing message to a user verbatim.
func (a *API) ForwardFriendSingleMsg(ctx context.Context, userID, messageID int64) error {
	return a.call(ctx, "forward_friend_single_msg", map[string]interface{}{
		"user_id":    userID,
		"message_id": messageID,
	}, forwardTimeout, nil)
}

// ForwardGroupSingleMsg forwards an existing message to a group verbatim and
// returns the clone's id when the gateway supplies one, 0 otherwise.
func (a *API) ForwardGroupSingleMsg(ctx context.Context, groupID, messageID int64) (int64, error) {
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	err := a.call(ctx, "forward_group_single_msg", map[string]interface{}{
		"group_id":   groupID,
		"message_id": messageID,
	}, forwardTimeout, &out)
	return out.MessageID, err
}

// DeleteMsg recalls a message by id.
func (a *API) DeleteMsg(ctx context.Context, messageID int64) error {
	return a.call(ctx, "delete_msg", map[string]interface{}{
		"message_id": messageID,
	}, defaultTimeout, nil)
}

// GetMsg fetches a stored message. The result shape varies by gateway, so
// it is returned as a raw map.
func (a *API) GetMsg(ctx context.Context, messageID int64) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	err := a.call(ctx, "get_msg", map[string]interface{}{
		"message_id": messageID,
	}, defaultTimeout, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetForwardMsg resolves a combined-forward handle into its inner messages.
func (a *API) GetForwardMsg(ctx context.Context, forwardID string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	err := a.call(ctx, "get_forward_msg", map[string]interface{}{
		"id": forwardID,
	}, forwardTimeout, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HistoryMessage is one entry of a chat history page.
type HistoryMessage struct {
	MessageID  int64  `json:"message_id"`
	SelfID     int64  `json:"self_id"`
	UserID     int64  `json:"user_id"`
	Time       int64  `json:"time"`
	RawMessage string `json:"raw_message"`
	Sender     Sender `json:"sender"`
}

// GetGroupMsgHistory pages group history. messageSeq 0 starts from the
// latest message; reverseOrder asks for newest-first ordering (the camel
// case parameter name is what the gateway expects).
func (a *API) GetGroupMsgHistory(ctx context.Context, groupID, messageSeq int64, count int, reverseOrder bool) ([]HistoryMessage, error) {
	var out struct {
		Messages []HistoryMessage `json:"messages"`
	}
	err := a.call(ctx, "get_group_msg_history", map[string]interface{}{
		"group_id":     groupID,
		"message_seq":  messageSeq,
		"count":        count,
		"reverseOrder": reverseOrder,
	}, historyTimeout, &out)
	return out.Messages, err
}

// GetFriendMsgHistory pages direct chat history.
func (a *API) GetFriendMsgHistory(ctx context.Context, userID, messageSeq int64, count int, reverseOrder bool) ([]HistoryMessage, error) {
	var out struct {
		Messages []HistoryMessage `json:"messages"`
	}
	err := a.call(ctx, "get_friend_msg_history", map[string]interface{}{
		"user_id":      userID,
		"message_seq":  messageSeq,
		"count":        count,
		"reverseOrder": reverseOrder,
	}, historyTimeout, &out)
	return out.Messages, err
}

// GetRecord downloads a voice file transcoded to outFormat and returns its
// base64 payload.
func (a *API) GetRecord(ctx context.Context, file, outFormat string) (string, error) {
	var out struct {
		Base64 string `json:"base64"`
	}
	err := a.call(ctx, "get_record", map[string]interface{}{
		"file":       file,
		"out_format": outFormat,
	}, defaultTimeout, &out)
	return out.Base64, err
}

// Reply sends message back to the chat ev came from.
func (a *API) Reply(ctx context.Context, ev *MessageEvent, message interface{}) (int64, error) {
	if ev.IsGroup() {
		return a.SendGroupMsg(ctx, ev.GroupID, message)
	}
	return a.SendPrivateMsg(ctx, ev.UserID, message)
}

// GetLoginInfo returns the bot account id and nickname.
func (a *API) GetLoginInfo(ctx context.Context) (int64, string, error) {
	var out struct {
		UserID   int64  `json:"user_id"`
		Nickname string `json:"nickname"`
	}
	err := a.call(ctx, "get_login_info", nil, defaultTimeout, &out)
	return out.UserID, out.Nickname, err
}
