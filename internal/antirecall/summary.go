package antirecall

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

const (
	unknownSender = "未知"
	cannotFetch   = "无法获取"
	separatorLine = "────────────"
)

// GetMsgCaller fetches a stored message by id. *onebot.API satisfies it.
type GetMsgCaller interface {
	GetMsg(ctx context.Context, messageID int64) (map[string]interface{}, error)
}

// QuotedRef is a quoted message a caller has already resolved.
type QuotedRef struct {
	SenderName string
	Message    onebot.Message
}

// ReplyLookup resolves a quoted message id from context the caller holds,
// before the cache or the gateway are consulted. May be nil.
type ReplyLookup func(messageID int64) (*QuotedRef, bool)

func stripAllSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// summarizeQuoted flattens a quoted message into one display line. Only
// text and image content summarizes; anything else reports failure so the
// caller renders 无法获取. offsetUp positions pure-image quotes ("the
// picture N messages up"); 0 means the position is unknown.
func summarizeQuoted(msg onebot.Message, offsetUp int) (string, bool) {
	if len(msg) == 0 {
		return "", false
	}
	texts := 0
	images := 0
	for _, seg := range msg {
		switch seg.Type {
		case "text":
			texts++
		case "image":
			images++
		default:
			return "", false
		}
	}

	if images > 0 && texts == 0 {
		if offsetUp > 0 {
			return fmt.Sprintf("[图片：往上第%d条]", offsetUp), true
		}
		return "[图片：往上第?条]", true
	}

	var b strings.Builder
	for _, seg := range msg {
		switch seg.Type {
		case "text":
			b.WriteString(stripAllSpace(seg.Str("text")))
		case "image":
			b.WriteString("[图片]")
		}
	}
	out := b.String()
	if out == "" {
		return "", false
	}
	return out, true
}

// formatReplyLine renders the quote prefix shown above a replying message.
func formatReplyLine(senderName, summary string, ok bool) string {
	name := stripAllSpace(senderName)
	if name == "" {
		name = unknownSender
	}
	body := summary
	if !ok {
		body = cannotFetch
	}
	return fmt.Sprintf("回复(用户：%s)：%s\n%s\n", name, body, separatorLine)
}

// quotedLine resolves the preview line for a quote of replyID appearing in
// currentID. The cache is preferred: it knows relative positions and still
// holds messages the gateway can no longer return.
func quotedLine(ctx context.Context, g GetMsgCaller, cache *Cache, currentID, replyID int64, local ReplyLookup) string {
	if local != nil {
		if ref, ok := local(replyID); ok && ref != nil {
			sum, sok := summarizeQuoted(ref.Message, 0)
			return formatReplyLine(ref.SenderName, sum, sok)
		}
	}
	if replyID != 0 && cache != nil {
		if cached, ok := cache.Get(replyID); ok {
			off, _ := cache.OffsetUp(currentID, replyID)
			sum, sok := summarizeQuoted(cached.Original, off)
			return formatReplyLine(cached.SenderName, sum, sok)
		}
	}
	if replyID != 0 && g != nil {
		if data, err := g.GetMsg(ctx, replyID); err == nil {
			sender, _ := data["sender"].(map[string]interface{})
			content, ok := data["message"]
			if !ok {
				content = data["content"]
			}
			sum, sok := summarizeQuoted(onebot.NormalizeContent(content), 0)
			return formatReplyLine(onebot.SenderDisplayName(sender), sum, sok)
		}
	}
	return formatReplyLine("", "", false)
}

// expandReplies replaces every reply segment in msg with its rendered quote
// prefix. The result carries no reply segments, so a second pass is a
// no-op. currentID anchors offset computation for pure-image quotes.
func expandReplies(ctx context.Context, g GetMsgCaller, cache *Cache, msg onebot.Message, currentID int64, local ReplyLookup) onebot.Message {
	out := make(onebot.Message, 0, len(msg))
	for _, seg := range msg {
		if seg.Type != "reply" {
			out = append(out, seg)
			continue
		}
		replyID := onebot.ReplyTargetID(seg)
		out = append(out, onebot.Text(quotedLine(ctx, g, cache, currentID, replyID, local)))
	}
	return out
}
