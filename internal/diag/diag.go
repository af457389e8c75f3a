// Package diag provides the interactive "test" debugging commands.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const payloadClip = 300

// Commands answers the "test send" and "test alconna" debugging commands.
type Commands struct {
	api *onebot.API
}

func NewCommands(api *onebot.API) *Commands {
	return &Commands{api: api}
}

// HandleSend replies with a snapshot of the most recent outbound send,
// so delivery problems can be inspected from chat.
func (c *Commands) HandleSend(ctx context.Context, ev *onebot.MessageEvent, _ []string) {
	rec, ok := c.api.Recorder().Last()
	if !ok {
		c.reply(ctx, ev, "尚未记录到任何发送")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "动作: %s\n", rec.Action)
	fmt.Fprintf(&b, "目标: %s\n", formatTarget(rec.Target))
	fmt.Fprintf(&b, "时间: %s\n", rec.Time.Format("15:04:05"))
	if rec.OK {
		b.WriteString("状态: 成功\n")
	} else {
		fmt.Fprintf(&b, "状态: 失败 (%s)\n", rec.Error)
	}
	fmt.Fprintf(&b, "内容: %s", formatPayload(rec.Message))
	c.reply(ctx, ev, b.String())
}

// HandleEcho replies with the parsed arguments and the segment kinds of the
// triggering message, confirming that command parsing sees what was sent.
func (c *Commands) HandleEcho(ctx context.Context, ev *onebot.MessageEvent, args []string) {
	var b strings.Builder
	if len(args) > 0 {
		fmt.Fprintf(&b, "参数: %s\n", strings.Join(args, " "))
	} else {
		b.WriteString("参数: 无\n")
	}
	fmt.Fprintf(&b, "消息段: %s", strings.Join(segmentKinds(ev.Message), ", "))
	c.reply(ctx, ev, b.String())
}

func (c *Commands) reply(ctx context.Context, ev *onebot.MessageEvent, text string) {
	if _, err := c.api.Reply(ctx, ev, text); err != nil {
		slog.Warn("diag: reply failed", "error", err)
	}
}

func formatTarget(target map[string]int64) string {
	if len(target) == 0 {
		return "无"
	}
	keys := make([]string, 0, len(target))
	for k := range target {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, target[k]))
	}
	return strings.Join(parts, " ")
}

func formatPayload(payload interface{}) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	s := string(b)
	if r := []rune(s); len(r) > payloadClip {
		s = string(r[:payloadClip]) + "…"
	}
	return s
}

func segmentKinds(msg onebot.Message) []string {
	var kinds []string
	seen := map[string]bool{}
	for _, seg := range msg {
		if seen[seg.Type] {
			continue
		}
		seen[seg.Type] = true
		kinds = append(kinds, seg.Type)
	}
	if len(kinds) == 0 {
		return []string{"无"}
	}
	return kinds
}
