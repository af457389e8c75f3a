package antirecall

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/gosentinel/internal/adapter"
	"github.com/nextlevelbuilder/gosentinel/internal/config"
	"github.com/nextlevelbuilder/gosentinel/internal/confstore"
	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

var enabledKey = confstore.PluginKey("anti_recall", "enabled")

// Engine runs the two anti-recall pipelines: ingest caches every message
// from a monitored group, react reconstructs a cached message when its
// recall notice arrives and delivers it to the configured recipients.
type Engine struct {
	api      *onebot.API
	adapters *adapter.Router
	platform string
	cache    *Cache
	store    *confstore.Store
	cfg      config.AntiRecallConfig
	selfID   func() int64

	// limiter paces the header/forward/delete call chain so the gateway
	// does not flag the burst as spam.
	limiter *rate.Limiter

	// settle is how long a cloned message needs before it shows up in the
	// archive group's history.
	settle time.Duration
}

// NewEngine wires an engine over the gateway API and adapter router.
// selfID reports the bot account id once the connection has identified it.
func NewEngine(api *onebot.API, adapters *adapter.Router, platform string, store *confstore.Store, cfg config.AntiRecallConfig, selfID func() int64) *Engine {
	return &Engine{
		api:      api,
		adapters: adapters,
		platform: platform,
		cache:    NewCache(DefaultCapacity),
		store:    store,
		cfg:      cfg,
		selfID:   selfID,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		settle:   time.Second,
	}
}

// Enabled reports the persisted enable flag; absent means enabled.
func (e *Engine) Enabled() bool {
	return e.store.GetBool(enabledKey, true)
}

// SetEnabled persists the enable flag.
func (e *Engine) SetEnabled(on bool) error {
	e.store.Set(enabledKey, on)
	return e.store.Save()
}

func (e *Engine) monitored(groupID int64) bool {
	for _, id := range e.cfg.MonitorGroups {
		if id == groupID {
			return true
		}
	}
	return false
}

// Ingest caches a group message from a monitored group, rendering reply
// prefixes and pre-archiving opaque forwards while the message is still
// fetchable. Never fails; a partial ingest still caches what it has.
func (e *Engine) Ingest(ctx context.Context, ev *onebot.MessageEvent) {
	strat, err := e.adapters.For(e.platform)
	if err != nil {
		return
	}
	if !e.Enabled() || !e.monitored(ev.GroupID) {
		return
	}

	expanded := expandReplies(ctx, e.api, e.cache, ev.Message.Clone(), ev.MessageID, nil)
	if ev.Reply != nil {
		expanded = append(onebot.Message{onebot.Text(e.replyPrefix(ev))}, expanded...)
	}

	forwardIDs := onebot.ExtractForwardIDs(ev.Message)
	var archivedID int64
	if len(forwardIDs) > 0 && e.cfg.ArchiveGroupID != 0 && e.cfg.ArchiveGroupID != ev.GroupID {
		archivedID = e.archiveForward(ctx, strat, ev.MessageID)
	}

	e.cache.Put(&CachedMessage{
		MessageID:  ev.MessageID,
		GroupID:    ev.GroupID,
		SenderID:   ev.UserID,
		SenderName: ev.SenderName(),
		Original:   contentSegments(ev.Message),
		Expanded:   expanded,
		ForwardIDs: forwardIDs,
		ArchivedID: archivedID,
	})
}

// replyPrefix renders the quote line for an event whose reply descriptor
// was already resolved. The cache still wins when it holds the quoted
// message: it knows the relative position a pure-image summary needs.
func (e *Engine) replyPrefix(ev *onebot.MessageEvent) string {
	if cached, ok := e.cache.Get(ev.Reply.MessageID); ok {
		off, _ := e.cache.OffsetUp(ev.MessageID, ev.Reply.MessageID)
		sum, sok := summarizeQuoted(cached.Original, off)
		return formatReplyLine(cached.SenderName, sum, sok)
	}
	sum, sok := summarizeQuoted(ev.Reply.Message, 0)
	return formatReplyLine(ev.Reply.SenderName, sum, sok)
}

// contentSegments clones msg without reply segments. The cache keeps what
// the author wrote; quote metadata would pollute later summaries.
func contentSegments(msg onebot.Message) onebot.Message {
	out := make(onebot.Message, 0, len(msg))
	for _, seg := range msg {
		if seg.Type == "reply" {
			continue
		}
		out = append(out, seg)
	}
	return out.Clone()
}

// archiveForward clones a combined-forward message into the archive group
// and resolves the clone's id. Gateways that report the id on the forward
// call answer directly; otherwise the group history is consulted after a
// settle delay. Returns 0 when no id could be resolved.
func (e *Engine) archiveForward(ctx context.Context, strat adapter.Strategy, messageID int64) int64 {
	id, err := strat.ForwardToGroup(ctx, e.cfg.ArchiveGroupID, messageID)
	if err != nil {
		slog.Debug("archive forward failed", "message_id", messageID, "error", err)
		return 0
	}
	if id != 0 {
		return id
	}

	select {
	case <-ctx.Done():
		return 0
	case <-time.After(e.settle):
	}
	id, ok := strat.LatestGroupMessageID(ctx, e.cfg.ArchiveGroupID)
	if !ok {
		slog.Debug("archived copy not found in history", "group_id", e.cfg.ArchiveGroupID)
		return 0
	}
	return id
}

// React reconstructs a recalled message for the configured target users.
// Uncached ids exit silently; the cache entry is removed either way once
// a reaction ran, matching the gateway's one-notice-per-recall contract.
func (e *Engine) React(ctx context.Context, ev *onebot.NoticeEvent) {
	strat, err := e.adapters.For(e.platform)
	if err != nil {
		return
	}
	if !e.Enabled() || !e.monitored(ev.GroupID) {
		return
	}

	cached, ok := e.cache.Get(ev.MessageID)
	if !ok {
		return
	}
	defer e.cache.Remove(ev.MessageID)

	header := fmt.Sprintf("群号: %d\n发送者: %s(%d)\n撤回消息ID: %d\n",
		cached.GroupID, cached.SenderName, cached.SenderID, cached.MessageID)

	if len(cached.ForwardIDs) > 0 {
		e.relayArchived(ctx, strat, cached, header)
		return
	}
	e.relayCard(ctx, cached, header)
}

// relayArchived delivers a recalled combined-forward: a text header, then
// the pre-archived copy forwarded by handle, then the copy is deleted so
// the archive group stays clean. Without an archived copy there is nothing
// recoverable to send.
func (e *Engine) relayArchived(ctx context.Context, strat adapter.Strategy, cached *CachedMessage, header string) {
	if e.cfg.ArchiveGroupID == 0 || cached.ArchivedID == 0 {
		return
	}
	for _, target := range e.cfg.TargetUserIDs {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := e.api.SendPrivateMsg(ctx, target, header); err != nil {
			slog.Warn("recall header send failed", "target", target, "error", err)
			continue
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
		if err := strat.ForwardToPeer(ctx, target, cached.ArchivedID); err != nil {
			slog.Warn("archived forward failed", "target", target, "error", err)
			continue
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
		if err := e.api.DeleteMsg(ctx, cached.ArchivedID); err != nil {
			slog.Debug("archive cleanup failed", "message_id", cached.ArchivedID, "error", err)
		}
	}
}

// relayCard delivers a recalled plain message as a two-node forward card:
// the bot narrating the header, the original author with their content.
// Targets that reject the card get a plain text rendering instead.
func (e *Engine) relayCard(ctx context.Context, cached *CachedMessage, header string) {
	cq := cached.Expanded.String()
	nodes := []onebot.Node{
		onebot.CustomNode(e.selfID(), "防撤回", header),
		onebot.CustomNode(cached.SenderID, cached.SenderName, cq),
	}
	for _, target := range e.cfg.TargetUserIDs {
		if _, err := e.api.SendPrivateForwardMsg(ctx, target, nodes); err != nil {
			slog.Warn("recall card send failed", "target", target, "error", err)
			fallback := append(onebot.Message{onebot.Text(header)}, cached.Expanded...)
			if _, err := e.api.SendPrivateMsg(ctx, target, fallback); err != nil {
				slog.Warn("recall fallback send failed", "target", target, "error", err)
			}
		}
	}
}

// HandleToggle services the antirecall control command. Unrecognized
// arguments stay silent, like every other failed parse.
func (e *Engine) HandleToggle(ctx context.Context, ev *onebot.MessageEvent, args []string) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	var text string
	switch arg {
	case "", "toggle", "switch", "切换":
		on := !e.Enabled()
		e.persist(on)
		text = stateText(on)
	case "on", "enable", "start", "开启", "开":
		e.persist(true)
		text = stateText(true)
	case "off", "disable", "stop", "关闭", "关":
		e.persist(false)
		text = stateText(false)
	case "status", "state", "状态":
		if e.Enabled() {
			text = "防撤回功能当前：开启"
		} else {
			text = "防撤回功能当前：关闭"
		}
	default:
		return
	}

	if _, err := e.api.Reply(ctx, ev, text); err != nil {
		slog.Warn("toggle reply failed", "error", err)
	}
}

func (e *Engine) persist(on bool) {
	if err := e.SetEnabled(on); err != nil {
		slog.Warn("persist enable flag failed", "error", err)
	}
}

func stateText(on bool) string {
	if on {
		return "防撤回功能已开启"
	}
	return "防撤回功能已关闭"
}
