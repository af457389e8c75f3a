// Package agent runs per-user requirement elicitation over private
// chats: an LLM-mediated dialogue that either asks for missing details
// or dispatches a finalized requirement to the automation webhook.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/gosentinel/internal/adapter"
	"github.com/nextlevelbuilder/gosentinel/internal/config"
	"github.com/nextlevelbuilder/gosentinel/internal/n8n"
	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
	"github.com/nextlevelbuilder/gosentinel/internal/providers"
)

// Agent multiplexes inbound private messages into live sessions and turns
// provider verdicts into replies or webhook dispatches.
type Agent struct {
	api      *onebot.API
	adapters *adapter.Router
	platform string
	sessions *Store
	webhook  *n8n.Client
	isSuper  func(int64) bool

	provider    providers.Provider
	providerErr error
}

// NewAgent wires the agent. A bad provider name does not fail here; it
// surfaces as a user-visible error on the first turn, so the rest of the
// bot still runs.
func NewAgent(api *onebot.API, adapters *adapter.Router, platform string, cfg config.AgentConfig, isSuper func(int64) bool) *Agent {
	a := &Agent{
		api:      api,
		adapters: adapters,
		platform: platform,
		sessions: NewStore(),
		webhook:  n8n.NewClient(cfg.N8NBaseURL, cfg.N8NWebhookPath, cfg.N8NAPIKey),
		isSuper:  isSuper,
	}
	a.provider, a.providerErr = providers.New(cfg)
	return a
}

func (a *Agent) key(ev *onebot.MessageEvent) string {
	return SessionKey(ev.SelfID, strconv.FormatInt(ev.UserID, 10))
}

// HandleOpen services the a command: ensures a session exists and, when
// opening text is given, processes it as the first turn right away. A
// bare open replies the literal "start" handshake.
func (a *Agent) HandleOpen(ctx context.Context, ev *onebot.MessageEvent, args []string) {
	if !ev.IsPrivate() || !a.isSuper(ev.UserID) {
		return
	}
	if _, err := a.adapters.For(a.platform); err != nil {
		return
	}

	key := a.key(ev)
	a.sessions.Create(key)

	opening := strings.TrimSpace(strings.Join(args, " "))
	if opening == "" {
		a.reply(ctx, ev, "start")
		return
	}
	a.sessions.Append(key, providers.ChatMessage{
		Role:    providers.RoleUser,
		Content: []providers.Content{providers.TextContent(opening)},
	})
	a.processTurn(ctx, ev, key)
}

// InSession reports whether ev belongs to a live session.
func (a *Agent) InSession(ev *onebot.MessageEvent) bool {
	return ev.IsPrivate() && a.sessions.Has(a.key(ev))
}

// Intercept claims a private message for the sender's live session and
// processes it as the next turn. Reports whether the message was claimed.
func (a *Agent) Intercept(ctx context.Context, ev *onebot.MessageEvent) bool {
	if !a.InSession(ev) || !a.isSuper(ev.UserID) {
		return false
	}
	key := a.key(ev)
	turn, ok := a.extractTurn(ctx, ev)
	if !ok {
		// In-session but nothing the provider can use; still claimed so
		// other handlers do not fire mid-dialogue.
		return true
	}
	a.sessions.Append(key, turn)
	a.processTurn(ctx, ev, key)
	return true
}

// processTurn submits the history and acts on the verdict: clarifications
// continue the dialogue, dispatches close it. Webhook failures leave the
// session open so the user can retry.
func (a *Agent) processTurn(ctx context.Context, ev *onebot.MessageEvent, key string) {
	if a.providerErr != nil {
		a.reply(ctx, ev, fmt.Sprintf("LLM 执行失败：%v", a.providerErr))
		return
	}
	verdict, err := a.provider.Request(ctx, a.sessions.History(key))
	if err != nil {
		a.reply(ctx, ev, fmt.Sprintf("LLM 执行失败：%v", err))
		return
	}

	if !verdict.TriggerN8N {
		a.sessions.Append(key, providers.ChatMessage{
			Role:    providers.RoleAssistant,
			Content: []providers.Content{providers.TextContent(verdict.Response)},
		})
		a.reply(ctx, ev, verdict.Response)
		return
	}

	sid, _ := a.sessions.SessionID(key)
	if err := a.webhook.Dispatch(ctx, verdict.Payload, sid); err != nil {
		a.reply(ctx, ev, fmt.Sprintf("调用 n8n 失败：%v", err))
		return
	}
	a.sessions.Pop(key)
	a.reply(ctx, ev, verdict.Response)
}

func (a *Agent) reply(ctx context.Context, ev *onebot.MessageEvent, text string) {
	if text == "" {
		return
	}
	if _, err := a.api.Reply(ctx, ev, text); err != nil {
		slog.Warn("agent reply failed", "user_id", ev.UserID, "error", err)
	}
}
