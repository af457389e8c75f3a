package bot

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/gosentinel/internal/adapter"
	"github.com/nextlevelbuilder/gosentinel/internal/agent"
	"github.com/nextlevelbuilder/gosentinel/internal/antirecall"
	"github.com/nextlevelbuilder/gosentinel/internal/command"
	"github.com/nextlevelbuilder/gosentinel/internal/config"
	"github.com/nextlevelbuilder/gosentinel/internal/confstore"
	"github.com/nextlevelbuilder/gosentinel/internal/diag"
	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
	"github.com/nextlevelbuilder/gosentinel/internal/recall"
)

// Bot is the assembled process: gateway transport, feature handlers and the
// dispatch pipeline.
type Bot struct {
	cfg        *config.Config
	store      *confstore.Store
	client     *onebot.Client
	server     *onebot.Server
	api        *onebot.API
	dispatcher *Dispatcher
}

// New wires every feature against one gateway client. The reverse listener
// is only created when configured.
func New(cfg *config.Config, store *confstore.Store) *Bot {
	client := onebot.NewClient(cfg.OneBot.WSURL, cfg.OneBot.AccessToken)
	api := onebot.NewAPI(client)

	adapters := adapter.NewRouter()
	adapters.Register(adapter.PlatformOneBotV11, adapter.NewOneBotV11(api))

	engine := antirecall.NewEngine(api, adapters, adapter.PlatformOneBotV11,
		store, cfg.AntiRecall, client.SelfID)
	agt := agent.NewAgent(api, adapters, adapter.PlatformOneBotV11,
		cfg.Agent, cfg.IsSuperuser)
	walker := recall.NewWalker(api, client.SelfID)
	diagCmd := diag.NewCommands(api)

	registry := command.NewRegistry(cfg.CommandStart, cfg.IsSuperuser)
	// The toggle deliberately does not block: the command message itself
	// still flows to the anti-recall ingest below.
	registry.Register(command.Spec{Name: "antirecall", Superuser: true, Handler: engine.HandleToggle})
	registry.Register(command.Spec{Name: "recall", Superuser: true, Block: true, Handler: walker.Handle})
	registry.Register(command.Spec{Name: "a", Superuser: true, Block: true, Handler: agt.HandleOpen})
	registry.Register(command.Spec{Name: "test send", Superuser: true, Block: true, Handler: diagCmd.HandleSend})
	registry.Register(command.Spec{Name: "test alconna", Superuser: true, Block: true, Handler: diagCmd.HandleEcho})

	d := NewDispatcher()
	d.Prepare = func(ctx context.Context, ev *onebot.MessageEvent) {
		onebot.AttachReply(ctx, api, ev)
	}
	d.OnMessage(MessageHandler{Name: "commands", Priority: 1, Fn: func(ctx context.Context, ev *onebot.MessageEvent) bool {
		_, block := registry.Dispatch(ctx, ev)
		return block
	}})
	d.OnMessage(MessageHandler{Name: "agent-session", Priority: 2, Fn: agt.Intercept})
	d.OnMessage(MessageHandler{Name: "antirecall-ingest", Priority: 10, Fn: func(ctx context.Context, ev *onebot.MessageEvent) bool {
		engine.Ingest(ctx, ev)
		return false
	}})
	d.OnNotice(NoticeHandler{Name: "antirecall-react", Fn: func(ctx context.Context, ev *onebot.NoticeEvent) {
		if ev.IsGroupRecall() {
			engine.React(ctx, ev)
		}
	}})

	b := &Bot{
		cfg:        cfg,
		store:      store,
		client:     client,
		api:        api,
		dispatcher: d,
	}
	if cfg.OneBot.ListenAddr != "" {
		b.server = onebot.NewServer(cfg.OneBot.ListenAddr, cfg.OneBot.AccessToken, client)
	}
	return b
}

// Run drives the transports and the dispatch loop until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.client.Run(ctx)
	})
	if b.server != nil {
		g.Go(func() error {
			return b.server.Run(ctx)
		})
	}
	g.Go(func() error {
		return b.dispatcher.Run(ctx, b.client.Events())
	})
	return g.Wait()
}
