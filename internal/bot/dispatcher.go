// Package bot assembles the gateway driver, the feature handlers and the
// dispatch pipeline into a runnable process.
package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

// MessageHandler runs for inbound messages in ascending Priority order.
// Fn reports whether to stop lower-priority handlers.
type MessageHandler struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context, ev *onebot.MessageEvent) bool
}

// NoticeHandler runs for inbound notices. Notice handlers never block each
// other.
type NoticeHandler struct {
	Name string
	Fn   func(ctx context.Context, ev *onebot.NoticeEvent)
}

// Dispatcher fans gateway envelopes out to handlers. Each envelope gets its
// own goroutine; the handlers for one envelope run sequentially. A panicking
// handler is logged and treated as non-blocking, so one bad event can never
// take the loop down.
type Dispatcher struct {
	// Prepare runs before the message handlers, typically to resolve the
	// quoted message for replies.
	Prepare func(ctx context.Context, ev *onebot.MessageEvent)

	message []MessageHandler
	notice  []NoticeHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) OnMessage(h MessageHandler) {
	d.message = append(d.message, h)
	sort.SliceStable(d.message, func(i, j int) bool {
		return d.message[i].Priority < d.message[j].Priority
	})
}

func (d *Dispatcher) OnNotice(h NoticeHandler) {
	d.notice = append(d.notice, h)
}

// Run consumes envelopes until ctx ends or the stream closes.
func (d *Dispatcher) Run(ctx context.Context, events <-chan *onebot.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				return nil
			}
			go d.Handle(ctx, env)
		}
	}
}

// Handle dispatches a single envelope synchronously.
func (d *Dispatcher) Handle(ctx context.Context, env *onebot.Envelope) {
	switch {
	case env.Message != nil:
		d.handleMessage(ctx, env.Message)
	case env.Notice != nil:
		d.handleNotice(ctx, env.Notice)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev *onebot.MessageEvent) {
	if d.Prepare != nil {
		d.runPrepare(ctx, ev)
	}
	for _, h := range d.message {
		if d.runMessage(ctx, h, ev) {
			return
		}
	}
}

func (d *Dispatcher) runPrepare(ctx context.Context, ev *onebot.MessageEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked",
				"handler", "prepare", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	d.Prepare(ctx, ev)
}

func (d *Dispatcher) runMessage(ctx context.Context, h MessageHandler, ev *onebot.MessageEvent) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked",
				"handler", h.Name, "panic", r, "stack", string(debug.Stack()))
			stop = false
		}
	}()
	return h.Fn(ctx, ev)
}

func (d *Dispatcher) handleNotice(ctx context.Context, ev *onebot.NoticeEvent) {
	for _, h := range d.notice {
		d.runNotice(ctx, h, ev)
	}
}

func (d *Dispatcher) runNotice(ctx context.Context, h NoticeHandler, ev *onebot.NoticeEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked",
				"handler", h.Name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	h.Fn(ctx, ev)
}
