// Package command routes chat messages to named command handlers.
//
// A command line is the message's plain text: a configured prefix, a command
// name (possibly containing a subcommand, like "test send"), then
// space-separated arguments. Failed matches produce no output, and commands
// gated to superusers behave as non-matches for everyone else so the message
// still reaches ordinary handlers.
package command

import (
	"context"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

// Handler runs a matched command with its space-separated arguments.
type Handler func(ctx context.Context, ev *onebot.MessageEvent, args []string)

// Spec declares one command.
type Spec struct {
	Name      string
	Superuser bool
	// Block stops the event from reaching later handlers once matched.
	Block   bool
	Handler Handler
}

// Registry matches incoming messages against registered commands.
type Registry struct {
	prefixes []string
	specs    []*Spec
	isSuper  func(int64) bool
}

// NewRegistry builds a registry for the given command prefixes. An empty
// prefix list falls back to "/".
func NewRegistry(prefixes []string, isSuper func(int64) bool) *Registry {
	if len(prefixes) == 0 {
		prefixes = []string{"/"}
	}
	ps := append([]string(nil), prefixes...)
	sort.Slice(ps, func(i, j int) bool { return len(ps[i]) > len(ps[j]) })
	return &Registry{prefixes: ps, isSuper: isSuper}
}

// Register adds a command. Longer names are tried first, so "antirecall"
// wins over "a" and "test send" is matched before any bare "test".
func (r *Registry) Register(spec Spec) {
	s := spec
	r.specs = append(r.specs, &s)
	sort.SliceStable(r.specs, func(i, j int) bool {
		return len(r.specs[i].Name) > len(r.specs[j].Name)
	})
}

// Dispatch matches ev against the registered commands. It reports whether a
// command ran and whether the event should stop propagating.
func (r *Registry) Dispatch(ctx context.Context, ev *onebot.MessageEvent) (consumed, block bool) {
	rest, ok := r.stripPrefix(ev.Message.PlainText())
	if !ok {
		return false, false
	}
	for _, spec := range r.specs {
		args, ok := matchName(rest, spec.Name)
		if !ok {
			continue
		}
		if spec.Superuser && !r.isSuper(ev.UserID) {
			return false, false
		}
		spec.Handler(ctx, ev, args)
		return true, spec.Block
	}
	return false, false
}

func (r *Registry) stripPrefix(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, p := range r.prefixes {
		if strings.HasPrefix(text, p) {
			return strings.TrimSpace(text[len(p):]), true
		}
	}
	return "", false
}

// matchName requires the name to end at a word boundary, so "antirecall"
// never matches the "a" command.
func matchName(rest, name string) ([]string, bool) {
	if rest == name {
		return nil, true
	}
	if strings.HasPrefix(rest, name) {
		tail := rest[len(name):]
		if tail[0] == ' ' || tail[0] == '\t' {
			return strings.Fields(tail), true
		}
	}
	return nil, false
}
