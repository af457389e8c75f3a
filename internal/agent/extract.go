package agent

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
	"github.com/nextlevelbuilder/gosentinel/internal/providers"
)

// extractTurn structures an inbound message into a user turn: text and
// image segments map directly, voice segments are downloaded as mp3 via
// the platform strategy. Segments the provider cannot consume are
// skipped; a turn with nothing usable reports false.
func (a *Agent) extractTurn(ctx context.Context, ev *onebot.MessageEvent) (providers.ChatMessage, bool) {
	var pieces []providers.Content
	for _, seg := range ev.Message {
		switch seg.Type {
		case "text":
			if t := seg.Str("text"); strings.TrimSpace(t) != "" {
				pieces = append(pieces, providers.TextContent(t))
			}
		case "image":
			url := seg.Str("url", "file")
			if url == "" {
				continue
			}
			pieces = append(pieces, providers.ImageContent(url, seg.Str("file", "file_name")))
		case "record", "voice":
			strat, err := a.adapters.For(a.platform)
			if err != nil {
				continue
			}
			if b64 := strat.ExtractAudioBase64(ctx, seg.Str("file", "file_id")); b64 != "" {
				pieces = append(pieces, providers.AudioContent(b64))
			}
		}
	}
	if len(pieces) == 0 {
		return providers.ChatMessage{}, false
	}
	return providers.ChatMessage{Role: providers.RoleUser, Content: pieces}, true
}
