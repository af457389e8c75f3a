// Package providers abstracts the LLM backends the agent can talk to.
// Every provider takes a turn history and answers with a structured
// verdict: either a finalized automation requirement or a reply to
// continue the conversation with.
package providers

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/nextlevelbuilder/gosentinel/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content variants.
const (
	ContentText  = "text"
	ContentImage = "image"
	ContentAudio = "audio"
)

// Content is one piece of a turn. Exactly one payload field is meaningful,
// selected by Type: Text, Image (a URL, with FileName hinting the format)
// or Audio (base64 mp3).
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Image    string `json:"image,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// TextContent builds a text piece.
func TextContent(s string) Content {
	return Content{Type: ContentText, Text: s}
}

// ImageContent builds an image piece from a URL and its file name.
func ImageContent(url, fileName string) Content {
	return Content{Type: ContentImage, Image: url, FileName: fileName}
}

// AudioContent builds an audio piece from base64 mp3 data.
func AudioContent(base64MP3 string) Content {
	return Content{Type: ContentAudio, Audio: base64MP3}
}

// ChatMessage is one turn of an agent conversation.
type ChatMessage struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// AiResponse is the provider's structured verdict on the conversation so
// far. TriggerN8N true means Payload holds a complete requirement ready
// for dispatch; otherwise Response is what to say back to the user.
type AiResponse struct {
	TriggerN8N bool   `json:"trigger_n8n"`
	Payload    string `json:"payload"`
	Response   string `json:"response"`
}

// Provider turns a conversation into a structured verdict.
type Provider interface {
	Name() string
	Request(ctx context.Context, turns []ChatMessage) (*AiResponse, error)
}

// New builds the provider named in cfg. Unknown names fail loudly so a
// typo in AGENT__PROVIDER does not silently disable the agent.
func New(cfg config.AgentConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
