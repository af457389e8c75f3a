package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// maxTurns bounds the history sent per request; older turns fall off the
// front. Keeps token usage flat on long-running sessions.
const maxTurns = 15

// Gemini calls the Gemini API with a response schema that forces the
// structured verdict shape.
type Gemini struct {
	baseURL string
	apiKey  string
	model   string

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini builds a Gemini provider. The client itself is created lazily
// so a misconfigured key surfaces at first use, not at startup.
func NewGemini(baseURL, apiKey, model string) *Gemini {
	return &Gemini{baseURL: baseURL, apiKey: apiKey, model: model}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	if g.apiKey == "" {
		return nil, errors.New("gemini api key not configured (AGENT__GEMINI_API_KEY)")
	}
	cc := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Request submits the trimmed turn history and decodes the verdict.
// Transport and configuration failures return errors for the caller to
// surface; only malformed model output degrades to a raw-text verdict.
func (g *Gemini) Request(ctx context.Context, turns []ChatMessage) (*AiResponse, error) {
	if g.model == "" {
		return nil, errors.New("gemini model not configured (AGENT__GEMINI_MODEL)")
	}
	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := buildContents(trimTurns(turns, maxTurns))
	if len(contents) == 0 {
		return nil, errors.New("conversation has no sendable content")
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, generationConfig())
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	raw := responseText(resp)
	if raw == "" {
		return nil, errors.New("gemini returned an empty response")
	}
	return parseResponse(raw), nil
}

func trimTurns(turns []ChatMessage, limit int) []ChatMessage {
	if len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}

// buildContents maps chat turns onto API content. Turns that end up with
// no usable parts are dropped rather than sent empty.
func buildContents(turns []ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Role == RoleAssistant {
			role = "model"
		}
		var parts []*genai.Part
		for _, c := range turn.Content {
			switch c.Type {
			case ContentText:
				if c.Text != "" {
					parts = append(parts, &genai.Part{Text: c.Text})
				}
			case ContentImage:
				if c.Image != "" {
					parts = append(parts, &genai.Part{
						FileData: &genai.FileData{FileURI: c.Image, MIMEType: guessImageMIME(c.FileName)},
					})
				}
			case ContentAudio:
				if c.Audio == "" {
					break
				}
				if data, err := base64.StdEncoding.DecodeString(c.Audio); err == nil {
					parts = append(parts, &genai.Part{
						InlineData: &genai.Blob{MIMEType: "audio/mp3", Data: data},
					})
				} else {
					parts = append(parts, &genai.Part{Text: "[语音base64解析失败] " + clip(c.Audio, 80)})
				}
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type:     genai.TypeObject,
			Required: []string{"trigger_n8n", "payload", "response"},
			Properties: map[string]*genai.Schema{
				"trigger_n8n": {Type: genai.TypeBoolean, Description: "指令完整且可立即执行时为 true"},
				"payload":     {Type: genai.TypeString, Description: "完整的任务需求，一句话概括"},
				"response":    {Type: genai.TypeString, Description: "回复用户的内容"},
			},
		},
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

var fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// parseResponse decodes the model's JSON verdict. Output that does not
// decode becomes a plain-chat verdict carrying the raw text, so a
// misbehaving model degrades to conversation instead of a dead end.
func parseResponse(raw string) *AiResponse {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	var out AiResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return &AiResponse{Response: raw}
	}
	return &out
}

func guessImageMIME(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
