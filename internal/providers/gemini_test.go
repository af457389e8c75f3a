package providers

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/nextlevelbuilder/gosentinel/internal/config"
)

func TestNew(t *testing.T) {
	p, err := New(config.AgentConfig{Provider: "gemini", GeminiAPIKey: "k", GeminiModel: "m"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "gemini" {
		t.Fatalf("Name = %q, want gemini", p.Name())
	}

	if _, err := New(config.AgentConfig{Provider: "chatgpt"}); err == nil {
		t.Fatal("unknown provider did not fail")
	} else if !strings.Contains(err.Error(), "chatgpt") {
		t.Fatalf("error does not name the provider: %v", err)
	}
}

func TestTrimTurns(t *testing.T) {
	turns := make([]ChatMessage, 20)
	for i := range turns {
		turns[i] = ChatMessage{Role: RoleUser, Content: []Content{TextContent(strings.Repeat("x", i+1))}}
	}

	got := trimTurns(turns, 15)
	if len(got) != 15 {
		t.Fatalf("len = %d, want 15", len(got))
	}
	if got[0].Content[0].Text != strings.Repeat("x", 6) {
		t.Fatal("trim did not keep the newest turns")
	}

	short := turns[:3]
	if len(trimTurns(short, 15)) != 3 {
		t.Fatal("short history was trimmed")
	}
}

func TestBuildContents(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("mp3data"))
	turns := []ChatMessage{
		{Role: RoleUser, Content: []Content{TextContent("你好")}},
		{Role: RoleAssistant, Content: []Content{TextContent("请讲")}},
		{Role: RoleUser, Content: []Content{
			ImageContent("https://img.example/shot.png", "shot.png"),
			AudioContent(audio),
		}},
		{Role: RoleUser, Content: []Content{TextContent("")}}, // nothing usable, dropped
	}

	contents := buildContents(turns)
	if len(contents) != 3 {
		t.Fatalf("len = %d, want 3 (empty turn dropped)", len(contents))
	}

	if contents[0].Role != "user" || contents[0].Parts[0].Text != "你好" {
		t.Fatalf("first content = %+v", contents[0])
	}
	if contents[1].Role != "model" {
		t.Fatalf("assistant role mapped to %q, want model", contents[1].Role)
	}

	mixed := contents[2]
	if len(mixed.Parts) != 2 {
		t.Fatalf("mixed turn has %d parts, want 2", len(mixed.Parts))
	}
	img := mixed.Parts[0]
	if img.FileData == nil || img.FileData.FileURI != "https://img.example/shot.png" || img.FileData.MIMEType != "image/png" {
		t.Fatalf("image part = %+v", img)
	}
	aud := mixed.Parts[1]
	if aud.InlineData == nil || aud.InlineData.MIMEType != "audio/mp3" || string(aud.InlineData.Data) != "mp3data" {
		t.Fatalf("audio part = %+v", aud)
	}
}

func TestBuildContentsBadAudio(t *testing.T) {
	turns := []ChatMessage{
		{Role: RoleUser, Content: []Content{AudioContent("!!!not-base64!!!")}},
	}
	contents := buildContents(turns)
	if len(contents) != 1 || len(contents[0].Parts) != 1 {
		t.Fatalf("contents = %+v", contents)
	}
	text := contents[0].Parts[0].Text
	if !strings.HasPrefix(text, "[语音base64解析失败] ") {
		t.Fatalf("bad audio rendered as %q", text)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want AiResponse
	}{
		{
			name: "plain json",
			raw:  `{"trigger_n8n":true,"payload":"下载电影奥本海默","response":"好的"}`,
			want: AiResponse{TriggerN8N: true, Payload: "下载电影奥本海默", Response: "好的"},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"trigger_n8n\":false,\"payload\":\"\",\"response\":\"请问您想下载什么？\"}\n```",
			want: AiResponse{Response: "请问您想下载什么？"},
		},
		{
			name: "fence without language tag",
			raw:  "```\n{\"trigger_n8n\":false,\"payload\":\"\",\"response\":\"ok\"}\n```",
			want: AiResponse{Response: "ok"},
		},
		{
			name: "surrounding whitespace",
			raw:  "  \n{\"trigger_n8n\":false,\"payload\":\"\",\"response\":\"ok\"}\n ",
			want: AiResponse{Response: "ok"},
		},
		{
			name: "not json degrades to chat",
			raw:  "我还需要更多信息。",
			want: AiResponse{Response: "我还需要更多信息。"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseResponse(tt.raw)
			if *got != tt.want {
				t.Fatalf("parseResponse = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestGuessImageMIME(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"a.png", "image/png"},
		{"A.PNG", "image/png"},
		{"b.webp", "image/webp"},
		{"c.gif", "image/gif"},
		{"d.bmp", "image/bmp"},
		{"e.tiff", "image/tiff"},
		{"f.jpg", "image/jpeg"},
		{"g.jpeg", "image/jpeg"},
		{"noext", "image/jpeg"},
		{"", "image/jpeg"},
	}
	for _, tt := range tests {
		if got := guessImageMIME(tt.file); got != tt.want {
			t.Fatalf("guessImageMIME(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestResponseTextSkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "internal reasoning", Thought: true},
				{Text: "answer"},
			}},
		}},
	}
	if got := responseText(resp); got != "answer" {
		t.Fatalf("responseText = %q, want answer", got)
	}
	if got := responseText(nil); got != "" {
		t.Fatalf("responseText(nil) = %q, want empty", got)
	}
}

func TestRequestUnconfigured(t *testing.T) {
	turns := []ChatMessage{{Role: RoleUser, Content: []Content{TextContent("hi")}}}

	g := NewGemini("", "", "gemini-2.5-flash")
	if _, err := g.Request(context.Background(), turns); err == nil {
		t.Fatal("missing api key did not fail")
	} else if !strings.Contains(err.Error(), "AGENT__GEMINI_API_KEY") {
		t.Fatalf("error does not point at the setting: %v", err)
	}

	g = NewGemini("", "key", "")
	if _, err := g.Request(context.Background(), turns); err == nil {
		t.Fatal("missing model did not fail")
	}
}

func TestGeminiRequestRoundTrip(t *testing.T) {
	verdict := `{"trigger_n8n":true,"payload":"下载电影奥本海默","response":"好的，已提交"}`
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []interface{}{map[string]interface{}{"text": verdict}},
					},
					"finishReason": "STOP",
				},
			},
		})
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, "test-key", "gemini-2.5-flash")
	out, err := g.Request(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: []Content{TextContent("下载电影奥本海默")}},
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !out.TriggerN8N || out.Payload != "下载电影奥本海默" {
		t.Fatalf("verdict = %+v", out)
	}

	if !strings.Contains(gotPath, "gemini-2.5-flash") || !strings.Contains(gotPath, "generateContent") {
		t.Fatalf("request path = %q", gotPath)
	}
	if !strings.Contains(string(gotBody), "下载电影奥本海默") {
		t.Fatal("request body missing the user turn")
	}
	if !strings.Contains(string(gotBody), "trigger_n8n") {
		t.Fatal("request body missing the response schema")
	}
}

func TestGeminiRequestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, "test-key", "gemini-2.5-flash")
	_, err := g.Request(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: []Content{TextContent("hi")}},
	})
	if err == nil {
		t.Fatal("server error did not surface")
	}
}
