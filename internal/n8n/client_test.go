package n8n

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDispatch(t *testing.T) {
	var gotPath, gotAuth, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "/webhook/agent", "secret-key")
	err := c.Dispatch(context.Background(), "下载电影奥本海默", "c0ffee")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if gotPath != "/webhook/agent" {
		t.Fatalf("path = %q, want /webhook/agent", gotPath)
	}
	if gotAuth != "secret-key" {
		t.Fatalf("Authorization = %q, want raw key without scheme", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("Content-Type = %q", gotContentType)
	}
	want := `{"requirement":"下载电影奥本海默","session_id":"c0ffee"}`
	if gotBody != want {
		t.Fatalf("body = %s, want %s", gotBody, want)
	}
}

func TestDispatchWithoutKeyOmitsAuth(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "webhook/agent", "")
	if err := c.Dispatch(context.Background(), "req", "sid"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sawAuth {
		t.Fatal("Authorization header sent despite empty key")
	}
}

func TestDispatchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow not active", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "hook", "k")
	err := c.Dispatch(context.Background(), "req", "sid")
	if err == nil {
		t.Fatal("non-2xx did not fail")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "workflow not active") {
		t.Fatalf("error = %v", err)
	}
}

func TestDispatchUnconfigured(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
	}{
		{name: "no base", base: "", path: "hook"},
		{name: "no path", base: "http://localhost", path: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.base, tt.path, "")
			err := c.Dispatch(context.Background(), "req", "sid")
			if err == nil {
				t.Fatal("unconfigured client did not fail")
			}
			if !strings.Contains(err.Error(), "AGENT__N8N") {
				t.Fatalf("error does not point at the settings: %v", err)
			}
		})
	}
}
