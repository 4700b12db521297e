package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foxseedlab/voicelink/internal/conversation"
	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/llm"
)

func sseServer(t *testing.T, model string, deltas []string, captured *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		for _, d := range deltas {
			b, _ := json.Marshal(map[string]any{
				"model":   model,
				"choices": []map[string]any{{"delta": map[string]string{"content": d}}},
			})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
		}
		_, _ = fmt.Fprint(w, "data: {not json}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func testContext() conversation.Context {
	return conversation.Context{
		FactsSummary: "Known facts: Unit=4B",
		History: []conversation.Turn{
			{Role: conversation.RoleCaller, Text: "my heat is out"},
			{Role: conversation.RoleAssistant, Text: "What unit are you in?"},
		},
		Utterance: "unit 4B",
	}
}

func TestOpenAIStreamer_StreamsFragmentsInOrder(t *testing.T) {
	var captured chatRequest
	srv := sseServer(t, "gpt-4o-mini", []string{"Thanks", ", I have", " your unit."}, &captured)
	defer srv.Close()

	s := NewOpenAIStreamer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini", SystemPrompt: "be brief", MaxTokens: 150, Temperature: 0.7})
	stream, err := s.Stream(context.Background(), testContext())
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	defer stream.Close()

	var got []string
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected recv error: %v", err)
		}
		got = append(got, frag)
	}
	if strings.Join(got, "") != "Thanks, I have your unit." || len(got) != 3 {
		t.Fatalf("unexpected fragments: %q", got)
	}

	if !captured.Stream || captured.Model != "gpt-4o-mini" || captured.MaxTokens != 150 {
		t.Fatalf("unexpected request: %+v", captured)
	}
	roles := make([]string, 0, len(captured.Messages))
	for _, m := range captured.Messages {
		roles = append(roles, m.Role)
	}
	if strings.Join(roles, ",") != "system,system,user,assistant,user" {
		t.Fatalf("unexpected message roles: %v", roles)
	}
	if captured.Messages[4].Content != "unit 4B" {
		t.Fatalf("expected utterance last, got %+v", captured.Messages[4])
	}
}

func TestOpenAIStreamer_BackendReflectsServedModel(t *testing.T) {
	srv := sseServer(t, "grok-2", []string{"hi"}, nil)
	defer srv.Close()

	s := NewOpenAIStreamer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "gpt-4o-mini"})
	if !strings.HasPrefix(s.Backend(), "openai:gpt-4o-mini@127.0.0.1") {
		t.Fatalf("unexpected backend before any reply: %s", s.Backend())
	}
	guarded, err := llm.NewGuardedStreamer(s, llm.NewGuard(nil))
	if err != nil {
		t.Fatalf("configured model must pass the guard: %v", err)
	}
	stream, err := guarded.Stream(context.Background(), testContext())
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	for {
		if _, err := stream.Recv(); err != nil {
			break
		}
	}
	_ = stream.Close()

	if !strings.Contains(s.Backend(), "grok-2") {
		t.Fatalf("expected served model in backend id, got %s", s.Backend())
	}
	if _, err := guarded.Stream(context.Background(), testContext()); !fault.IsPolicy(err) {
		t.Fatalf("expected policy violation once a prohibited model answers, got %v", err)
	}
}

func TestOpenAIStreamer_ErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{status: http.StatusTooManyRequests, transient: true},
		{status: http.StatusBadGateway, transient: true},
		{status: http.StatusUnauthorized, transient: false},
		{status: http.StatusNotFound, transient: false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"test"}}`)
			}))
			defer srv.Close()

			s := NewOpenAIStreamer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
			_, err := s.Stream(context.Background(), testContext())
			if err == nil || !strings.Contains(err.Error(), "nope") {
				t.Fatalf("expected api error message, got %v", err)
			}
			if fault.IsTransient(err) != tc.transient {
				t.Fatalf("unexpected classification for %d: %v", tc.status, err)
			}
			if !tc.transient && !fault.IsConfiguration(err) {
				t.Fatalf("expected configuration error for %d, got %v", tc.status, err)
			}
		})
	}
}

func TestOpenAIStreamer_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Errorf("complete must not request streaming")
		}
		_, _ = io.WriteString(w, `{"model":"gpt-4o-mini","choices":[{"message":{"content":" Got it. "}}]}`)
	}))
	defer srv.Close()

	s := NewOpenAIStreamer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	got, err := s.Complete(context.Background(), testContext())
	if err != nil || got != "Got it." {
		t.Fatalf("unexpected completion: %q %v", got, err)
	}
}

func TestOpenAIStreamer_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models/gpt-4o-mini" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"id":"gpt-4o-mini"}`)
	}))
	defer srv.Close()

	ok := NewOpenAIStreamer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	if err := ok.Probe(context.Background()); err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}
	missing := NewOpenAIStreamer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "nope"})
	if err := missing.Probe(context.Background()); err == nil {
		t.Fatal("expected probe failure for unknown model")
	}
}

func TestGeminiStreamer_RequestMapping(t *testing.T) {
	g := &GeminiStreamer{model: "gemini-2.0-flash", systemPrompt: "be brief", maxTokens: 150, temperature: 0.7}
	if g.Backend() != "gemini:gemini-2.0-flash" {
		t.Fatalf("unexpected backend: %s", g.Backend())
	}
	contents, cfg := g.request(testContext())
	if len(contents) != 3 {
		t.Fatalf("expected history plus utterance, got %d contents", len(contents))
	}
	if contents[1].Role != "model" || contents[2].Role != "user" {
		t.Fatalf("unexpected roles: %s %s", contents[1].Role, contents[2].Role)
	}
	if cfg.SystemInstruction == nil || !strings.Contains(cfg.SystemInstruction.Parts[0].Text, "Known facts: Unit=4B") {
		t.Fatalf("expected facts in system instruction, got %+v", cfg.SystemInstruction)
	}
	if cfg.MaxOutputTokens != 150 || cfg.Temperature == nil || *cfg.Temperature != float32(0.7) {
		t.Fatalf("unexpected generation config: %+v", cfg)
	}
}
