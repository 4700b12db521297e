package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/foxseedlab/voicelink/internal/conversation"
	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/llm"
	"google.golang.org/genai"
)

type GeminiConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	BaseURL      string
}

type GeminiStreamer struct {
	client       *genai.Client
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float64
}

func NewGeminiStreamer(ctx context.Context, cfg GeminiConfig) (*GeminiStreamer, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fault.Configuration("create gemini client: %v", err)
	}
	return &GeminiStreamer{
		client:       client,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
	}, nil
}

func (g *GeminiStreamer) Backend() string {
	return "gemini:" + g.model
}

// request maps the chat context onto Gemini contents. System messages become
// the system instruction; assistant turns use the "model" role.
func (g *GeminiStreamer) request(c conversation.Context) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	var contents []*genai.Content
	for _, m := range c.Messages(g.systemPrompt) {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case string(conversation.RoleAssistant):
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.temperature)),
		MaxOutputTokens: int32(g.maxTokens),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n"), genai.RoleUser)
	}
	return contents, cfg
}

func (g *GeminiStreamer) Stream(ctx context.Context, c conversation.Context) (llm.FragmentStream, error) {
	contents, cfg := g.request(c)
	next, stop := iter.Pull2(g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg))
	return &geminiStream{next: next, stop: stop, ctx: ctx}, nil
}

func (g *GeminiStreamer) Complete(ctx context.Context, c conversation.Context) (string, error) {
	contents, cfg := g.request(c)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classifyGeminiError(ctx, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (g *GeminiStreamer) Probe(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return classifyGeminiError(ctx, err)
	}
	return nil
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	ctx  context.Context
}

func (s *geminiStream) Recv() (string, error) {
	for {
		resp, err, ok := s.next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", classifyGeminiError(s.ctx, err)
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}

func classifyGeminiError(ctx context.Context, err error) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("gemini returned %d %s: %s", apiErr.Code, apiErr.Status, apiErr.Message)
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return fault.Transient(stageName, wrapped)
		}
		return fault.Configuration("%v", wrapped)
	}
	return fault.Transient(stageName, err)
}
