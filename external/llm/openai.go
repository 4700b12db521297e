package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/foxseedlab/voicelink/internal/conversation"
	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/llm"
)

const stageName = "llm"

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	HTTPClient   *http.Client
}

// OpenAIStreamer talks to any OpenAI-compatible chat completions endpoint and
// streams replies over server-sent events.
type OpenAIStreamer struct {
	apiKey       string
	baseURL      string
	host         string
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float64
	http         *http.Client

	mu     sync.Mutex
	served string
}

func NewOpenAIStreamer(cfg OpenAIConfig) *OpenAIStreamer {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIStreamer{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		host:         host,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		http:         client,
	}
}

// Backend names the provider, the model that last answered (or the configured
// one before any reply) and the endpoint host.
func (s *OpenAIStreamer) Backend() string {
	s.mu.Lock()
	model := s.served
	s.mu.Unlock()
	if model == "" {
		model = s.model
	}
	return fmt.Sprintf("openai:%s@%s", model, s.host)
}

func (s *OpenAIStreamer) noteServedModel(model string) {
	if model == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served != model {
		if s.served != "" || model != s.model {
			slog.Info("language model reported serving model", "configured", s.model, "served", model)
		}
		s.served = model
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (s *OpenAIStreamer) payload(c conversation.Context, stream bool) chatRequest {
	msgs := c.Messages(s.systemPrompt)
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatMessage{Role: m.Role, Content: m.Content})
	}
	return chatRequest{
		Model:       s.model,
		Messages:    out,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Stream:      stream,
	}
}

func (s *OpenAIStreamer) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.Transient(stageName, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

// statusError classifies a non-200 response. Rate limits and server errors are
// worth one retry; anything else means the request itself is wrong.
func statusError(resp *http.Response) error {
	var body apiErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	err := fmt.Errorf("language model returned %d: %s", resp.StatusCode, msg)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fault.Transient(stageName, err)
	}
	return fault.Configuration("%v", err)
}

func (s *OpenAIStreamer) Stream(ctx context.Context, c conversation.Context) (llm.FragmentStream, error) {
	resp, err := s.do(ctx, http.MethodPost, "/chat/completions", s.payload(c, true))
	if err != nil {
		return nil, err
	}
	return &sseStream{owner: s, reader: bufio.NewReader(resp.Body), body: resp.Body}, nil
}

func (s *OpenAIStreamer) Complete(ctx context.Context, c conversation.Context) (string, error) {
	resp, err := s.do(ctx, http.MethodPost, "/chat/completions", s.payload(c, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fault.Transient(stageName, fmt.Errorf("decode response: %w", err))
	}
	s.noteServedModel(out.Model)
	if len(out.Choices) == 0 {
		return "", fault.Transient(stageName, errors.New("no choices in response"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Probe checks that the configured model is reachable with our credentials.
func (s *OpenAIStreamer) Probe(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, "/models/"+url.PathEscape(s.model), nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// sseStream reads "data:" lines until "[DONE]" or the body ends.
type sseStream struct {
	owner  *OpenAIStreamer
	reader *bufio.Reader
	body   io.ReadCloser
	done   bool
}

func (s *sseStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				s.done = true
				return "", io.EOF
			}
			return "", fault.Transient(stageName, fmt.Errorf("read stream: %w", err))
		}

		line = strings.TrimSpace(line)
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var event chatResponse
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			slog.Debug("skipping malformed stream event", "error", err)
			continue
		}
		s.owner.noteServedModel(event.Model)
		if len(event.Choices) == 0 {
			continue
		}
		if text := event.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
