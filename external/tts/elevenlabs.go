package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/tts"
	"github.com/gorilla/websocket"
)

const (
	defaultAPIBase   = "https://api.elevenlabs.io"
	defaultWSBase    = "wss://api.elevenlabs.io"
	stageName        = "tts"
	writeTimeout     = 5 * time.Second
	audioChannelSize = 64
)

// Generation starts early with small chunks and grows them as the reply goes on.
var chunkLengthSchedule = []int{120, 160, 250, 290}

type ElevenLabsConfig struct {
	APIKey       string
	VoiceID      string
	Model        string
	OutputFormat string
	APIBaseURL   string
	WSBaseURL    string
	HTTPClient   *http.Client
}

type ElevenLabsSynthesizer struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	apiBase      string
	wsBase       string
	http         *http.Client
	dialer       *websocket.Dialer
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	wsBase := strings.TrimRight(strings.TrimSpace(cfg.WSBaseURL), "/")
	if wsBase == "" {
		wsBase = defaultWSBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabsSynthesizer{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		voiceID:      strings.TrimSpace(cfg.VoiceID),
		model:        cfg.Model,
		outputFormat: cfg.OutputFormat,
		apiBase:      apiBase,
		wsBase:       wsBase,
		http:         client,
		dialer:       websocket.DefaultDialer,
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

var defaultVoiceSettings = voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

func (s *ElevenLabsSynthesizer) query() string {
	q := url.Values{}
	q.Set("model_id", s.model)
	q.Set("output_format", s.outputFormat)
	return q.Encode()
}

func (s *ElevenLabsSynthesizer) streamURL() string {
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", s.wsBase, url.PathEscape(s.voiceID), s.query())
}

// OpenStream dials the stream-input socket and sends the opening message.
func (s *ElevenLabsSynthesizer) OpenStream(ctx context.Context) (tts.TokenStream, error) {
	header := http.Header{}
	header.Set("xi-api-key", s.apiKey)
	conn, resp, err := s.dialer.DialContext(ctx, s.streamURL(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, statusError(resp)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.Transient(stageName, fmt.Errorf("dial stream: %w", err))
	}

	st := &wsTokenStream{
		conn:  conn,
		audio: make(chan []byte, audioChannelSize),
		done:  make(chan struct{}),
	}
	if err := st.writeJSON(map[string]any{
		"text":              " ",
		"voice_settings":    defaultVoiceSettings,
		"generation_config": map[string]any{"chunk_length_schedule": chunkLengthSchedule},
	}); err != nil {
		_ = st.Close()
		return nil, fault.Transient(stageName, fmt.Errorf("send opening message: %w", err))
	}
	go st.readLoop(ctx)
	return st, nil
}

type wsTokenStream struct {
	conn  *websocket.Conn
	audio chan []byte
	done  chan struct{}

	writeMu  sync.Mutex
	finished bool

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (st *wsTokenStream) writeJSON(v any) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return st.conn.WriteJSON(v)
}

func (st *wsTokenStream) Append(text string) error {
	if text == "" {
		return nil
	}
	st.writeMu.Lock()
	finished := st.finished
	st.writeMu.Unlock()
	if finished {
		return errors.New("append after finish")
	}
	if err := st.writeJSON(map[string]any{"text": text}); err != nil {
		return fault.Transient(stageName, fmt.Errorf("send text: %w", err))
	}
	return nil
}

// Finish sends the end-of-input message. Audio keeps flowing until the server
// marks the final chunk.
func (st *wsTokenStream) Finish() error {
	st.writeMu.Lock()
	if st.finished {
		st.writeMu.Unlock()
		return nil
	}
	st.finished = true
	st.writeMu.Unlock()
	if err := st.writeJSON(map[string]any{"text": ""}); err != nil {
		return fault.Transient(stageName, fmt.Errorf("send end of input: %w", err))
	}
	return nil
}

func (st *wsTokenStream) Audio() <-chan []byte { return st.audio }

func (st *wsTokenStream) Err() error {
	st.errMu.Lock()
	defer st.errMu.Unlock()
	return st.err
}

func (st *wsTokenStream) setErr(err error) {
	st.errMu.Lock()
	defer st.errMu.Unlock()
	if st.err == nil {
		st.err = err
	}
}

func (st *wsTokenStream) Close() error {
	var err error
	st.closeOnce.Do(func() {
		close(st.done)
		err = st.conn.Close()
	})
	return err
}

type streamMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (st *wsTokenStream) readLoop(ctx context.Context) {
	defer close(st.audio)
	for {
		_, data, err := st.conn.ReadMessage()
		if err != nil {
			select {
			case <-st.done:
				return
			default:
			}
			if ctx.Err() != nil {
				st.setErr(ctx.Err())
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				st.writeMu.Lock()
				finished := st.finished
				st.writeMu.Unlock()
				if finished {
					return
				}
			}
			st.setErr(fault.Transient(stageName, fmt.Errorf("read stream: %w", err)))
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("skipping malformed synthesis message", "error", err)
			continue
		}
		if msg.Error != "" {
			st.setErr(fault.Transient(stageName, fmt.Errorf("synthesis failed: %s: %s", msg.Error, msg.Message)))
			return
		}
		if msg.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				st.setErr(fault.Protocol("synthesis audio is not base64: %v", err))
				return
			}
			if len(audio) > 0 {
				select {
				case st.audio <- audio:
				case <-st.done:
					return
				case <-ctx.Done():
					st.setErr(ctx.Err())
					return
				}
			}
		}
		if msg.IsFinal {
			return
		}
	}
}

type unitRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// SynthesizeUnit renders one sentence over the plain HTTP endpoint.
func (s *ElevenLabsSynthesizer) SynthesizeUnit(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(unitRequest{Text: text, ModelID: s.model, VoiceSettings: defaultVoiceSettings})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	q := url.Values{}
	q.Set("output_format", s.outputFormat)
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?%s", s.apiBase, url.PathEscape(s.voiceID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.Transient(stageName, fmt.Errorf("read audio: %w", err))
	}
	return audio, nil
}

// Probe lists voices, which needs a valid key and a reachable API.
func (s *ElevenLabsSynthesizer) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"/v1/voices", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	resp, err := s.do(ctx, req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (s *ElevenLabsSynthesizer) do(ctx context.Context, req *http.Request) (*http.Response, error) {
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

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("synthesis api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fault.Transient(stageName, err)
	}
	return fault.Configuration("%v", err)
}
