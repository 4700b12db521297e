package config

import (
	"fmt"
	"slices"
	"time"
)

const (
	LLMProviderOpenAI = "openai"
	LLMProviderGemini = "gemini"
)

type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL           string
	CallSummaryWebhookURL string
	SummaryTimezone       string

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	TranscribeLanguage         string
	STTMaxAlternatives         int

	LLMProvider        string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	GeminiAPIKey       string
	GeminiModel        string
	LLMMaxTokens       int
	LLMTemperature     float64
	SystemPrompt       string
	ProhibitedBackends []string

	ElevenLabsAPIKey       string
	ElevenLabsVoiceID      string
	ElevenLabsModel        string
	ElevenLabsOutputFormat string

	BackendTimeout        time.Duration
	ProbeTimeout          time.Duration
	FullStreamingTargetMs int
	SentenceChunkTargetMs int
	PlaybackStartBytes    int
	HistoryTurns          int
	InactivityTimeout     time.Duration

	VADEnergyThreshold float64
	VADEndSilence      time.Duration
	VADMinSpeech       time.Duration
	VADMaxSegment      time.Duration
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.LLMProvider {
	case LLMProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case LLMProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of %q or %q, got %q", LLMProviderOpenAI, LLMProviderGemini, c.LLMProvider)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{name: "BACKEND_TIMEOUT", value: c.BackendTimeout},
		{name: "PROBE_TIMEOUT", value: c.ProbeTimeout},
		{name: "INACTIVITY_TIMEOUT", value: c.InactivityTimeout},
		{name: "VAD_END_SILENCE", value: c.VADEndSilence},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.FullStreamingTargetMs <= 0 || c.SentenceChunkTargetMs <= 0 {
		return fmt.Errorf("latency targets must be positive")
	}
	if c.STTMaxAlternatives < 1 {
		return fmt.Errorf("STT_MAX_ALTERNATIVES must be at least 1, got %d", c.STTMaxAlternatives)
	}
	if c.HistoryTurns < 1 {
		return fmt.Errorf("HISTORY_TURNS must be at least 1, got %d", c.HistoryTurns)
	}
	if c.PlaybackStartBytes < 0 {
		return fmt.Errorf("PLAYBACK_START_BYTES must not be negative, got %d", c.PlaybackStartBytes)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2], got %v", c.LLMTemperature)
	}
	if _, err := time.LoadLocation(c.SummaryTimezone); err != nil {
		return fmt.Errorf("SUMMARY_TIMEZONE is invalid: %w", err)
	}
	if slices.Contains(c.ProhibitedBackends, "") {
		return fmt.Errorf("PROHIBITED_BACKENDS must not contain empty entries")
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "TRANSCRIBE_LANGUAGE", value: c.TranscribeLanguage},
		{name: "ELEVENLABS_API_KEY", value: c.ElevenLabsAPIKey},
		{name: "ELEVENLABS_VOICE_ID", value: c.ElevenLabsVoiceID},
		{name: "SYSTEM_PROMPT", value: c.SystemPrompt},
		{name: "SUMMARY_TIMEZONE", value: c.SummaryTimezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// TargetMs returns the first-audio budget for the named pipeline mode.
func (c *Config) TargetMs(fullStreaming bool) int {
	if fullStreaming {
		return c.FullStreamingTargetMs
	}
	return c.SentenceChunkTargetMs
}
