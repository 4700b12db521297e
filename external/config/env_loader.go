package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/voicelink/internal/config"
)

type envConfig struct {
	Env                        string        `env:"ENV" envDefault:"production"`
	HTTPAddr                   string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL                string        `env:"DATABASE_URL,required"`
	CallSummaryWebhookURL      string        `env:"CALL_SUMMARY_WEBHOOK_URL"`
	SummaryTimezone            string        `env:"SUMMARY_TIMEZONE" envDefault:"America/New_York"`
	GoogleCloudProjectID       string        `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string        `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string        `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string        `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"telephony"`
	TranscribeLanguage         string        `env:"TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	STTMaxAlternatives         int           `env:"STT_MAX_ALTERNATIVES" envDefault:"5"`
	LLMProvider                string        `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey               string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL              string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel                string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiAPIKey               string        `env:"GEMINI_API_KEY"`
	GeminiModel                string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	LLMMaxTokens               int           `env:"LLM_MAX_TOKENS" envDefault:"150"`
	LLMTemperature             float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	SystemPrompt               string        `env:"SYSTEM_PROMPT,required"`
	ProhibitedBackends         []string      `env:"PROHIBITED_BACKENDS" envDefault:"grok,xai,x.ai" envSeparator:","`
	ElevenLabsAPIKey           string        `env:"ELEVENLABS_API_KEY,required"`
	ElevenLabsVoiceID          string        `env:"ELEVENLABS_VOICE_ID,required"`
	ElevenLabsModel            string        `env:"ELEVENLABS_MODEL" envDefault:"eleven_flash_v2_5"`
	ElevenLabsOutputFormat     string        `env:"ELEVENLABS_OUTPUT_FORMAT" envDefault:"ulaw_8000"`
	BackendTimeout             time.Duration `env:"BACKEND_TIMEOUT" envDefault:"2500ms"`
	ProbeTimeout               time.Duration `env:"PROBE_TIMEOUT" envDefault:"1s"`
	FullStreamingTargetMs      int           `env:"FULL_STREAMING_TARGET_MS" envDefault:"1000"`
	SentenceChunkTargetMs      int           `env:"SENTENCE_CHUNK_TARGET_MS" envDefault:"1500"`
	PlaybackStartBytes         int           `env:"PLAYBACK_START_BYTES" envDefault:"1600"`
	HistoryTurns               int           `env:"HISTORY_TURNS" envDefault:"10"`
	InactivityTimeout          time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"60s"`
	VADEnergyThreshold         float64       `env:"VAD_ENERGY_THRESHOLD" envDefault:"0.01"`
	VADEndSilence              time.Duration `env:"VAD_END_SILENCE" envDefault:"600ms"`
	VADMinSpeech               time.Duration `env:"VAD_MIN_SPEECH" envDefault:"300ms"`
	VADMaxSegment              time.Duration `env:"VAD_MAX_SEGMENT" envDefault:"8s"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		HTTPAddr:                   raw.HTTPAddr,
		DatabaseURL:                raw.DatabaseURL,
		CallSummaryWebhookURL:      raw.CallSummaryWebhookURL,
		SummaryTimezone:            raw.SummaryTimezone,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		TranscribeLanguage:         raw.TranscribeLanguage,
		STTMaxAlternatives:         raw.STTMaxAlternatives,
		LLMProvider:                raw.LLMProvider,
		OpenAIAPIKey:               raw.OpenAIAPIKey,
		OpenAIBaseURL:              raw.OpenAIBaseURL,
		OpenAIModel:                raw.OpenAIModel,
		GeminiAPIKey:               raw.GeminiAPIKey,
		GeminiModel:                raw.GeminiModel,
		LLMMaxTokens:               raw.LLMMaxTokens,
		LLMTemperature:             raw.LLMTemperature,
		SystemPrompt:               raw.SystemPrompt,
		ProhibitedBackends:         raw.ProhibitedBackends,
		ElevenLabsAPIKey:           raw.ElevenLabsAPIKey,
		ElevenLabsVoiceID:          raw.ElevenLabsVoiceID,
		ElevenLabsModel:            raw.ElevenLabsModel,
		ElevenLabsOutputFormat:     raw.ElevenLabsOutputFormat,
		BackendTimeout:             raw.BackendTimeout,
		ProbeTimeout:               raw.ProbeTimeout,
		FullStreamingTargetMs:      raw.FullStreamingTargetMs,
		SentenceChunkTargetMs:      raw.SentenceChunkTargetMs,
		PlaybackStartBytes:         raw.PlaybackStartBytes,
		HistoryTurns:               raw.HistoryTurns,
		InactivityTimeout:          raw.InactivityTimeout,
		VADEnergyThreshold:         raw.VADEnergyThreshold,
		VADEndSilence:              raw.VADEndSilence,
		VADMinSpeech:               raw.VADMinSpeech,
		VADMaxSegment:              raw.VADMaxSegment,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
