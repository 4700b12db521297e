package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	audioSampleRateHertz  = 8000
	audioChannelCount     = 1
	stageName             = "stt"
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
	MaxAlternatives int
}

// CloudSpeechTranscriber recognizes one utterance segment per request. The
// gRPC client is dialed on first use and shared by every call.
type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	language        string
	location        string
	model           string
	maxAlternatives int

	mu     sync.Mutex
	client *speech.Client
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) *CloudSpeechTranscriber {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}
	maxAlternatives := cfg.MaxAlternatives
	if maxAlternatives < 1 {
		maxAlternatives = 1
	}
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		language:        cfg.Language,
		location:        location,
		model:           strings.TrimSpace(cfg.Model),
		maxAlternatives: maxAlternatives,
	}
}

func (t *CloudSpeechTranscriber) connect(ctx context.Context) (*speech.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fault.Configuration("detect credentials: %v", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if t.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fault.Transient(stageName, fmt.Errorf("create speech client: %w", err))
	}
	slog.Info("cloud speech client initialized", "location", t.location, "model", t.model, "language", t.language)
	t.client = client
	return client, nil
}

func (t *CloudSpeechTranscriber) recognizer() string {
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, t.location)
}

func (t *CloudSpeechTranscriber) request(segment []byte) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Recognizer: t.recognizer(),
		Config: &speechpb.RecognitionConfig{
			Model:         t.model,
			LanguageCodes: []string{t.language},
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_MULAW,
					SampleRateHertz:   audioSampleRateHertz,
					AudioChannelCount: audioChannelCount,
				},
			},
			Features: &speechpb.RecognitionFeatures{
				MaxAlternatives:            int32(t.maxAlternatives),
				EnableAutomaticPunctuation: true,
			},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: segment},
	}
}

func (t *CloudSpeechTranscriber) Recognize(ctx context.Context, segment []byte) ([]transcriber.Hypothesis, error) {
	if len(segment) == 0 {
		return nil, nil
	}
	client, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.Recognize(ctx, t.request(segment))
	if err != nil {
		return nil, classifyError(err)
	}
	hyps := hypothesesFromResults(resp.GetResults())
	slog.Debug("cloud speech recognized segment", "bytes", len(segment), "alternatives", len(hyps))
	return hyps, nil
}

func (t *CloudSpeechTranscriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// hypothesesFromResults merges consecutive result windows rank by rank. A
// window with fewer alternatives contributes its last one to the lower ranks.
func hypothesesFromResults(results []*speechpb.SpeechRecognitionResult) []transcriber.Hypothesis {
	depth := 0
	for _, r := range results {
		if n := len(r.GetAlternatives()); n > depth {
			depth = n
		}
	}
	hyps := make([]transcriber.Hypothesis, 0, depth)
	for rank := 0; rank < depth; rank++ {
		var parts []string
		var confidence float64
		windows := 0
		for _, r := range results {
			alts := r.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			alt := alts[min(rank, len(alts)-1)]
			if text := strings.TrimSpace(alt.GetTranscript()); text != "" {
				parts = append(parts, text)
			}
			confidence += float64(alt.GetConfidence())
			windows++
		}
		if len(parts) == 0 {
			continue
		}
		hyps = append(hyps, transcriber.Hypothesis{
			Text:       strings.Join(parts, " "),
			Confidence: confidence / float64(windows),
		})
	}
	return hyps
}

func classifyError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fault.Transient(stageName, err)
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound, codes.FailedPrecondition:
		return fault.Configuration("cloud speech rejected request: %s", st.Message())
	case codes.Canceled:
		return err
	default:
		return fault.Transient(stageName, err)
	}
}
