package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/webhook"
)

const (
	stageName      = "webhook"
	requestTimeout = 10 * time.Second
	retryDelay     = 500 * time.Millisecond
)

type HTTPSender struct {
	webhookURL string
	client     *http.Client
	retryDelay time.Duration
}

func NewHTTPSender(webhookURL string) *HTTPSender {
	return &HTTPSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: requestTimeout},
		retryDelay: retryDelay,
	}
}

// SendCallSummary posts the summary as JSON. An empty URL disables delivery.
// Network errors and 5xx responses are retried once.
func (s *HTTPSender) SendCallSummary(ctx context.Context, summary webhook.CallSummary) error {
	if s.webhookURL == "" {
		slog.Debug("call summary webhook disabled", "call_id", summary.CallID)
		return nil
	}

	b, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal call summary: %w", err)
	}

	err = s.post(ctx, b, summary.Priority)
	if fault.IsTransient(err) && ctx.Err() == nil {
		slog.Warn("call summary delivery failed; retrying", "call_id", summary.CallID, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
		err = s.post(ctx, b, summary.Priority)
	}
	if err != nil {
		return err
	}
	slog.Info("call summary sent", "call_id", summary.CallID, "priority", summary.Priority, "turns", summary.TurnCount)
	return nil
}

func (s *HTTPSender) post(ctx context.Context, body []byte, priority string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fault.Configuration("invalid webhook url: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Call-Priority", priority)
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fault.Transient(stageName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case isHTTPSuccessStatus(resp.StatusCode):
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fault.Transient(stageName, fmt.Errorf("webhook returned status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
