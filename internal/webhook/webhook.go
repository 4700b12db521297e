package webhook

import "context"

const CallSummarySchemaVersion = 1

type CallSummaryTurn struct {
	Index    int    `json:"index"`
	Role     string `json:"role"`
	SpokenAt string `json:"spoken_at"`
	Text     string `json:"text"`
}

// CallSummary is posted once per finished call.
type CallSummary struct {
	SchemaVersion   int               `json:"schema_version"`
	CallID          string            `json:"call_id"`
	StreamSID       string            `json:"stream_sid"`
	Caller          string            `json:"caller"`
	Mode            string            `json:"mode"`
	StartAt         string            `json:"start_at"`
	EndAt           string            `json:"end_at"`
	DurationSeconds int64             `json:"duration_seconds"`
	StopReason      string            `json:"stop_reason"`
	Priority        string            `json:"priority"`
	Facts           map[string]string `json:"facts"`
	TimingsMs       map[string]int64  `json:"timings_ms"`
	TargetMs        int64             `json:"target_ms"`
	BudgetExceeded  bool              `json:"budget_exceeded"`
	TurnCount       int               `json:"turn_count"`
	Turns           []CallSummaryTurn `json:"turns"`
	Transcript      string            `json:"transcript"`
}

type Sender interface {
	SendCallSummary(ctx context.Context, summary CallSummary) error
}
