package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/voicelink/internal/facts"
	"github.com/foxseedlab/voicelink/internal/pipeline"
	"github.com/foxseedlab/voicelink/internal/timing"
	"github.com/foxseedlab/voicelink/internal/webhook"
)

const transcriptTimeLayout = "2006-01-02 03:04:05 PM MST"

// callOutcome is everything known about a call once it has closed.
type callOutcome struct {
	callID     string
	streamSID  string
	caller     string
	mode       pipeline.Mode
	startedAt  time.Time
	endedAt    time.Time
	stopReason string
	facts      facts.Facts
	priority   facts.Priority
	timing     timing.Record
	exchanges  []pipeline.Exchange
}

func (o callOutcome) timingsMs() map[string]int64 {
	out := make(map[string]int64, len(o.timing.Stages))
	for stage, ms := range o.timing.Stages {
		out[string(stage)] = ms
	}
	return out
}

func buildTranscriptText(o callOutcome, loc *time.Location) string {
	loc = safeLocation(loc)
	f := o.facts
	lines := []string{
		fmt.Sprintf("Priority: %s", o.priorityLabel()),
		fmt.Sprintf("Caller: %s", valueOr(o.caller, "Unknown")),
		fmt.Sprintf("Call window: %s ~ %s", o.startedAt.In(loc).Format(transcriptTimeLayout), o.endedAt.In(loc).Format(transcriptTimeLayout)),
		fmt.Sprintf("Contact name: %s", valueOr(f.ContactName, "Unknown")),
		fmt.Sprintf("Callback number: %s", valueOr(f.CallbackNumber, "Unknown")),
		fmt.Sprintf("Address: %s", valueOr(f.Address, "Unknown")),
		fmt.Sprintf("Unit: %s", valueOr(f.Unit, "Unknown")),
		fmt.Sprintf("Reported issue: %s", valueOr(f.ReportedIssue, "No specific issue reported")),
		fmt.Sprintf("Access instructions: %s", valueOr(f.AccessInstructions, "None provided")),
		"",
	}
	for _, ex := range o.exchanges {
		elapsed := ex.SpokenAt.Sub(o.startedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		lines = append(lines, fmt.Sprintf("%s Caller: %s", formatElapsedHMS(elapsed), ex.Utterance))
		if ex.Reply != "" {
			lines = append(lines, fmt.Sprintf("%s Agent: %s", formatElapsedHMS(elapsed), ex.Reply))
		}
	}
	return strings.Join(lines, "\n")
}

func buildCallSummary(o callOutcome, loc *time.Location) webhook.CallSummary {
	loc = safeLocation(loc)
	durationSeconds := int64(o.endedAt.Sub(o.startedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	turns := make([]webhook.CallSummaryTurn, 0, len(o.exchanges)*2)
	for _, ex := range o.exchanges {
		spokenAt := ex.SpokenAt.In(loc).Format(time.RFC3339)
		turns = append(turns, webhook.CallSummaryTurn{Index: len(turns), Role: "caller", SpokenAt: spokenAt, Text: ex.Utterance})
		if ex.Reply != "" {
			turns = append(turns, webhook.CallSummaryTurn{Index: len(turns), Role: "agent", SpokenAt: spokenAt, Text: ex.Reply})
		}
	}
	return webhook.CallSummary{
		SchemaVersion:   webhook.CallSummarySchemaVersion,
		CallID:          o.callID,
		StreamSID:       o.streamSID,
		Caller:          o.caller,
		Mode:            o.mode.String(),
		StartAt:         o.startedAt.In(loc).Format(time.RFC3339),
		EndAt:           o.endedAt.In(loc).Format(time.RFC3339),
		DurationSeconds: durationSeconds,
		StopReason:      o.stopReason,
		Priority:        string(o.priorityLabel()),
		Facts:           o.facts.Map(),
		TimingsMs:       o.timingsMs(),
		TargetMs:        o.timing.TargetMs,
		BudgetExceeded:  o.timing.Exceeded(),
		TurnCount:       len(o.exchanges),
		Turns:           turns,
		Transcript:      buildTranscriptText(o, loc),
	}
}

func (o callOutcome) priorityLabel() facts.Priority {
	if o.priority == "" {
		return facts.PriorityStandard
	}
	return o.priority
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
