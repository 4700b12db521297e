package transcriber

import (
	"log/slog"
	"strings"
)

var emergencyKeywords = []string{
	"no heat",
	"no heating",
	"heat not working",
	"heating not working",
	"flooding",
	"flood",
	"water everywhere",
	"clogged toilet",
	"toilet overflowing",
	"sewer backup",
	"blocked sewer line",
	"sewage",
	"fire",
	"smoke",
	"gas leak",
	"carbon monoxide",
}

func EmergencyKeywords() []string {
	out := make([]string, len(emergencyKeywords))
	copy(out, emergencyKeywords)
	return out
}

func ContainsEmergency(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range emergencyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SelectBestHypothesis returns the top hypothesis unless it misses an emergency
// keyword that a lower-ranked alternate carries; then the first such alternate
// wins regardless of its confidence.
func SelectBestHypothesis(ranked []Hypothesis) string {
	if len(ranked) == 0 {
		return ""
	}
	top := ranked[0].Text
	if ContainsEmergency(top) {
		return top
	}
	for i, h := range ranked[1:] {
		if ContainsEmergency(h.Text) {
			slog.Info("emergency keyword found in alternate hypothesis", "rank", i+1, "confidence", h.Confidence)
			return h.Text
		}
	}
	return top
}
