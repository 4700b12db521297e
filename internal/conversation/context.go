package conversation

import (
	"strings"

	"github.com/foxseedlab/voicelink/internal/facts"
)

// Context is everything the language model sees for one reply.
type Context struct {
	FactsSummary string
	History      []Turn
	Utterance    string
}

type Message struct {
	Role    string
	Content string
}

func BuildContext(f facts.Facts, h *History, utterance string) Context {
	var turns []Turn
	if h != nil {
		turns = h.Turns()
	}
	return Context{
		FactsSummary: SummarizeFacts(f),
		History:      turns,
		Utterance:    utterance,
	}
}

// SummarizeFacts renders the known facts as a single line so the model does
// not ask for them again.
func SummarizeFacts(f facts.Facts) string {
	var known []string
	for _, kv := range []struct {
		label string
		value string
	}{
		{label: "Address", value: f.Address},
		{label: "Unit", value: f.Unit},
		{label: "Issue", value: f.ReportedIssue},
		{label: "Name", value: f.ContactName},
		{label: "Number", value: f.CallbackNumber},
		{label: "Access", value: f.AccessInstructions},
	} {
		if kv.value != "" {
			known = append(known, kv.label+"="+kv.value)
		}
	}
	if len(known) == 0 {
		return "Known facts: none yet"
	}
	return "Known facts: " + strings.Join(known, ", ")
}

// Messages renders the context as chat messages: system prompt, facts note,
// history, then the caller's utterance.
func (c Context) Messages(systemPrompt string) []Message {
	msgs := make([]Message, 0, len(c.History)+3)
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, Message{Role: "system", Content: c.FactsSummary + ". Do not ask for these again."})
	for _, t := range c.History {
		msgs = append(msgs, Message{Role: string(t.Role), Content: t.Text})
	}
	msgs = append(msgs, Message{Role: string(RoleCaller), Content: c.Utterance})
	return msgs
}
