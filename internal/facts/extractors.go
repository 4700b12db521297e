package facts

import (
	"regexp"
	"strings"
	"unicode"
)

type Extractor interface {
	Slot() Slot
	// Extract returns the value found in utterance, or "" when there is none.
	// current is the state before this utterance and must not be modified.
	Extract(utterance string, current Facts) string
}

// DefaultExtractors returns the extractors in the order they are applied.
func DefaultExtractors() []Extractor {
	return []Extractor{
		addressExtractor{},
		unitExtractor{},
		contactNameExtractor{},
		callbackNumberExtractor{},
		accessExtractor{},
		issueExtractor{},
		priorityExtractor{},
	}
}

var (
	addressPattern  = regexp.MustCompile(`(?i)\b\d{1,6}(?:\s+[a-z0-9'.-]+){1,4}?\s+(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd|court|ct|place|pl|way)\b`)
	unitPattern     = regexp.MustCompile(`(?i)\b(?:unit|apartment|apt|suite)\s*(?:number\s*)?#?\s*([0-9][a-z0-9-]*|[a-z])\b`)
	namePattern     = regexp.MustCompile(`(?i)\b(?:my name is|this is|i am|i'm)\s+([a-z][a-z'-]+)(?:\s+([a-z][a-z'-]+))?`)
	phonePattern    = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b(\d{3})\)?[-.\s]?(\d{3})[-.\s]?(\d{4})\b`)
	accessPattern   = regexp.MustCompile(`(?i)\b(?:key|keys|lockbox|lock box|door code|gate code|buzzer|super has|superintendent has)\b`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
)

type addressExtractor struct{}

func (addressExtractor) Slot() Slot { return SlotAddress }

func (addressExtractor) Extract(utterance string, _ Facts) string {
	return strings.TrimSpace(addressPattern.FindString(utterance))
}

type unitExtractor struct{}

func (unitExtractor) Slot() Slot { return SlotUnit }

func (unitExtractor) Extract(utterance string, _ Facts) string {
	m := unitPattern.FindStringSubmatch(utterance)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

var nameStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "in": true, "at": true, "on": true, "from": true,
	"with": true, "not": true, "so": true, "very": true, "just": true, "here": true,
	"still": true, "really": true, "calling": true, "having": true, "trying": true,
	"going": true, "looking": true, "about": true, "locked": true, "living": true,
	"renting": true, "your": true, "my": true, "tenant": true, "urgent": true,
	"emergency": true, "sorry": true, "back": true, "out": true, "and": true,
	"is": true, "hoping": true, "also": true, "worried": true, "sure": true,
	"afraid": true, "upset": true, "concerned": true, "freezing": true, "cold": true,
}

type contactNameExtractor struct{}

func (contactNameExtractor) Slot() Slot { return SlotContactName }

func (contactNameExtractor) Extract(utterance string, _ Facts) string {
	m := namePattern.FindStringSubmatch(utterance)
	if m == nil || nameStopWords[strings.ToLower(m[1])] {
		return ""
	}
	name := titleWord(m[1])
	if m[2] != "" && !nameStopWords[strings.ToLower(m[2])] {
		name += " " + titleWord(m[2])
	}
	return name
}

func titleWord(w string) string {
	r := []rune(strings.ToLower(w))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

type callbackNumberExtractor struct{}

func (callbackNumberExtractor) Slot() Slot { return SlotCallbackNumber }

func (callbackNumberExtractor) Extract(utterance string, _ Facts) string {
	m := phonePattern.FindStringSubmatch(utterance)
	if m == nil {
		return ""
	}
	return m[1] + "-" + m[2] + "-" + m[3]
}

type accessExtractor struct{}

func (accessExtractor) Slot() Slot { return SlotAccessInstructions }

func (accessExtractor) Extract(utterance string, _ Facts) string {
	for _, sentence := range sentenceSplitRe.Split(utterance, -1) {
		if accessPattern.MatchString(sentence) {
			return strings.TrimSpace(sentence)
		}
	}
	return ""
}

type issueFamily struct {
	label    string
	keywords []string
}

var issueFamilies = []issueFamily{
	{label: "Heating", keywords: []string{"heat", "heating", "heater", "furnace", "boiler", "radiator", "thermostat"}},
	{label: "Plumbing", keywords: []string{"leak", "leaking", "water", "plumbing", "toilet", "sink", "drain", "pipe", "pipes", "faucet", "sewer", "sewage", "flood", "flooding", "clogged"}},
	{label: "Electrical", keywords: []string{"electric", "electrical", "power", "outlet", "outlets", "breaker", "lights", "wiring", "sparks"}},
	{label: "Pest", keywords: []string{"pest", "pests", "roach", "roaches", "bug", "bugs", "mice", "mouse", "rat", "rats", "bedbugs"}},
	{label: "Appliance", keywords: []string{"fridge", "refrigerator", "stove", "oven", "dishwasher", "washer", "dryer", "microwave", "appliance"}},
	{label: "Lock/Door", keywords: []string{"lock", "locked out", "door", "doorknob", "deadbolt"}},
}

type issueExtractor struct{}

func (issueExtractor) Slot() Slot { return SlotReportedIssue }

func (issueExtractor) Extract(utterance string, _ Facts) string {
	words := normalizeWords(utterance)
	for _, fam := range issueFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(words, " "+kw+" ") {
				return fam.label
			}
		}
	}
	return ""
}

var (
	emergencyPriorityKeywords = []string{
		"no heat", "no heating", "heating not working", "heat not working",
		"flooding", "flood", "water everywhere", "water damage",
		"clogged toilet", "sewer backup", "toilet overflowing", "blocked sewer line", "sewage",
		"fire", "smoke", "gas leak", "carbon monoxide",
		"life threatening", "danger", "emergency",
	}
	urgentPriorityKeywords = []string{"urgent", "asap", "immediately", "right away", "can't wait"}
)

type priorityExtractor struct{}

func (priorityExtractor) Slot() Slot { return SlotPriority }

func (priorityExtractor) Extract(utterance string, _ Facts) string {
	lower := strings.ToLower(utterance)
	for _, kw := range emergencyPriorityKeywords {
		if strings.Contains(lower, kw) {
			return string(PriorityEmergency)
		}
	}
	for _, kw := range urgentPriorityKeywords {
		if strings.Contains(lower, kw) {
			return string(PriorityUrgent)
		}
	}
	return ""
}

// normalizeWords lowercases text and replaces everything except letters,
// digits and apostrophes with single spaces, padded on both ends.
func normalizeWords(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
