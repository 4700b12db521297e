package media

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/foxseedlab/voicelink/internal/fault"
)

type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventStart
	EventMedia
	EventStop
	EventMark
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventStart:
		return "start"
	case EventMedia:
		return "media"
	case EventStop:
		return "stop"
	case EventMark:
		return "mark"
	default:
		return "unknown"
	}
}

type StartEvent struct {
	CallID     string
	StreamSID  string
	Caller     string
	Encoding   string
	SampleRate int
	Channels   int
}

// Event is one decoded inbound media-stream message. Payload is already
// base64-decoded for media events.
type Event struct {
	Kind      EventKind
	StreamSID string
	CallID    string
	Sequence  uint64
	Start     *StartEvent
	Payload   []byte
	MarkName  string
}

// Frame is one outbound chunk of synthesized audio. Seq increases monotonically
// per call and is the ordering marker on the wire.
type Frame struct {
	Seq     uint64
	Payload []byte
}

type envelope struct {
	Event          string     `json:"event"`
	SequenceNumber string     `json:"sequenceNumber,omitempty"`
	StreamSid      string     `json:"streamSid,omitempty"`
	Start          *startBody `json:"start,omitempty"`
	Media          *mediaBody `json:"media,omitempty"`
	Stop           *stopBody  `json:"stop,omitempty"`
	Mark           *markBody  `json:"mark,omitempty"`
	Protocol       string     `json:"protocol,omitempty"`
	Version        string     `json:"version,omitempty"`
}

type startBody struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
	} `json:"mediaFormat"`
}

type mediaBody struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type stopBody struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

type markBody struct {
	Name string `json:"name"`
}

// DecodeEvent parses one inbound message. Any malformed input is reported as a
// protocol violation so callers can log and drop it.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fault.Protocol("invalid json: %v", err)
	}
	ev := Event{StreamSID: env.StreamSid}
	if env.SequenceNumber != "" {
		seq, err := strconv.ParseUint(env.SequenceNumber, 10, 64)
		if err != nil {
			return Event{}, fault.Protocol("invalid sequenceNumber %q", env.SequenceNumber)
		}
		ev.Sequence = seq
	}

	switch env.Event {
	case "connected":
		ev.Kind = EventConnected
	case "start":
		if env.Start == nil || strings.TrimSpace(env.Start.CallSid) == "" {
			return Event{}, fault.Protocol("start event without callSid")
		}
		ev.Kind = EventStart
		ev.CallID = env.Start.CallSid
		if ev.StreamSID == "" {
			ev.StreamSID = env.Start.StreamSid
		}
		ev.Start = &StartEvent{
			CallID:     env.Start.CallSid,
			StreamSID:  ev.StreamSID,
			Caller:     env.Start.CustomParameters["from"],
			Encoding:   env.Start.MediaFormat.Encoding,
			SampleRate: env.Start.MediaFormat.SampleRate,
			Channels:   env.Start.MediaFormat.Channels,
		}
	case "media":
		if env.Media == nil {
			return Event{}, fault.Protocol("media event without media body")
		}
		payload, err := base64.StdEncoding.DecodeString(env.Media.Payload)
		if err != nil {
			return Event{}, fault.Protocol("media payload is not base64: %v", err)
		}
		ev.Kind = EventMedia
		ev.Payload = payload
	case "stop":
		ev.Kind = EventStop
		if env.Stop != nil {
			ev.CallID = env.Stop.CallSid
		}
	case "mark":
		ev.Kind = EventMark
		if env.Mark != nil {
			ev.MarkName = env.Mark.Name
		}
	default:
		return Event{}, fault.Protocol("unknown event %q", env.Event)
	}
	return ev, nil
}

func EncodeMedia(streamSID string, f Frame) ([]byte, error) {
	return json.Marshal(envelope{
		Event:          "media",
		StreamSid:      streamSID,
		SequenceNumber: strconv.FormatUint(f.Seq, 10),
		Media:          &mediaBody{Payload: base64.StdEncoding.EncodeToString(f.Payload)},
	})
}

func EncodeMark(streamSID, name string) ([]byte, error) {
	return json.Marshal(envelope{
		Event:     "mark",
		StreamSid: streamSID,
		Mark:      &markBody{Name: name},
	})
}
