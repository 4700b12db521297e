package media

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/foxseedlab/voicelink/internal/fault"
)

func TestDecodeEvent_Start(t *testing.T) {
	raw := `{"event":"start","sequenceNumber":"1","streamSid":"MZ1","start":{"streamSid":"MZ1","accountSid":"AC1","callSid":"CA1","tracks":["inbound"],"customParameters":{"from":"+15551234567"},"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}}}`
	ev, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventStart || ev.CallID != "CA1" || ev.StreamSID != "MZ1" || ev.Sequence != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Start == nil || ev.Start.Caller != "+15551234567" || ev.Start.SampleRate != 8000 {
		t.Fatalf("unexpected start body: %+v", ev.Start)
	}
}

func TestDecodeEvent_Media(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0xff, 0x7f, 0x00})
	raw := `{"event":"media","sequenceNumber":"3","streamSid":"MZ1","media":{"track":"inbound","chunk":"1","timestamp":"5","payload":"` + payload + `"}}`
	ev, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventMedia || len(ev.Payload) != 3 || ev.Payload[2] != 0x00 {
		t.Fatalf("unexpected media event: %+v", ev)
	}
}

func TestDecodeEvent_Stop(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"stop","streamSid":"MZ1","stop":{"accountSid":"AC1","callSid":"CA1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventStop || ev.CallID != "CA1" {
		t.Fatalf("unexpected stop event: %+v", ev)
	}
}

func TestDecodeEvent_ProtocolViolations(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"event":`,
		"unknown event": `{"event":"dtmf"}`,
		"start no call": `{"event":"start","start":{"streamSid":"MZ1"}}`,
		"media no body": `{"event":"media","streamSid":"MZ1"}`,
		"media bad b64": `{"event":"media","media":{"payload":"***"}}`,
		"bad sequence":  `{"event":"connected","sequenceNumber":"x"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(raw))
			if !fault.IsProtocol(err) {
				t.Fatalf("expected protocol violation, got %v", err)
			}
		})
	}
}

func TestEncodeMedia(t *testing.T) {
	b, err := EncodeMedia("MZ1", Frame{Seq: 7, Payload: []byte("abc")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got["event"] != "media" || got["streamSid"] != "MZ1" || got["sequenceNumber"] != "7" {
		t.Fatalf("unexpected envelope: %s", b)
	}
	m := got["media"].(map[string]any)
	if m["payload"] != base64.StdEncoding.EncodeToString([]byte("abc")) {
		t.Fatalf("unexpected payload: %v", m["payload"])
	}
}

func TestEncodeMark(t *testing.T) {
	b, err := EncodeMark("MZ1", "reply-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"event":"mark","streamSid":"MZ1","mark":{"name":"reply-1"}}` {
		t.Fatalf("unexpected mark: %s", b)
	}
}

func TestMeanAmplitude(t *testing.T) {
	silence := []byte{0xff, 0xff, 0x7f, 0x7f}
	if got := MeanAmplitude(silence); got != 0 {
		t.Fatalf("expected silence to be 0, got %f", got)
	}
	loud := []byte{0x00, 0x80}
	if got := MeanAmplitude(loud); got < 0.9 {
		t.Fatalf("expected full-scale amplitude, got %f", got)
	}
	if MeanAmplitude(nil) != 0 {
		t.Fatal("expected empty chunk to be 0")
	}
}

func TestDurationConversions(t *testing.T) {
	if DurationMs(8000) != 1000 || BytesFor(20) != 160 {
		t.Fatal("unexpected 8 kHz conversion")
	}
}
