package vad

import (
	"time"

	"github.com/foxseedlab/voicelink/internal/media"
)

const prerollMs = 200

type Config struct {
	EnergyThreshold float64
	EndSilence      time.Duration
	MinSpeech       time.Duration
	MaxSegment      time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnergyThreshold: 0.01,
		EndSilence:      600 * time.Millisecond,
		MinSpeech:       300 * time.Millisecond,
		MaxSegment:      8 * time.Second,
	}
}

// Detector accumulates inbound μ-law audio and cuts it into utterance segments.
// Time is measured in audio duration, not wall clock, so results depend only on
// the bytes pushed. A Detector is not safe for concurrent use.
type Detector struct {
	cfg       Config
	preroll   []byte
	buf       []byte
	speaking  bool
	speechMs  int
	silenceMs int
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Push appends one chunk and returns a complete segment once the speaker has
// finished, or once the segment reaches MaxSegment.
func (d *Detector) Push(chunk []byte) ([]byte, bool) {
	if len(chunk) == 0 {
		return nil, false
	}
	voiced := media.MeanAmplitude(chunk) > d.cfg.EnergyThreshold
	dur := media.DurationMs(len(chunk))

	if !d.speaking {
		if !voiced {
			d.keepPreroll(chunk)
			return nil, false
		}
		d.speaking = true
		d.buf = append(d.buf[:0], d.preroll...)
		d.preroll = d.preroll[:0]
		d.speechMs = 0
		d.silenceMs = 0
	}

	d.buf = append(d.buf, chunk...)
	if voiced {
		d.speechMs += dur
		d.silenceMs = 0
	} else {
		d.silenceMs += dur
	}

	if d.silenceMs >= int(d.cfg.EndSilence.Milliseconds()) {
		if d.speechMs >= int(d.cfg.MinSpeech.Milliseconds()) {
			return d.cut(), true
		}
		d.reset()
		return nil, false
	}
	if d.cfg.MaxSegment > 0 && media.DurationMs(len(d.buf)) >= int(d.cfg.MaxSegment.Milliseconds()) {
		return d.cut(), true
	}
	return nil, false
}

// Flush returns whatever speech is buffered, if it is long enough to be worth
// recognizing.
func (d *Detector) Flush() ([]byte, bool) {
	if !d.speaking || d.speechMs < int(d.cfg.MinSpeech.Milliseconds()) {
		d.reset()
		return nil, false
	}
	return d.cut(), true
}

func (d *Detector) Speaking() bool {
	return d.speaking
}

func (d *Detector) Buffered() int {
	return len(d.buf)
}

func (d *Detector) cut() []byte {
	seg := make([]byte, len(d.buf))
	copy(seg, d.buf)
	d.reset()
	return seg
}

func (d *Detector) reset() {
	d.buf = d.buf[:0]
	d.speaking = false
	d.speechMs = 0
	d.silenceMs = 0
}

func (d *Detector) keepPreroll(chunk []byte) {
	d.preroll = append(d.preroll, chunk...)
	limit := media.BytesFor(prerollMs)
	if over := len(d.preroll) - limit; over > 0 {
		d.preroll = append(d.preroll[:0], d.preroll[over:]...)
	}
}
