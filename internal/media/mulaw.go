package media

const (
	TelephonySampleRate = 8000
	mulawBias           = 0x84
)

var mulawTable = buildMulawTable()

func buildMulawTable() [256]int16 {
	var t [256]int16
	for i := range t {
		u := ^byte(i)
		exponent := (u >> 4) & 0x07
		mantissa := int32(u & 0x0f)
		sample := ((mantissa << 3) + mulawBias) << exponent
		sample -= mulawBias
		if u&0x80 != 0 {
			sample = -sample
		}
		t[i] = int16(sample)
	}
	return t
}

func DecodeMulaw(b byte) int16 {
	return mulawTable[b]
}

// MeanAmplitude returns the mean absolute sample value of a μ-law chunk,
// normalized to [0, 1].
func MeanAmplitude(mulaw []byte) float64 {
	if len(mulaw) == 0 {
		return 0
	}
	var sum float64
	for _, b := range mulaw {
		s := int32(mulawTable[b])
		if s < 0 {
			s = -s
		}
		sum += float64(s)
	}
	return sum / float64(len(mulaw)) / 32768.0
}

// DurationMs converts a μ-law byte count at 8 kHz mono to milliseconds.
func DurationMs(n int) int {
	return n * 1000 / TelephonySampleRate
}

func BytesFor(ms int) int {
	return ms * TelephonySampleRate / 1000
}
