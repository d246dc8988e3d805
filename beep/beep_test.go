package beep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToneSamples(t *testing.T) {
	tone := Tone{Freq: 1000, Duration: 0.01, Volume: 0.5, Decay: 10}
	mono := tone.Samples(1000, 1)
	stereo := tone.Samples(1000, 2)
	assert.Len(t, mono, 10)
	assert.Len(t, stereo, 20)
	for i := range mono {
		assert.Equal(t, mono[i], stereo[i*2])
		assert.Equal(t, mono[i], stereo[i*2+1])
	}
}

func TestToneRepeatAndNext(t *testing.T) {
	tone := Tone{Freq: 500, Duration: 0.01, Volume: 0.5, Repeat: 1, Gap: 0.005}
	assert.Len(t, tone.Samples(1000, 1), 10+5+10)

	tone.Next = &Tone{Freq: 700, Duration: 0.02, Volume: 0.5}
	assert.Len(t, tone.Samples(1000, 1), 10+5+10+20)
}

func TestToneVolumeBound(t *testing.T) {
	for _, tone := range []Tone{startTone, endTone, successTone, errorTone} {
		peak := 0
		for _, s := range tone.Samples(sampleRate, 1) {
			peak = max(peak, abs(int(s)))
		}
		assert.LessOrEqual(t, peak, int(32767*tone.Volume)+1)
		assert.Positive(t, peak)
	}
}

func TestBytesLittleEndian(t *testing.T) {
	tone := Tone{Freq: 250, Duration: 0.004, Volume: 1}
	samples := tone.Samples(1000, 1)
	b := tone.Bytes(1000, 1)
	assert.Len(t, b, len(samples)*2)
	for i, s := range samples {
		assert.Equal(t, s, int16(uint16(b[i*2])|uint16(b[i*2+1])<<8))
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
