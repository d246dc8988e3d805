// Package beep plays short cues for recording and translation events.
package beep

import "math"

var disabled bool

func Disable() { disabled = true }

const sampleRate = 44100

// Tone is a decaying sine, optionally repeated after a gap.
type Tone struct {
	Freq     float64
	Duration float64 // seconds
	Volume   float64 // 0..1
	Decay    float64
	Repeat   int
	Gap      float64 // seconds
	Next     *Tone   // played right after this one
}

var (
	startTone   = Tone{Freq: 1200, Duration: 0.2, Volume: 0.5, Decay: 60}
	endTone     = Tone{Freq: 900, Duration: 0.2, Volume: 0.5, Decay: 40}
	successTone = Tone{Freq: 880, Duration: 0.09, Volume: 0.4, Decay: 25, Next: &Tone{Freq: 1320, Duration: 0.12, Volume: 0.4, Decay: 25}}
	errorTone   = Tone{Freq: 350, Duration: 0.08, Volume: 0.6, Decay: 30, Repeat: 1, Gap: 0.05}
)

// Samples renders the tone as interleaved signed 16-bit PCM.
func (t Tone) Samples(rate, channels int) []int16 {
	single := t.once(rate, channels)
	gap := make([]int16, int(float64(rate)*t.Gap)*channels)

	out := make([]int16, 0, (len(single)+len(gap))*(t.Repeat+1))
	out = append(out, single...)
	for range t.Repeat {
		out = append(out, gap...)
		out = append(out, single...)
	}
	if t.Next != nil {
		out = append(out, t.Next.Samples(rate, channels)...)
	}
	return out
}

func (t Tone) once(rate, channels int) []int16 {
	n := int(float64(rate) * t.Duration)
	samples := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(rate)
		envelope := math.Exp(-x * t.Decay)
		s := int16(math.Sin(2*math.Pi*t.Freq*x) * 32767 * t.Volume * envelope)
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = s
		}
	}
	return samples
}

// Bytes is Samples in little-endian byte order.
func (t Tone) Bytes(rate, channels int) []byte {
	samples := t.Samples(rate, channels)
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func PlayStart()   { play(startTone) }
func PlayEnd()     { play(endTone) }
func PlaySuccess() { play(successTone) }
func PlayError()   { play(errorTone) }

func play(t Tone) {
	if disabled {
		return
	}
	playTone(t)
}
