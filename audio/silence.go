package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep/v2"
)

// Silence-skip bounds: the configured minimum silence duration is clamped
// into this window before use.
const (
	MinSilenceFloor   = time.Millisecond
	MinSilenceCeiling = 2000 * time.Millisecond

	// Samples below this amplitude count as silence (256/32768, the
	// usual 16-bit threshold level).
	silenceThreshold = 256.0 / 32768.0
)

// silenceSkipper fast-forwards through silence: the first minimum-silence
// worth of quiet samples is kept, the remainder of the quiet stretch is
// dropped.
type silenceSkipper struct {
	src     beep.Streamer
	enabled bool
	keep    int // silent samples retained per stretch
	run     int // consecutive silent samples seen so far

	scratch [512][2]float64
	pending [][2]float64
}

func newSilenceSkipper(src beep.Streamer, sampleRate beep.SampleRate, minSilence time.Duration, enabled bool) *silenceSkipper {
	s := &silenceSkipper{src: src, enabled: enabled}
	s.setMinSilence(sampleRate, minSilence)
	return s
}

func (s *silenceSkipper) setMinSilence(sampleRate beep.SampleRate, d time.Duration) {
	if d < MinSilenceFloor {
		d = MinSilenceFloor
	}
	if d > MinSilenceCeiling {
		d = MinSilenceCeiling
	}
	s.keep = sampleRate.N(d)
}

func (s *silenceSkipper) setEnabled(enabled bool) {
	s.enabled = enabled
	if !enabled {
		s.run = 0
	}
}

func isSilent(sample [2]float64) bool {
	return math.Abs(sample[0]) < silenceThreshold && math.Abs(sample[1]) < silenceThreshold
}

func (s *silenceSkipper) Stream(samples [][2]float64) (n int, ok bool) {
	if !s.enabled {
		return s.src.Stream(samples)
	}

	for n < len(samples) {
		if len(s.pending) == 0 {
			want := len(samples) - n
			if want > len(s.scratch) {
				want = len(s.scratch)
			}
			got, more := s.src.Stream(s.scratch[:want])
			if got == 0 {
				if n > 0 {
					return n, true
				}
				return 0, more
			}
			s.pending = s.scratch[:got]
		}

		for len(s.pending) > 0 && n < len(samples) {
			sample := s.pending[0]
			s.pending = s.pending[1:]

			if isSilent(sample) {
				s.run++
				if s.run > s.keep {
					continue // fast-forward
				}
			} else {
				s.run = 0
			}
			samples[n] = sample
			n++
		}
	}
	return n, true
}

func (s *silenceSkipper) Err() error {
	return s.src.Err()
}
