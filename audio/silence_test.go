package audio

import (
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
)

type sliceStreamer struct {
	samples [][2]float64
	pos     int
}

func (s *sliceStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := copy(out, s.samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }

func drain(t *testing.T, s beep.Streamer) [][2]float64 {
	t.Helper()
	var out [][2]float64
	buf := make([][2]float64, 64)
	for {
		n, ok := s.Stream(buf)
		out = append(out, buf[:n]...)
		if !ok {
			return out
		}
	}
}

func loudRun(n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{0.5, 0.5}
	}
	return out
}

func quietRun(n int) [][2]float64 {
	return make([][2]float64, n)
}

func TestSilenceSkipperKeepsMinimumThenDrops(t *testing.T) {
	const sampleRate = beep.SampleRate(1000)
	// 1s of silence between two loud stretches, minimum 100ms = 100 samples.
	src := &sliceStreamer{samples: append(append(loudRun(50), quietRun(1000)...), loudRun(50)...)}
	s := newSilenceSkipper(src, sampleRate, 100*time.Millisecond, true)

	out := drain(t, s)
	want := 50 + 100 + 50
	if len(out) != want {
		t.Fatalf("got %d samples, want %d", len(out), want)
	}
}

func TestSilenceSkipperDisabledPassesThrough(t *testing.T) {
	const sampleRate = beep.SampleRate(1000)
	src := &sliceStreamer{samples: append(loudRun(10), quietRun(500)...)}
	s := newSilenceSkipper(src, sampleRate, 100*time.Millisecond, false)

	out := drain(t, s)
	if len(out) != 510 {
		t.Fatalf("got %d samples, want 510", len(out))
	}
}

func TestSilenceSkipperShortSilenceSurvives(t *testing.T) {
	const sampleRate = beep.SampleRate(1000)
	// 50ms of silence is below the 100ms minimum and must not be cut.
	src := &sliceStreamer{samples: append(append(loudRun(20), quietRun(50)...), loudRun(20)...)}
	s := newSilenceSkipper(src, sampleRate, 100*time.Millisecond, true)

	out := drain(t, s)
	if len(out) != 90 {
		t.Fatalf("got %d samples, want 90", len(out))
	}
}

func TestSetMinSilenceClamped(t *testing.T) {
	const sampleRate = beep.SampleRate(1000)
	s := newSilenceSkipper(&sliceStreamer{}, sampleRate, 0, true)
	if got := s.keep; got != sampleRate.N(MinSilenceFloor) {
		t.Errorf("keep = %d, want floor %d", got, sampleRate.N(MinSilenceFloor))
	}

	s.setMinSilence(sampleRate, time.Minute)
	if got := s.keep; got != sampleRate.N(MinSilenceCeiling) {
		t.Errorf("keep = %d, want ceiling %d", got, sampleRate.N(MinSilenceCeiling))
	}
}
