package audio

import (
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
)

func TestClampRatio(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-1, RatioFloor},
		{0, RatioFloor},
		{0.005, RatioFloor},
		{0.5, 0.5},
		{1, 1},
		{2, 2},
		{2.5, RatioCeiling},
		{100, RatioCeiling},
	}
	for _, tt := range tests {
		if got := ClampRatio(tt.in); got != tt.want {
			t.Errorf("ClampRatio(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPipelinePositionTracksSource(t *testing.T) {
	const sampleRate = beep.SampleRate(1000)
	src := &sliceStreamer{samples: loudRun(500)}
	p := NewPipeline(src, sampleRate, ChainParams{Speed: 1, Pitch: 1})

	buf := make([][2]float64, 250)
	p.Stream(buf)

	// The position reflects source media time. The resampler stages may
	// read slightly ahead, so allow a small margin.
	got := p.Position()
	if got < 250*time.Millisecond || got > 300*time.Millisecond {
		t.Errorf("position = %v, want about 250ms", got)
	}
}

func TestPipelineDiscardAdvancesPosition(t *testing.T) {
	const sampleRate = beep.SampleRate(1000)
	src := &sliceStreamer{samples: loudRun(1000)}
	p := NewPipeline(src, sampleRate, ChainParams{Speed: 1, Pitch: 1})

	p.Discard(300 * time.Millisecond)

	if got := p.Position(); got != 300*time.Millisecond {
		t.Errorf("position after discard = %v, want 300ms", got)
	}
}

func TestPipelineGainStage(t *testing.T) {
	const sampleRate = beep.SampleRate(1000)
	src := &sliceStreamer{samples: loudRun(100)}
	gain := 600 // +6 dB, roughly double amplitude
	p := NewPipeline(src, sampleRate, ChainParams{Speed: 1, Pitch: 1, GainMb: &gain})

	buf := make([][2]float64, 10)
	n, _ := p.Stream(buf)
	if n == 0 {
		t.Fatal("no samples streamed")
	}
	if buf[0][0] <= 0.5 {
		t.Errorf("sample = %v, want amplified above 0.5", buf[0][0])
	}

	// Releasing the gain returns the stage to unity.
	p.SetGainMb(nil)
	n, _ = p.Stream(buf)
	if n == 0 {
		t.Fatal("no samples streamed")
	}
	if buf[0][0] < 0.45 || buf[0][0] > 0.55 {
		t.Errorf("sample = %v, want near unity 0.5", buf[0][0])
	}
}
