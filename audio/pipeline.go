package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// Pitch/speed multipliers are clamped into this range; the floor avoids
// undefined behavior at and below zero.
const (
	RatioFloor   = 0.01
	RatioCeiling = 2.0
)

// resampleQuality balances CPU cost and artifacts for the tempo and pitch
// stages.
const resampleQuality = 4

// ClampRatio bounds a pitch or speed multiplier.
func ClampRatio(r float64) float64 {
	if r < RatioFloor {
		return RatioFloor
	}
	if r > RatioCeiling {
		return RatioCeiling
	}
	return r
}

// ChainParams is the full parameter set of the processing chain.
type ChainParams struct {
	SkipSilence  bool
	MinSilence   time.Duration
	Speed        float64
	Pitch        float64
	GainMb       *int // nil disables the loudness stage entirely
	BassBoost    bool
	BassStrength int // 0..1000
}

// Pipeline applies the audio processing chain to decoded frames as they
// are pulled by the output. Every stage can be retuned mid-stream without
// interrupting the others.
type Pipeline struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate

	counter  *countingStreamer
	silence  *silenceSkipper
	tempo    *beep.Resampler
	pitch    *beep.Resampler
	loudness *effects.Volume
	head     beep.Streamer

	bassBoost    bool
	bassStrength int
}

// NewPipeline builds the chain over a decoded source stream.
func NewPipeline(src beep.Streamer, sampleRate beep.SampleRate, params ChainParams) *Pipeline {
	p := &Pipeline{
		sampleRate:   sampleRate,
		bassBoost:    params.BassBoost,
		bassStrength: params.BassStrength,
	}

	p.counter = &countingStreamer{src: src}
	p.silence = newSilenceSkipper(p.counter, sampleRate, params.MinSilence, params.SkipSilence)
	p.tempo = beep.ResampleRatio(resampleQuality, ClampRatio(orOne(params.Speed)), p.silence)
	p.pitch = beep.ResampleRatio(resampleQuality, ClampRatio(orOne(params.Pitch)), p.tempo)
	p.loudness = &effects.Volume{Streamer: p.pitch, Base: 10, Volume: 0, Silent: false}
	p.applyGain(params.GainMb)
	p.rebuildHead()

	return p
}

func orOne(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}

// rebuildHead recomposes the tail of the chain. Callers hold p.mu.
func (p *Pipeline) rebuildHead() {
	var head beep.Streamer = p.loudness
	if p.bassBoost {
		head = effects.NewEqualizer(head, p.sampleRate, effects.MonoEqualizerSections{
			bassSection(p.bassStrength),
		})
	}
	p.head = head
}

// bassSection is a low-shelf boost whose gain scales with the configured
// strength (0..1000).
func bassSection(strength int) effects.MonoEqualizerSection {
	if strength < 0 {
		strength = 0
	}
	if strength > 1000 {
		strength = 1000
	}
	gainDb := float64(strength) / 1000 * 12
	return effects.MonoEqualizerSection{
		F0: 100,
		Bf: 80,
		GB: gainDb / 2,
		G0: 0,
		G:  gainDb,
	}
}

func (p *Pipeline) Stream(samples [][2]float64) (n int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head.Stream(samples)
}

func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counter.src.Err()
}

// Position is the media time consumed from the source, independent of
// tempo or silence skipping downstream.
func (p *Pipeline) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleRate.D(p.counter.samples)
}

// Discard consumes d of media time without emitting it: a forward seek.
func (p *Pipeline) Discard(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := p.counter.samples + p.sampleRate.N(d)
	var scratch [512][2]float64
	for p.counter.samples < target {
		n, ok := p.counter.Stream(scratch[:])
		if n == 0 && !ok {
			return
		}
	}
}

// SetSkipSilence toggles the silence-skipping stage.
func (p *Pipeline) SetSkipSilence(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silence.setEnabled(enabled)
}

// SetMinSilence retunes the minimum silence duration (clamped).
func (p *Pipeline) SetMinSilence(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silence.setMinSilence(p.sampleRate, d)
}

// SetSpeed retunes the tempo multiplier (clamped).
func (p *Pipeline) SetSpeed(speed float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tempo.SetRatio(ClampRatio(speed))
}

// SetPitch retunes the pitch multiplier (clamped) without touching speed.
func (p *Pipeline) SetPitch(pitch float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pitch.SetRatio(ClampRatio(pitch))
}

// SetGainMb applies a loudness gain in hundredths of dB; nil releases the
// stage back to unity (normalization disabled).
func (p *Pipeline) SetGainMb(gainMb *int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyGain(gainMb)
}

// applyGain maps hundredths of dB onto the Volume stage. Callers hold p.mu.
func (p *Pipeline) applyGain(gainMb *int) {
	if gainMb == nil {
		p.loudness.Volume = 0
		return
	}
	// Volume is an exponent of Base: amplitude = 10^(dB/20).
	p.loudness.Volume = float64(*gainMb) / 100 / 20
}

// SetBassBoost toggles and retunes the bass boost stage.
func (p *Pipeline) SetBassBoost(enabled bool, strength int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bassBoost = enabled
	p.bassStrength = strength
	p.rebuildHead()
}

// countingStreamer counts samples pulled from the decoded source.
type countingStreamer struct {
	src     beep.Streamer
	samples int
}

func (c *countingStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = c.src.Stream(samples)
	c.samples += n
	return n, ok
}

func (c *countingStreamer) Err() error {
	return c.src.Err()
}
