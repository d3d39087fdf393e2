package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"tunetube/logger"
)

// Input is a decodable media stream plus the hints needed to pick a
// decoder.
type Input struct {
	Stream   io.ReadCloser
	MimeType string
	Name     string
}

// Callbacks fire from the playback goroutine when a stream runs out.
type Callbacks struct {
	OnFinished func()
	OnError    func(error)
}

const speakerBuffer = 100 * time.Millisecond

// SpeakerSink renders decoded audio through the system output device. One
// track plays at a time; opening a session displaces the previous one.
type SpeakerSink struct {
	mu       sync.Mutex
	initRate beep.SampleRate
	current  *Session
}

func NewSpeakerSink() *SpeakerSink {
	return &SpeakerSink{}
}

// Open decodes the input and starts rendering it immediately.
func (s *SpeakerSink) Open(ctx context.Context, in Input, params ChainParams, cb Callbacks) (*Session, error) {
	if err := ctx.Err(); err != nil {
		in.Stream.Close()
		return nil, err
	}

	dec, format, err := Decode(in.Stream, in.MimeType, in.Name)
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.stop()
		s.current = nil
	}
	if s.initRate != format.SampleRate {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBuffer)); err != nil {
			dec.Close()
			return nil, fmt.Errorf("open sink: %w", err)
		}
		s.initRate = format.SampleRate
	}

	sess := newSession(dec, format, params, cb)
	s.current = sess
	speaker.Play(sess.ctrl)
	logger.Debug("sink session started",
		logger.String("name", in.Name),
		logger.Int("sample_rate", int(format.SampleRate)))
	return sess, nil
}

// Session is one playing track on the speaker.
type Session struct {
	dec      beep.StreamSeekCloser
	format   beep.Format
	pipeline *Pipeline
	ctrl     *beep.Ctrl

	mu      sync.Mutex
	stopped bool
}

func newSession(dec beep.StreamSeekCloser, format beep.Format, params ChainParams, cb Callbacks) *Session {
	sess := &Session{dec: dec, format: format}
	sess.pipeline = NewPipeline(dec, format.SampleRate, params)
	sess.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(sess.pipeline, beep.Callback(func() {
			sess.finished(cb)
		})),
	}
	return sess
}

func (s *Session) finished(cb Callbacks) {
	s.mu.Lock()
	stopped := s.stopped
	s.stopped = true
	s.mu.Unlock()
	if stopped {
		return
	}
	s.dec.Close()
	if err := s.dec.Err(); err != nil {
		if cb.OnError != nil {
			go cb.OnError(err)
		}
		return
	}
	if cb.OnFinished != nil {
		go cb.OnFinished()
	}
}

// stop detaches the session from the speaker without firing callbacks.
func (s *Session) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	speaker.Lock()
	s.ctrl.Streamer = nil
	speaker.Unlock()
	s.dec.Close()
}

func (s *Session) SetPaused(paused bool) {
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
}

func (s *Session) Position() time.Duration {
	return s.pipeline.Position()
}

func (s *Session) Duration() time.Duration {
	n := s.dec.Len()
	if n <= 0 {
		return 0
	}
	return s.format.SampleRate.D(n)
}

// SeekTo fast-forwards within the stream. Rewinding is reported as
// unsupported; the caller reopens the track instead.
func (s *Session) SeekTo(target time.Duration) bool {
	speaker.Lock()
	defer speaker.Unlock()

	current := s.pipeline.Position()
	if target < current {
		return false
	}
	s.pipeline.Discard(target - current)
	return true
}

func (s *Session) SetSkipSilence(enabled bool) { s.pipeline.SetSkipSilence(enabled) }

func (s *Session) SetMinSilence(d time.Duration) { s.pipeline.SetMinSilence(d) }

func (s *Session) SetSpeed(speed float64) { s.pipeline.SetSpeed(speed) }

func (s *Session) SetPitch(pitch float64) { s.pipeline.SetPitch(pitch) }

func (s *Session) SetGainMb(gainMb *int) { s.pipeline.SetGainMb(gainMb) }

func (s *Session) SetBassBoost(enabled bool, strength int) {
	s.pipeline.SetBassBoost(enabled, strength)
}

func (s *Session) Close() error {
	s.stop()
	return nil
}
