package player

import (
	"context"
	"sync"
	"time"

	"tunetube/audio"
	"tunetube/logger"
	"tunetube/model"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateBuffering State = "buffering"
	StateReady     State = "ready"
	StateEnded     State = "ended"
)

// Pressing previous within this much of the track start goes to the
// previous item; later than that it restarts the current one.
const previousRestartThreshold = 3 * time.Second

// SinkSession is one prepared track on the output device.
type SinkSession interface {
	SetPaused(paused bool)
	Position() time.Duration
	Duration() time.Duration
	SeekTo(target time.Duration) bool
	SetSkipSilence(enabled bool)
	SetMinSilence(d time.Duration)
	SetSpeed(speed float64)
	SetPitch(pitch float64)
	SetGainMb(gainMb *int)
	SetBassBoost(enabled bool, strength int)
	Close() error
}

// Sink turns a decodable input into a playing session.
type Sink interface {
	Open(ctx context.Context, in audio.Input, params audio.ChainParams, cb audio.Callbacks) (SinkSession, error)
}

// MediaOpener produces the decodable stream for a track.
type MediaOpener interface {
	OpenMedia(ctx context.Context, trackID string) (audio.Input, error)
}

// GainFunc computes the loudness gain to apply to a track, or nil when
// normalization is off.
type GainFunc func(trackID string) *int

// Options configures a new Engine.
type Options struct {
	Opener MediaOpener
	Sink   Sink
	Bus    *Bus
	Stats  *StatsRecorder
	Gain   GainFunc
}

// Engine is the playback state machine: it owns the queue, the current
// sink session and the transport rules around them.
type Engine struct {
	opener MediaOpener
	sink   Sink
	bus    *Bus
	stats  *StatsRecorder
	gain   GainFunc

	mu            sync.Mutex
	queue         []model.Track
	index         int
	state         State
	playWhenReady bool
	trackLoop     bool
	queueLoop     bool
	skipOnError   bool
	params        audio.ChainParams
	session       SinkSession
	sessionGen    int
	pendingSeek   time.Duration

	timer *SleepTimer
}

func NewEngine(opts Options) *Engine {
	bus := opts.Bus
	if bus == nil {
		bus = NewBus()
	}
	gain := opts.Gain
	if gain == nil {
		gain = func(string) *int { return nil }
	}
	e := &Engine{
		opener: opts.Opener,
		sink:   opts.Sink,
		bus:    bus,
		stats:  opts.Stats,
		gain:   gain,
		state:  StateIdle,
		index:  -1,
		params: audio.ChainParams{Speed: 1, Pitch: 1},
	}
	e.timer = NewSleepTimer(func() { e.SetPlayWhenReady(false) })
	return e
}

// Bus exposes the engine's event bus for subscribers.
func (e *Engine) Bus() *Bus { return e.bus }

// Timer exposes the sleep timer.
func (e *Engine) Timer() *SleepTimer { return e.timer }

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State         State         `json:"state"`
	Index         int           `json:"index"`
	Queue         []model.Track `json:"queue"`
	Position      time.Duration `json:"position"`
	Duration      time.Duration `json:"duration"`
	PlayWhenReady bool          `json:"playWhenReady"`
	TrackLoop     bool          `json:"trackLoop"`
	QueueLoop     bool          `json:"queueLoop"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:         e.state,
		Index:         e.index,
		Queue:         append([]model.Track(nil), e.queue...),
		PlayWhenReady: e.playWhenReady,
		TrackLoop:     e.trackLoop,
		QueueLoop:     e.queueLoop,
	}
	if e.session != nil {
		st.Position = e.session.Position()
		st.Duration = e.session.Duration()
	} else if e.state == StateBuffering {
		st.Position = e.pendingSeek
	}
	return st
}

// Current returns the current track, or nil when the queue is empty.
func (e *Engine) Current() *model.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked()
}

func (e *Engine) currentLocked() *model.Track {
	if e.index < 0 || e.index >= len(e.queue) {
		return nil
	}
	t := e.queue[e.index]
	return &t
}

// Position reports the media position of the current session.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return e.pendingSeek
	}
	return e.session.Position()
}

// Remaining is the number of queue items after the current one.
func (e *Engine) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index < 0 {
		return len(e.queue)
	}
	return len(e.queue) - 1 - e.index
}

// QueueIDs lists the ids of every queued track in order.
func (e *Engine) QueueIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.queue))
	for i, t := range e.queue {
		ids[i] = t.ID
	}
	return ids
}

// Load replaces the queue and starts preparing the track at index.
func (e *Engine) Load(tracks []model.Track, index int, playWhenReady bool) {
	e.mu.Lock()
	if index < 0 {
		index = 0
	}
	if index >= len(tracks) {
		index = len(tracks) - 1
	}
	e.queue = append([]model.Track(nil), tracks...)
	e.index = index
	e.playWhenReady = playWhenReady
	evs := []Event{e.eventLocked(EventTimelineChanged)}
	evs = append(evs, e.prepareLocked(0, ReasonUser)...)
	e.mu.Unlock()
	e.publish(evs)
}

// Restore rebuilds the queue prepared but paused at a saved position.
func (e *Engine) Restore(tracks []model.Track, index int, position time.Duration) {
	if len(tracks) == 0 {
		return
	}
	e.mu.Lock()
	if index < 0 || index >= len(tracks) {
		index = 0
		position = 0
	}
	e.queue = append([]model.Track(nil), tracks...)
	e.index = index
	e.playWhenReady = false
	evs := []Event{e.eventLocked(EventTimelineChanged)}
	evs = append(evs, e.prepareLocked(position, ReasonUser)...)
	e.mu.Unlock()
	e.publish(evs)
}

// PlayAt jumps to an item in the queue.
func (e *Engine) PlayAt(index int) {
	e.mu.Lock()
	if index < 0 || index >= len(e.queue) {
		e.mu.Unlock()
		return
	}
	e.index = index
	e.playWhenReady = true
	evs := e.prepareLocked(0, ReasonUser)
	e.mu.Unlock()
	e.publish(evs)
}

// SetPlayWhenReady starts or pauses playback without touching the queue.
func (e *Engine) SetPlayWhenReady(play bool) {
	e.mu.Lock()
	evs := e.setPlayWhenReadyLocked(play)
	e.mu.Unlock()
	e.publish(evs)
}

func (e *Engine) setPlayWhenReadyLocked(play bool) []Event {
	if e.playWhenReady == play {
		return nil
	}
	e.playWhenReady = play
	if e.session != nil {
		e.session.SetPaused(!play)
	}
	if e.stats != nil {
		e.stats.SetPlaying(play && e.state == StateReady)
	}
	if play && e.state == StateEnded {
		// restarting after the queue ran out replays the last item
		return append([]Event{e.eventLocked(EventPlayWhenReadyChanged)},
			e.prepareLocked(0, ReasonUser)...)
	}
	return []Event{e.eventLocked(EventPlayWhenReadyChanged)}
}

// PlayPause toggles play/pause.
func (e *Engine) PlayPause() {
	e.mu.Lock()
	evs := e.setPlayWhenReadyLocked(!e.playWhenReady)
	e.mu.Unlock()
	e.publish(evs)
}

// Next advances to the following item; at the end of the queue it wraps
// only when queue looping is on.
func (e *Engine) Next() {
	e.mu.Lock()
	evs := e.advanceLocked(ReasonUser, false)
	e.mu.Unlock()
	e.publish(evs)
}

// Previous goes back one item, or restarts the current one when it is
// already a few seconds in.
func (e *Engine) Previous() {
	e.mu.Lock()
	pos := time.Duration(0)
	if e.session != nil {
		pos = e.session.Position()
	}
	if pos > previousRestartThreshold || e.index <= 0 {
		evs := e.prepareLocked(0, ReasonUser)
		e.mu.Unlock()
		e.publish(evs)
		return
	}
	e.index--
	evs := e.prepareLocked(0, ReasonUser)
	e.mu.Unlock()
	e.publish(evs)
}

// SeekTo moves within the current track. Backward seeks reopen the track
// at the target position.
func (e *Engine) SeekTo(target time.Duration) {
	if target < 0 {
		target = 0
	}
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return
	}
	if e.session.SeekTo(target) {
		e.mu.Unlock()
		return
	}
	evs := e.prepareLocked(target, ReasonUser)
	e.mu.Unlock()
	e.publish(evs)
}

// Stop tears the session down and clears the queue.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.closeSessionLocked()
	e.queue = nil
	e.index = -1
	e.playWhenReady = false
	e.state = StateIdle
	if e.stats != nil {
		e.stats.Flush()
	}
	evs := []Event{e.eventLocked(EventTimelineChanged), e.eventLocked(EventStateChanged)}
	e.mu.Unlock()
	e.publish(evs)
}

// Enqueue appends tracks to the end of the queue.
func (e *Engine) Enqueue(tracks ...model.Track) {
	if len(tracks) == 0 {
		return
	}
	e.mu.Lock()
	e.queue = append(e.queue, tracks...)
	var evs []Event
	if e.index < 0 {
		e.index = 0
		evs = e.prepareLocked(0, ReasonUser)
	}
	evs = append(evs, e.eventLocked(EventTimelineChanged))
	e.mu.Unlock()
	e.publish(evs)
}

// EnqueueNext inserts tracks directly after the current item.
func (e *Engine) EnqueueNext(tracks ...model.Track) {
	if len(tracks) == 0 {
		return
	}
	e.mu.Lock()
	at := e.index + 1
	if at > len(e.queue) {
		at = len(e.queue)
	}
	e.queue = append(e.queue[:at], append(append([]model.Track(nil), tracks...), e.queue[at:]...)...)
	var evs []Event
	if e.index < 0 {
		e.index = 0
		evs = e.prepareLocked(0, ReasonUser)
	}
	evs = append(evs, e.eventLocked(EventTimelineChanged))
	e.mu.Unlock()
	e.publish(evs)
}

// Remove deletes a queue item. Removing the current item advances to the
// next one.
func (e *Engine) Remove(index int) {
	e.mu.Lock()
	if index < 0 || index >= len(e.queue) {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue[:index], e.queue[index+1:]...)
	var evs []Event
	switch {
	case index < e.index:
		e.index--
	case index == e.index:
		if e.index >= len(e.queue) {
			e.index = len(e.queue) - 1
		}
		evs = e.prepareLocked(0, ReasonUser)
	}
	evs = append(evs, e.eventLocked(EventTimelineChanged))
	e.mu.Unlock()
	e.publish(evs)
}

// Move reorders the queue without interrupting playback.
func (e *Engine) Move(from, to int) {
	e.mu.Lock()
	if from < 0 || from >= len(e.queue) || to < 0 || to >= len(e.queue) || from == to {
		e.mu.Unlock()
		return
	}
	item := e.queue[from]
	rest := append(e.queue[:from], e.queue[from+1:]...)
	e.queue = append(rest[:to], append([]model.Track{item}, rest[to:]...)...)
	switch {
	case from == e.index:
		e.index = to
	case from < e.index && to >= e.index:
		e.index--
	case from > e.index && to <= e.index:
		e.index++
	}
	ev := e.eventLocked(EventTimelineChanged)
	e.mu.Unlock()
	e.publish([]Event{ev})
}

// SetTrackLoop toggles repeating the current item. Track loop wins over
// queue loop when both are on.
func (e *Engine) SetTrackLoop(on bool) {
	e.mu.Lock()
	e.trackLoop = on
	e.mu.Unlock()
}

// SetQueueLoop toggles wrapping from the last item back to the first.
func (e *Engine) SetQueueLoop(on bool) {
	e.mu.Lock()
	e.queueLoop = on
	e.mu.Unlock()
}

// SetSkipOnError toggles automatically advancing past failed items.
func (e *Engine) SetSkipOnError(on bool) {
	e.mu.Lock()
	e.skipOnError = on
	e.mu.Unlock()
}

// SetSkipSilence toggles silence skipping on the current and future
// sessions.
func (e *Engine) SetSkipSilence(on bool) {
	e.mu.Lock()
	e.params.SkipSilence = on
	if e.session != nil {
		e.session.SetSkipSilence(on)
	}
	e.mu.Unlock()
}

// SetMinSilence retunes the minimum silence duration.
func (e *Engine) SetMinSilence(d time.Duration) {
	e.mu.Lock()
	e.params.MinSilence = d
	if e.session != nil {
		e.session.SetMinSilence(d)
	}
	e.mu.Unlock()
}

// SetSpeed retunes the playback speed.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.params.Speed = audio.ClampRatio(speed)
	if e.session != nil {
		e.session.SetSpeed(speed)
	}
	e.mu.Unlock()
}

// SetPitch retunes the playback pitch.
func (e *Engine) SetPitch(pitch float64) {
	e.mu.Lock()
	e.params.Pitch = audio.ClampRatio(pitch)
	if e.session != nil {
		e.session.SetPitch(pitch)
	}
	e.mu.Unlock()
}

// SetBassBoost toggles the bass boost stage.
func (e *Engine) SetBassBoost(on bool, strength int) {
	e.mu.Lock()
	e.params.BassBoost = on
	e.params.BassStrength = strength
	if e.session != nil {
		e.session.SetBassBoost(on, strength)
	}
	e.mu.Unlock()
}

// RefreshGain recomputes and applies the loudness gain for the current
// track, for when normalization settings change mid-play.
func (e *Engine) RefreshGain() {
	e.mu.Lock()
	track := e.currentLocked()
	if track == nil || e.session == nil {
		e.mu.Unlock()
		return
	}
	gain := e.gain(track.ID)
	e.params.GainMb = gain
	e.session.SetGainMb(gain)
	e.mu.Unlock()
}

// Snapshot captures the queue for persistence.
func (e *Engine) Snapshot() (tracks []model.Track, index int, position time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tracks = append([]model.Track(nil), e.queue...)
	index = e.index
	if e.session != nil {
		position = e.session.Position()
	} else {
		position = e.pendingSeek
	}
	return tracks, index, position
}

// advanceLocked moves to the next item per the repeat rules. forEnded is
// true when the current item finished on its own.
func (e *Engine) advanceLocked(reason TransitionReason, forEnded bool) []Event {
	if len(e.queue) == 0 {
		return nil
	}
	if forEnded && e.trackLoop {
		return e.prepareLocked(0, ReasonRepeat)
	}
	if e.index+1 < len(e.queue) {
		e.index++
		return e.prepareLocked(0, reason)
	}
	if e.queueLoop {
		e.index = 0
		return e.prepareLocked(0, ReasonRepeat)
	}
	if !forEnded {
		return nil
	}
	e.closeSessionLocked()
	e.state = StateEnded
	var evs []Event
	if e.playWhenReady {
		// the play control must read as stopped once the queue runs out
		e.playWhenReady = false
		evs = append(evs, e.eventLocked(EventPlayWhenReadyChanged))
	}
	if e.stats != nil {
		e.stats.Flush()
	}
	return append(evs, e.eventLocked(EventStateChanged))
}

// prepareLocked opens the item at the current index. The sink open runs
// asynchronously; a bumped generation cancels stale completions.
func (e *Engine) prepareLocked(startPos time.Duration, reason TransitionReason) []Event {
	e.closeSessionLocked()
	track := e.currentLocked()
	if track == nil {
		e.state = StateIdle
		return []Event{e.eventLocked(EventStateChanged)}
	}

	e.state = StateBuffering
	e.pendingSeek = startPos
	e.sessionGen++
	gen := e.sessionGen

	if e.stats != nil {
		e.stats.TrackStarted(track.ID, false)
	}

	go e.openAsync(gen, *track, startPos)

	ev := e.eventLocked(EventItemTransitioned)
	ev.Reason = reason
	return []Event{ev, e.eventLocked(EventStateChanged)}
}

func (e *Engine) openAsync(gen int, track model.Track, startPos time.Duration) {
	ctx := context.Background()
	in, err := e.opener.OpenMedia(ctx, track.ID)
	if err != nil {
		e.completeWithError(gen, track, err)
		return
	}

	params := e.sessionParams(track.ID)
	cb := audio.Callbacks{
		OnFinished: func() { e.sessionEnded(gen) },
		OnError:    func(err error) { e.sessionFailed(gen, track, err) },
	}
	sess, err := e.sink.Open(ctx, in, params, cb)
	if err != nil {
		e.completeWithError(gen, track, err)
		return
	}

	e.mu.Lock()
	if gen != e.sessionGen {
		e.mu.Unlock()
		sess.Close()
		return
	}
	e.session = sess
	if startPos > 0 {
		sess.SeekTo(startPos)
	}
	e.pendingSeek = 0
	sess.SetPaused(!e.playWhenReady)
	e.state = StateReady
	if e.stats != nil {
		e.stats.SetPlaying(e.playWhenReady)
	}
	ev := e.eventLocked(EventStateChanged)
	e.mu.Unlock()
	e.publish([]Event{ev})
}

func (e *Engine) sessionParams(trackID string) audio.ChainParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	params := e.params
	params.GainMb = e.gain(trackID)
	e.params.GainMb = params.GainMb
	return params
}

// sessionEnded fires when the sink drains a track to its end.
func (e *Engine) sessionEnded(gen int) {
	e.mu.Lock()
	if gen != e.sessionGen {
		e.mu.Unlock()
		return
	}
	e.session = nil
	evs := e.advanceLocked(ReasonAuto, true)
	e.mu.Unlock()
	e.publish(evs)
}

// sessionFailed fires when the sink hits a mid-stream error.
func (e *Engine) sessionFailed(gen int, track model.Track, err error) {
	e.mu.Lock()
	if gen != e.sessionGen {
		e.mu.Unlock()
		return
	}
	e.session = nil
	evs := e.handleErrorLocked(track, err)
	e.mu.Unlock()
	e.publish(evs)
}

// completeWithError reports a failed open.
func (e *Engine) completeWithError(gen int, track model.Track, err error) {
	e.mu.Lock()
	if gen != e.sessionGen {
		e.mu.Unlock()
		return
	}
	evs := e.handleErrorLocked(track, err)
	e.mu.Unlock()
	e.publish(evs)
}

func (e *Engine) handleErrorLocked(track model.Track, err error) []Event {
	logger.Error("playback failed",
		logger.String("track_id", track.ID),
		logger.String("title", track.Title),
		logger.ErrorField(err))

	canSkip := e.skipOnError && e.index+1 < len(e.queue)
	ev := e.eventLocked(EventPlaybackError)
	ev.Err = err
	ev.FailedTrack = &track
	ev.AutoSkipped = canSkip
	evs := []Event{ev}

	if canSkip {
		e.index++
		return append(evs, e.prepareLocked(0, ReasonAutoSkip)...)
	}

	e.closeSessionLocked()
	e.state = StateIdle
	e.playWhenReady = false
	if e.stats != nil {
		e.stats.Flush()
	}
	return append(evs, e.eventLocked(EventStateChanged))
}

func (e *Engine) closeSessionLocked() {
	e.sessionGen++
	if e.session != nil {
		e.session.Close()
		e.session = nil
	}
}

func (e *Engine) eventLocked(t EventType) Event {
	ev := Event{
		Type:          t,
		State:         e.state,
		Index:         e.index,
		PlayWhenReady: e.playWhenReady,
	}
	if tr := e.currentLocked(); tr != nil {
		ev.Track = tr
	}
	return ev
}

func (e *Engine) publish(evs []Event) {
	for _, ev := range evs {
		e.bus.Publish(ev)
	}
}
