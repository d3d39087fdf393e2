package player

import (
	"sync"
	"time"

	"tunetube/logger"
	"tunetube/model"
	"tunetube/repository"
)

// Listening below playTimeThreshold leaves no trace at all; between the
// two thresholds only the total play time advances; past historyThreshold
// a playback event is recorded as well.
const (
	playTimeThreshold = 5 * time.Second
	historyThreshold  = 30 * time.Second
)

// StatsRecorder accumulates per-track listening time across pauses and
// writes play-time totals and history events when a track is left.
type StatsRecorder struct {
	tracks repository.TrackRepository
	events repository.EventRepository
	now    func() time.Time

	mu            sync.Mutex
	trackID       string
	accumulated   time.Duration
	startedAt     time.Time // zero while paused
	pausePlaytime bool
	pauseHistory  bool
}

func NewStatsRecorder(tracks repository.TrackRepository, events repository.EventRepository) *StatsRecorder {
	return &StatsRecorder{tracks: tracks, events: events, now: time.Now}
}

// SetPausePlaytime suspends play-time accounting for future flushes.
func (r *StatsRecorder) SetPausePlaytime(paused bool) {
	r.mu.Lock()
	r.pausePlaytime = paused
	r.mu.Unlock()
}

// SetPauseHistory suspends history recording for future flushes.
func (r *StatsRecorder) SetPauseHistory(paused bool) {
	r.mu.Lock()
	r.pauseHistory = paused
	r.mu.Unlock()
}

// TrackStarted flushes the previous track and begins accounting for a new
// one. An empty id just flushes.
func (r *StatsRecorder) TrackStarted(trackID string, playing bool) {
	r.mu.Lock()
	r.flushLocked()
	r.trackID = trackID
	r.accumulated = 0
	r.startedAt = time.Time{}
	if playing && trackID != "" {
		r.startedAt = r.now()
	}
	r.mu.Unlock()
}

// SetPlaying marks the clock running or stopped for the current track.
func (r *StatsRecorder) SetPlaying(playing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trackID == "" {
		return
	}
	if playing {
		if r.startedAt.IsZero() {
			r.startedAt = r.now()
		}
		return
	}
	if !r.startedAt.IsZero() {
		r.accumulated += r.now().Sub(r.startedAt)
		r.startedAt = time.Time{}
	}
}

// Flush finalizes the current track without starting a new one.
func (r *StatsRecorder) Flush() {
	r.mu.Lock()
	r.flushLocked()
	r.trackID = ""
	r.accumulated = 0
	r.startedAt = time.Time{}
	r.mu.Unlock()
}

func (r *StatsRecorder) flushLocked() {
	if r.trackID == "" {
		return
	}
	played := r.accumulated
	if !r.startedAt.IsZero() {
		played += r.now().Sub(r.startedAt)
	}
	if played < playTimeThreshold {
		return
	}

	if !r.pausePlaytime {
		if err := r.tracks.IncrementTotalPlayTime(r.trackID, played); err != nil {
			logger.Warn("increment play time failed",
				logger.String("track_id", r.trackID), logger.ErrorField(err))
		}
	}
	if played >= historyThreshold && !r.pauseHistory {
		ev := &model.PlaybackEvent{
			TrackID:   r.trackID,
			Timestamp: r.now().UnixMilli(),
			PlayTime:  played.Milliseconds(),
		}
		if err := r.events.Insert(ev); err != nil {
			logger.Warn("record playback event failed",
				logger.String("track_id", r.trackID), logger.ErrorField(err))
		}
	}
}
