package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tunetube/logger"
	"tunetube/model"
	"tunetube/player"
	"tunetube/preferences"
	"tunetube/repository"
)

// queueWindowRadius bounds the queue slice broadcast with session state:
// this many items either side of the current one.
const queueWindowRadius = 7

// idleGrace is how long the session survives with nothing playing before
// OnIdle fires. Invincibility disables the shutdown entirely.
const idleGrace = 60 * time.Second

// StatePayload is the session state broadcast to clients.
type StatePayload struct {
	State         player.State  `json:"state"`
	Index         int           `json:"index"`
	WindowStart   int           `json:"windowStart"`
	Window        []model.Track `json:"window"`
	QueueLen      int           `json:"queueLen"`
	PositionMs    int64         `json:"positionMs"`
	DurationMs    int64         `json:"durationMs"`
	PlayWhenReady bool          `json:"playWhenReady"`
}

// Synchronizer mirrors engine state onto the hub, persists and restores
// the queue, and handles client transport commands.
type Synchronizer struct {
	engine *player.Engine
	hub    *Hub
	queue  repository.QueueRepository
	tracks repository.TrackRepository
	prefs  *preferences.Store

	artwork ArtworkFetcher

	// OnIdle fires after the grace window when nothing is playing and
	// invincibility is off. Optional.
	OnIdle func()

	mu          sync.Mutex
	idleTimer   *time.Timer
	unsubscribe func()
}

type Options struct {
	Engine  *player.Engine
	Hub     *Hub
	Queue   repository.QueueRepository
	Tracks  repository.TrackRepository
	Prefs   *preferences.Store
	Artwork ArtworkFetcher
}

func NewSynchronizer(opts Options) *Synchronizer {
	return &Synchronizer{
		engine:  opts.Engine,
		hub:     opts.Hub,
		queue:   opts.Queue,
		tracks:  opts.Tracks,
		prefs:   opts.Prefs,
		artwork: opts.Artwork,
	}
}

// Start subscribes to the engine and restores any persisted queue.
func (s *Synchronizer) Start() {
	s.unsubscribe = s.engine.Bus().Subscribe(s.handleEvent)
	s.restoreQueue()
}

// Close persists the final state and detaches from the engine.
func (s *Synchronizer) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.cancelIdleTimer()
	s.persistQueue()
}

func (s *Synchronizer) handleEvent(ev player.Event) {
	switch ev.Type {
	case player.EventItemTransitioned:
		s.postNotification(trackNotification(ev.Track, ev.PlayWhenReady))
		s.persistQueue()
		s.broadcastState()

	case player.EventTimelineChanged:
		s.persistQueue()
		s.broadcastState()

	case player.EventPlayWhenReadyChanged:
		s.postNotification(trackNotification(ev.Track, ev.PlayWhenReady))
		s.persistQueue()
		s.broadcastState()

	case player.EventStateChanged:
		s.broadcastState()

	case player.EventPlaybackError:
		if ev.AutoSkipped {
			s.postNotification(skipNotification(ev.FailedTrack))
		}
		s.broadcastState()
	}

	s.updateIdleTimer(ev.State, ev.PlayWhenReady)
}

func (s *Synchronizer) broadcastState() {
	if err := s.hub.Broadcast(MsgTypeState, s.State()); err != nil {
		logger.Warn("broadcast state failed", logger.ErrorField(err))
	}
}

// State builds the windowed session state snapshot.
func (s *Synchronizer) State() StatePayload {
	st := s.engine.Status()
	start, window := queueWindow(st.Queue, st.Index)
	return StatePayload{
		State:         st.State,
		Index:         st.Index,
		WindowStart:   start,
		Window:        window,
		QueueLen:      len(st.Queue),
		PositionMs:    st.Position.Milliseconds(),
		DurationMs:    st.Duration.Milliseconds(),
		PlayWhenReady: st.PlayWhenReady,
	}
}

// queueWindow clamps a radius around index to the queue bounds.
func queueWindow(queue []model.Track, index int) (start int, window []model.Track) {
	if len(queue) == 0 {
		return 0, nil
	}
	if index < 0 {
		index = 0
	}
	if index >= len(queue) {
		index = len(queue) - 1
	}
	start = index - queueWindowRadius
	if start < 0 {
		start = 0
	}
	end := index + queueWindowRadius + 1
	if end > len(queue) {
		end = len(queue)
	}
	return start, append([]model.Track(nil), queue[start:end]...)
}

// persistQueue snapshots the queue when persistence is enabled. Exactly
// one saved row carries the resume position: the current item.
func (s *Synchronizer) persistQueue() {
	if !s.prefs.Bool(preferences.KeyPersistentQueue) {
		return
	}
	tracks, index, position := s.engine.Snapshot()
	items := make([]model.QueuedTrack, len(tracks))
	for i, t := range tracks {
		items[i] = model.QueuedTrack{Track: t}
		if i == index {
			ms := position.Milliseconds()
			items[i].Position = &ms
		}
	}
	if err := s.queue.ReplaceAll(items); err != nil {
		logger.Warn("persist queue failed", logger.ErrorField(err))
	}
}

// restoreQueue rebuilds the saved queue paused at the saved position.
func (s *Synchronizer) restoreQueue() {
	if !s.prefs.Bool(preferences.KeyPersistentQueue) {
		return
	}
	items, err := s.queue.All()
	if err != nil {
		logger.Warn("load persisted queue failed", logger.ErrorField(err))
		return
	}
	if len(items) == 0 {
		return
	}
	// The stored rows are consumed by the restore; the next persist
	// rewrites them from live engine state.
	if err := s.queue.Clear(); err != nil {
		logger.Warn("clear persisted queue failed", logger.ErrorField(err))
	}

	tracks := make([]model.Track, len(items))
	index := 0
	var position time.Duration
	for i, item := range items {
		tracks[i] = item.Track
		if item.Position != nil {
			index = i
			position = time.Duration(*item.Position) * time.Millisecond
		}
	}

	logger.Info("restoring persisted queue",
		logger.Int("tracks", len(tracks)),
		logger.Int("index", index),
		logger.Int64("position_ms", position.Milliseconds()))
	s.engine.Restore(tracks, index, position)
}

// ToggleLike flips the liked state of a track and reports the new state.
func (s *Synchronizer) ToggleLike(trackID string) (liked bool, err error) {
	track, err := s.tracks.ByID(trackID)
	if err != nil {
		return false, err
	}
	if track != nil && track.LikedAt != nil {
		return false, s.tracks.SetLiked(trackID, nil)
	}
	now := time.Now().UnixMilli()
	return true, s.tracks.SetLiked(trackID, &now)
}

// HandleCommand dispatches one client transport command.
func (s *Synchronizer) HandleCommand(ctx context.Context, client *Client, msg *WSMessage) {
	switch msg.Type {
	case MsgTypePlay:
		s.engine.SetPlayWhenReady(true)
	case MsgTypePause:
		s.engine.SetPlayWhenReady(false)
	case MsgTypeToggle:
		s.engine.PlayPause()
	case MsgTypeNext:
		s.engine.Next()
	case MsgTypePrev:
		s.engine.Previous()
	case MsgTypeSeek:
		var data SeekData
		if err := unmarshalData(msg, &data); err != nil {
			client.SendMessage(MsgTypeError, map[string]string{"error": "invalid seek payload"})
			return
		}
		s.engine.SeekTo(time.Duration(data.PositionMs) * time.Millisecond)
	case MsgTypeLike:
		track := s.engine.Current()
		if track == nil || track.IsLocal() {
			return
		}
		if _, err := s.ToggleLike(track.ID); err != nil {
			logger.Warn("toggle like failed",
				logger.String("track_id", track.ID), logger.ErrorField(err))
		}
	default:
		client.SendMessage(MsgTypeError, map[string]string{"error": "unknown command"})
	}
}

func unmarshalData(msg *WSMessage, v interface{}) error {
	if len(msg.Data) == 0 {
		return nil
	}
	return json.Unmarshal(msg.Data, v)
}

func (s *Synchronizer) updateIdleTimer(state player.State, playWhenReady bool) {
	idle := state == player.StateIdle || state == player.StateEnded ||
		(state == player.StateReady && !playWhenReady)
	if !idle {
		s.cancelIdleTimer()
		return
	}
	if s.prefs.Bool(preferences.KeyInvincibility) || s.OnIdle == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		return
	}
	s.idleTimer = time.AfterFunc(idleGrace, func() {
		s.mu.Lock()
		s.idleTimer = nil
		s.mu.Unlock()
		s.OnIdle()
	})
}

func (s *Synchronizer) cancelIdleTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}
