package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tunetube/catalog"
	"tunetube/logger"
	"tunetube/model"
	"tunetube/player"
	"tunetube/preferences"
	"tunetube/radio"
	"tunetube/repository"
	"tunetube/session"
	"tunetube/streamcache"
)

// APIHandler serves the HTTP control surface.
type APIHandler struct {
	engine *player.Engine
	radio  *radio.Radio
	sync   *session.Synchronizer
	hub    *session.Hub
	client *catalog.Client
	cache  *streamcache.Cache
	tracks repository.TrackRepository
	events repository.EventRepository
	prefs  *preferences.Store
}

type APIHandlerOptions struct {
	Engine *player.Engine
	Radio  *radio.Radio
	Sync   *session.Synchronizer
	Hub    *session.Hub
	Client *catalog.Client
	Cache  *streamcache.Cache
	Tracks repository.TrackRepository
	Events repository.EventRepository
	Prefs  *preferences.Store
}

func NewAPIHandler(opts APIHandlerOptions) *APIHandler {
	return &APIHandler{
		engine: opts.Engine,
		radio:  opts.Radio,
		sync:   opts.Sync,
		hub:    opts.Hub,
		client: opts.Client,
		cache:  opts.Cache,
		tracks: opts.Tracks,
		events: opts.Events,
		prefs:  opts.Prefs,
	}
}

// RegisterRoutes mounts every API endpoint on the router.
func (h *APIHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/status", h.StatusHandler).Methods(http.MethodGet)

	router.HandleFunc("/api/player/play", h.PlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/pause", h.PauseHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/toggle", h.ToggleHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/next", h.NextHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/previous", h.PreviousHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/seek", h.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/stop", h.StopHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/queue", h.GetQueueHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", h.LoadQueueHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/queue", h.EnqueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/next", h.EnqueueNextHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/move", h.MoveHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/{index}", h.RemoveHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/queue/{index}/play", h.PlayAtHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/search", h.SearchHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/search/play", h.PlayFromSearchHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/radio", h.RadioStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/radio", h.StartRadioHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/radio", h.StopRadioHandler).Methods(http.MethodDelete)

	router.HandleFunc("/api/tracks/{id}/like", h.LikeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/loudness", h.LoudnessBoostHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/tracks/{id}/history", h.TrackHistoryHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/history", h.ClearHistoryHandler).Methods(http.MethodDelete)

	router.HandleFunc("/api/cache", h.CacheStatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/cache", h.ClearCacheHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/cache/{id}", h.RemoveCachedHandler).Methods(http.MethodDelete)

	router.HandleFunc("/api/preferences", h.GetPreferencesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/preferences", h.SetPreferenceHandler).Methods(http.MethodPut)

	router.HandleFunc("/api/sleep", h.SleepStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sleep", h.StartSleepHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sleep", h.CancelSleepHandler).Methods(http.MethodDelete)

	router.HandleFunc("/ws", h.WebSocketHandler).Methods(http.MethodGet)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("write response failed", logger.ErrorField(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.SetPlayWhenReady(true)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.SetPlayWhenReady(false)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.PlayPause()
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) NextHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.Next()
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) PreviousHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.Previous()
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PositionMs int64 `json:"positionMs"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.engine.SeekTo(time.Duration(body.PositionMs) * time.Millisecond)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	h.radio.Stop()
	h.engine.Stop()
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) GetQueueHandler(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"queue": st.Queue,
		"index": st.Index,
	})
}

// LoadQueueHandler replaces the queue wholesale, the play-this-list
// operation behind search results and playlists.
func (h *APIHandler) LoadQueueHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tracks        []model.Track `json:"tracks"`
		Index         int           `json:"index"`
		PlayWhenReady *bool         `json:"playWhenReady"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Tracks) == 0 {
		respondError(w, http.StatusBadRequest, "tracks must not be empty")
		return
	}
	play := true
	if body.PlayWhenReady != nil {
		play = *body.PlayWhenReady
	}
	h.radio.Stop()
	h.engine.Load(body.Tracks, body.Index, play)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	tracks, ok := decodeTracks(w, r)
	if !ok {
		return
	}
	h.engine.Enqueue(tracks...)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) EnqueueNextHandler(w http.ResponseWriter, r *http.Request) {
	tracks, ok := decodeTracks(w, r)
	if !ok {
		return
	}
	h.engine.EnqueueNext(tracks...)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func decodeTracks(w http.ResponseWriter, r *http.Request) ([]model.Track, bool) {
	var body struct {
		Tracks []model.Track `json:"tracks"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if len(body.Tracks) == 0 {
		respondError(w, http.StatusBadRequest, "tracks must not be empty")
		return nil, false
	}
	return body.Tracks, true
}

func (h *APIHandler) MoveHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.engine.Move(body.From, body.To)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid queue index")
		return
	}
	h.engine.Remove(index)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) PlayAtHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid queue index")
		return
	}
	h.engine.PlayAt(index)
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	songs, err := h.client.SearchSongs(r.Context(), query)
	if err != nil {
		logger.Warn("search failed", logger.String("query", query), logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "search failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"songs": songs})
}

// PlayFromSearchHandler plays the best match for a query and seeds a
// station from it.
func (h *APIHandler) PlayFromSearchHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Query == "" {
		respondError(w, http.StatusBadRequest, "missing query")
		return
	}
	songs, err := h.client.SearchSongs(r.Context(), body.Query)
	if err != nil {
		logger.Warn("search failed", logger.String("query", body.Query), logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "search failed")
		return
	}
	if len(songs) == 0 {
		respondError(w, http.StatusNotFound, "no songs found")
		return
	}

	first := songs[0]
	track := model.Track{
		ID:           first.VideoID,
		Title:        first.Title,
		ArtistsText:  first.ArtistsText,
		DurationText: first.DurationText,
		ArtworkURL:   first.ArtworkURL,
		Explicit:     first.Explicit,
	}
	h.radio.Stop()
	h.engine.Load([]model.Track{track}, 0, true)
	h.radio.Start(track.ID, "", "")
	respondJSON(w, http.StatusOK, h.sync.State())
}

func (h *APIHandler) RadioStatusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"active": h.radio.Active()})
}

// StartRadioHandler seeds an autoplay station. With no explicit seed the
// current track is used.
func (h *APIHandler) StartRadioHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VideoID    string `json:"videoId"`
		PlaylistID string `json:"playlistId"`
		Params     string `json:"params"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if body.VideoID == "" {
		track := h.engine.Current()
		if track == nil || track.IsLocal() {
			respondError(w, http.StatusBadRequest, "no seed track for radio")
			return
		}
		body.VideoID = track.ID
	}
	h.radio.Start(body.VideoID, body.PlaylistID, body.Params)
	h.radio.Process()
	respondJSON(w, http.StatusOK, map[string]bool{"active": true})
}

func (h *APIHandler) StopRadioHandler(w http.ResponseWriter, r *http.Request) {
	h.radio.Stop()
	respondJSON(w, http.StatusOK, map[string]bool{"active": false})
}

func (h *APIHandler) LikeHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	liked, err := h.sync.ToggleLike(id)
	if err != nil {
		logger.Warn("toggle like failed", logger.String("track_id", id), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "toggle like failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

// LoudnessBoostHandler stores a per-track normalization adjustment; null
// clears it.
func (h *APIHandler) LoudnessBoostHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		BoostDb *float64 `json:"boostDb"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.tracks.SetLoudnessBoost(id, body.BoostDb); err != nil {
		logger.Warn("set loudness boost failed", logger.String("track_id", id), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "set loudness boost failed")
		return
	}
	h.engine.RefreshGain()
	respondJSON(w, http.StatusOK, map[string]interface{}{"boostDb": body.BoostDb})
}

func (h *APIHandler) TrackHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	events, err := h.events.ByTrack(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load history failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *APIHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.events.DeleteAll(); err != nil {
		respondError(w, http.StatusInternalServerError, "clear history failed")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (h *APIHandler) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	tracks, bytes := h.cache.Stats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": tracks,
		"bytes":  bytes,
	})
}

func (h *APIHandler) ClearCacheHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(); err != nil {
		respondError(w, http.StatusInternalServerError, "clear cache failed")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (h *APIHandler) RemoveCachedHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.cache.Remove(id); err != nil {
		respondError(w, http.StatusInternalServerError, "remove cached track failed")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (h *APIHandler) GetPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.prefs.All())
}

func (h *APIHandler) SetPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key   string      `json:"key"`
		Value interface{} `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Key == "" {
		respondError(w, http.StatusBadRequest, "missing preference key")
		return
	}
	if err := h.prefs.Set(body.Key, body.Value); err != nil {
		logger.Warn("set preference failed", logger.String("key", body.Key), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "set preference failed")
		return
	}
	respondJSON(w, http.StatusOK, h.prefs.All())
}

func (h *APIHandler) SleepStatusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int64{
		"remainingMs": h.engine.Timer().Remaining().Milliseconds(),
	})
}

func (h *APIHandler) StartSleepHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Minutes <= 0 {
		respondError(w, http.StatusBadRequest, "minutes must be positive")
		return
	}
	h.engine.Timer().Start(time.Duration(body.Minutes) * time.Minute)
	respondJSON(w, http.StatusOK, map[string]int64{
		"remainingMs": h.engine.Timer().Remaining().Milliseconds(),
	})
}

func (h *APIHandler) CancelSleepHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.Timer().Cancel()
	respondJSON(w, http.StatusOK, nil)
}
