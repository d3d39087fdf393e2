package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"tunetube/audio"
	"tunetube/catalog"
	"tunetube/model"
	"tunetube/player"
	"tunetube/preferences"
	"tunetube/radio"
	"tunetube/session"
)

type stubSession struct{}

func (stubSession) SetPaused(bool)              {}
func (stubSession) Position() time.Duration     { return 0 }
func (stubSession) Duration() time.Duration     { return 3 * time.Minute }
func (stubSession) SeekTo(time.Duration) bool   { return true }
func (stubSession) SetSkipSilence(bool)         {}
func (stubSession) SetMinSilence(time.Duration) {}
func (stubSession) SetSpeed(float64)            {}
func (stubSession) SetPitch(float64)            {}
func (stubSession) SetGainMb(*int)              {}
func (stubSession) SetBassBoost(bool, int)      {}
func (stubSession) Close() error                { return nil }

type stubSink struct{}

func (stubSink) Open(ctx context.Context, in audio.Input, params audio.ChainParams, cb audio.Callbacks) (player.SinkSession, error) {
	return stubSession{}, nil
}

type stubOpener struct{}

func (stubOpener) OpenMedia(ctx context.Context, trackID string) (audio.Input, error) {
	return audio.Input{Name: trackID}, nil
}

type stubTracks struct{}

func (stubTracks) InsertIgnore(*model.Track) error                    { return nil }
func (stubTracks) ByID(string) (*model.Track, error)                  { return nil, nil }
func (stubTracks) UpdateDurationText(string, string) error            { return nil }
func (stubTracks) IncrementTotalPlayTime(string, time.Duration) error { return nil }
func (stubTracks) SetLiked(string, *int64) error                      { return nil }
func (stubTracks) SetLoudnessBoost(string, *float64) error            { return nil }
func (stubTracks) LoudnessBoost(string) (*float64, error)             { return nil, nil }
func (stubTracks) Blacklisted() (map[string]bool, error)              { return map[string]bool{}, nil }


const searchHitResponse = `{
	"contents": {"tabbedSearchResultsRenderer": {"tabs": [{"tabRenderer": {"content": {
		"sectionListRenderer": {"contents": [{"musicShelfRenderer": {"contents": [{
			"musicResponsiveListItemRenderer": {
				"playlistItemData": {"videoId": "hit1"},
				"flexColumns": [
					{"musicResponsiveListItemFlexColumnRenderer": {"text": {"runs": [{"text": "Hit Song"}]}}},
					{"musicResponsiveListItemFlexColumnRenderer": {"text": {"runs": [{"text": "Hit Artist"}]}}}
				]
			}
		}]}}]}
	}}}]}}
}`

// newSearchClient serves one search hit; every other catalog call gets an
// empty page.
func newSearchClient(t *testing.T) *catalog.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/search" {
			w.Write([]byte(searchHitResponse))
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return catalog.NewClient(srv.URL, "test-agent", 2*time.Second)
}

func newHandlerFixture(t *testing.T) (*mux.Router, *player.Engine, *radio.Radio) {
	t.Helper()
	client := newSearchClient(t)
	engine := player.NewEngine(player.Options{Opener: stubOpener{}, Sink: stubSink{}})
	station := radio.New(client, stubTracks{}, engine)

	hub := session.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	prefs, err := preferences.Load(filepath.Join(t.TempDir(), "preferences.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	syncer := session.NewSynchronizer(session.Options{Engine: engine, Hub: hub, Prefs: prefs})

	h := NewAPIHandler(APIHandlerOptions{
		Engine: engine,
		Radio:  station,
		Sync:   syncer,
		Hub:    hub,
		Client: client,
		Prefs:  prefs,
	})
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router, engine, station
}

func TestPlayFromSearch(t *testing.T) {
	router, engine, station := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search/play", bytes.NewBufferString(`{"query":"hit"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	st := engine.Status()
	if len(st.Queue) != 1 || st.Queue[0].ID != "hit1" || st.Queue[0].Title != "Hit Song" {
		t.Errorf("queue = %v, want the first search hit", st.Queue)
	}
	if !st.PlayWhenReady {
		t.Error("playback not started")
	}
	if !station.Active() {
		t.Error("radio not seeded from the search hit")
	}
}

func TestPlayFromSearchRejectsMissingQuery(t *testing.T) {
	router, _, _ := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search/play", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d for a missing query, want 400", w.Code)
	}
}
