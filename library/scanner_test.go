package library

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tunetube/model"
)

type captureTracks struct {
	mu     sync.Mutex
	tracks []model.Track
}

func (c *captureTracks) InsertIgnore(track *model.Track) error {
	c.mu.Lock()
	c.tracks = append(c.tracks, *track)
	c.mu.Unlock()
	return nil
}

func (c *captureTracks) ByID(string) (*model.Track, error)                  { return nil, nil }
func (c *captureTracks) UpdateDurationText(string, string) error            { return nil }
func (c *captureTracks) IncrementTotalPlayTime(string, time.Duration) error { return nil }
func (c *captureTracks) SetLiked(string, *int64) error                      { return nil }
func (c *captureTracks) SetLoudnessBoost(string, *float64) error            { return nil }
func (c *captureTracks) LoudnessBoost(string) (*float64, error)             { return nil, nil }
func (c *captureTracks) Blacklisted() (map[string]bool, error)              { return nil, nil }

func (c *captureTracks) ids() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.tracks))
	for _, t := range c.tracks {
		out[t.ID] = true
	}
	return out
}

func TestLocalTrack(t *testing.T) {
	tests := []struct {
		path        string
		wantID      string
		wantTitle   string
		wantArtists string
	}{
		{
			path:      "song.mp3",
			wantID:    "local:song.mp3",
			wantTitle: "song",
		},
		{
			path:        "Artist - Title.flac",
			wantID:      "local:Artist - Title.flac",
			wantTitle:   "Title",
			wantArtists: "Artist",
		},
		{
			path:        filepath.Join("albums", "Band - Track.ogg"),
			wantID:      "local:" + filepath.Join("albums", "Band - Track.ogg"),
			wantTitle:   "Track",
			wantArtists: "Band",
		},
		{
			// A leading separator is not an artist split.
			path:      " - odd.wav",
			wantID:    "local: - odd.wav",
			wantTitle: " - odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			track := localTrack(tt.path)
			if track.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", track.ID, tt.wantID)
			}
			if track.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", track.Title, tt.wantTitle)
			}
			if track.ArtistsText != tt.wantArtists {
				t.Errorf("ArtistsText = %q, want %q", track.ArtistsText, tt.wantArtists)
			}
		})
	}
}

func TestScanRegistersAudioFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("one.mp3")
	write(filepath.Join("sub", "two.flac"))
	write("cover.jpg")
	write("notes.txt")

	tracks := &captureTracks{}
	s := NewScanner(dir, tracks)
	s.scan()

	ids := tracks.ids()
	if len(ids) != 2 {
		t.Fatalf("registered %v, want the two audio files", ids)
	}
	if !ids["local:one.mp3"] {
		t.Error("one.mp3 not registered under its relative path")
	}
	if !ids["local:"+filepath.Join("sub", "two.flac")] {
		t.Error("sub/two.flac not registered under its relative path")
	}
}

func TestScanMissingDirectory(t *testing.T) {
	tracks := &captureTracks{}
	s := NewScanner(filepath.Join(t.TempDir(), "nope"), tracks)
	s.scan()

	if len(tracks.ids()) != 0 {
		t.Errorf("registered %v from a missing directory", tracks.ids())
	}
}
