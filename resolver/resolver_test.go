package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"tunetube/catalog"
	"tunetube/db"
	"tunetube/model"
	"tunetube/repository"
)

type fakeAPI struct {
	responses map[string]*catalog.PlayerResponse
	err       error
	calls     int
}

func (f *fakeAPI) Player(ctx context.Context, videoID, playlistID string) (*catalog.PlayerResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	resp, ok := f.responses[videoID]
	if !ok {
		return nil, fmt.Errorf("no canned response for %s", videoID)
	}
	return resp, nil
}

func okResponse(videoID string) *catalog.PlayerResponse {
	loudness := -3.0
	return &catalog.PlayerResponse{
		PlayabilityStatus: &catalog.PlayabilityStatus{Status: catalog.StatusOK},
		StreamingData: &catalog.StreamingData{
			AdaptiveFormats: []catalog.StreamFormat{
				{Itag: 140, URL: "https://cdn.example/low", MimeType: "audio/mp4", Bitrate: 128000, ContentLength: "1000"},
				{Itag: 251, URL: "https://cdn.example/high", MimeType: "audio/webm", Bitrate: 160000, ContentLength: "2000", ApproxDurationMs: "245000"},
				{Itag: 299, URL: "https://cdn.example/video", MimeType: "video/mp4", Bitrate: 4000000},
			},
		},
		VideoDetails: &catalog.VideoDetails{VideoID: videoID, Title: "A Song", Author: "An Artist"},
		PlayerConfig: &catalog.PlayerConfig{AudioConfig: &catalog.AudioConfig{LoudnessDb: &loudness}},
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Reset(gdb)
		db.Close(gdb)
	})
	return gdb
}

func TestResolvePicksHighestBitrateAudio(t *testing.T) {
	api := &fakeAPI{responses: map[string]*catalog.PlayerResponse{"abc": okResponse("abc")}}
	gdb := newTestDB(t)
	r := New(api, gdb, 2)

	resolved, err := r.Resolve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.URL != "https://cdn.example/high" {
		t.Errorf("URL = %q, want the highest bitrate audio stream", resolved.URL)
	}
	if resolved.Format.Itag != 251 {
		t.Errorf("Itag = %d, want 251", resolved.Format.Itag)
	}
	if resolved.Format.LoudnessDb == nil || *resolved.Format.LoudnessDb != -3.0 {
		t.Errorf("LoudnessDb = %v, want -3.0", resolved.Format.LoudnessDb)
	}
}

func TestResolvePersistsTrackAndFormat(t *testing.T) {
	api := &fakeAPI{responses: map[string]*catalog.PlayerResponse{"abc": okResponse("abc")}}
	gdb := newTestDB(t)
	r := New(api, gdb, 2)

	if _, err := r.Resolve(context.Background(), "abc"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	tracks := repository.NewTrackRepository(gdb)
	track, err := tracks.ByID("abc")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if track == nil {
		t.Fatal("track row not written")
	}
	if track.Title != "A Song" || track.ArtistsText != "An Artist" {
		t.Errorf("track = %q by %q, want metadata from the response", track.Title, track.ArtistsText)
	}
	if track.DurationText != "4:05" {
		t.Errorf("DurationText = %q, want backfilled 4:05", track.DurationText)
	}

	formats := repository.NewFormatRepository(gdb)
	format, err := formats.ByTrack("abc")
	if err != nil {
		t.Fatalf("ByTrack: %v", err)
	}
	if format == nil {
		t.Fatal("format row not written")
	}
	if format.ContentLength == nil || *format.ContentLength != 2000 {
		t.Errorf("ContentLength = %v, want 2000", format.ContentLength)
	}
}

func TestResolveDoesNotOverwriteExistingMetadata(t *testing.T) {
	api := &fakeAPI{responses: map[string]*catalog.PlayerResponse{"abc": okResponse("abc")}}
	gdb := newTestDB(t)
	tracks := repository.NewTrackRepository(gdb)
	if err := tracks.InsertIgnore(&model.Track{ID: "abc", Title: "User Title", DurationText: "3:00"}); err != nil {
		t.Fatal(err)
	}

	r := New(api, gdb, 2)
	if _, err := r.Resolve(context.Background(), "abc"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	track, err := tracks.ByID("abc")
	if err != nil {
		t.Fatal(err)
	}
	if track.Title != "User Title" {
		t.Errorf("Title = %q, existing row was overwritten", track.Title)
	}
	if track.DurationText != "3:00" {
		t.Errorf("DurationText = %q, existing duration was overwritten", track.DurationText)
	}
}

func TestResolveClassification(t *testing.T) {
	tests := []struct {
		name     string
		response *catalog.PlayerResponse
		apiErr   error
		wantKind Kind
	}{
		{
			name: "mismatched video id",
			response: &catalog.PlayerResponse{
				PlayabilityStatus: &catalog.PlayabilityStatus{Status: catalog.StatusOK},
				VideoDetails:      &catalog.VideoDetails{VideoID: "other"},
			},
			wantKind: KindIDMismatch,
		},
		{
			name: "unplayable",
			response: &catalog.PlayerResponse{
				PlayabilityStatus: &catalog.PlayabilityStatus{Status: catalog.StatusUnplayable},
				VideoDetails:      &catalog.VideoDetails{VideoID: "abc"},
			},
			wantKind: KindUnplayable,
		},
		{
			name: "login required",
			response: &catalog.PlayerResponse{
				PlayabilityStatus: &catalog.PlayabilityStatus{Status: catalog.StatusLoginRequired},
				VideoDetails:      &catalog.VideoDetails{VideoID: "abc"},
			},
			wantKind: KindLoginRequired,
		},
		{
			name: "no audio format",
			response: &catalog.PlayerResponse{
				PlayabilityStatus: &catalog.PlayabilityStatus{Status: catalog.StatusOK},
				VideoDetails:      &catalog.VideoDetails{VideoID: "abc"},
				StreamingData: &catalog.StreamingData{
					AdaptiveFormats: []catalog.StreamFormat{
						{Itag: 299, URL: "https://cdn.example/video", MimeType: "video/mp4"},
					},
				},
			},
			wantKind: KindNoFormat,
		},
		{
			name:     "transport failure",
			apiErr:   errors.New("connection reset"),
			wantKind: KindRemote,
		},
		{
			name: "unknown status",
			response: &catalog.PlayerResponse{
				PlayabilityStatus: &catalog.PlayabilityStatus{Status: "AGE_CHECK_REQUIRED"},
				VideoDetails:      &catalog.VideoDetails{VideoID: "abc"},
			},
			wantKind: KindRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{err: tt.apiErr}
			if tt.response != nil {
				api.responses = map[string]*catalog.PlayerResponse{"abc": tt.response}
			}
			gdb := newTestDB(t)
			r := New(api, gdb, 2)

			_, err := r.Resolve(context.Background(), "abc")
			if err == nil {
				t.Fatal("Resolve succeeded, want error")
			}
			if !IsKind(err, tt.wantKind) {
				t.Errorf("err = %v, want kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestIDMismatchWritesNothing(t *testing.T) {
	api := &fakeAPI{responses: map[string]*catalog.PlayerResponse{
		"abc": {
			PlayabilityStatus: &catalog.PlayabilityStatus{Status: catalog.StatusOK},
			VideoDetails:      &catalog.VideoDetails{VideoID: "other", Title: "Wrong Song"},
			StreamingData: &catalog.StreamingData{
				AdaptiveFormats: []catalog.StreamFormat{
					{Itag: 251, URL: "https://cdn.example/x", MimeType: "audio/webm", Bitrate: 160000},
				},
			},
		},
	}}
	gdb := newTestDB(t)
	r := New(api, gdb, 2)

	if _, err := r.Resolve(context.Background(), "abc"); !IsKind(err, KindIDMismatch) {
		t.Fatalf("err = %v, want id mismatch", err)
	}

	tracks := repository.NewTrackRepository(gdb)
	for _, id := range []string{"abc", "other"} {
		track, err := tracks.ByID(id)
		if err != nil {
			t.Fatal(err)
		}
		if track != nil {
			t.Errorf("track row written for %q after id mismatch", id)
		}
	}
	formats := repository.NewFormatRepository(gdb)
	for _, id := range []string{"abc", "other"} {
		format, err := formats.ByTrack(id)
		if err != nil {
			t.Fatal(err)
		}
		if format != nil {
			t.Errorf("format row written for %q after id mismatch", id)
		}
	}
}

func TestResolveURLUsesShortTermCache(t *testing.T) {
	api := &fakeAPI{responses: map[string]*catalog.PlayerResponse{"abc": okResponse("abc")}}
	gdb := newTestDB(t)
	r := New(api, gdb, 2)

	first, err := r.ResolveURL(context.Background(), "abc")
	if err != nil {
		t.Fatalf("ResolveURL: %v", err)
	}
	second, err := r.ResolveURL(context.Background(), "abc")
	if err != nil {
		t.Fatalf("ResolveURL: %v", err)
	}
	if first != second {
		t.Errorf("URLs differ across cache hit: %q vs %q", first, second)
	}
	if api.calls != 1 {
		t.Errorf("api calls = %d, want 1 (second request served from cache)", api.calls)
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	api := &fakeAPI{responses: map[string]*catalog.PlayerResponse{"abc": okResponse("abc")}}
	gdb := newTestDB(t)
	r := New(api, gdb, 2)

	if _, err := r.ResolveURL(context.Background(), "abc"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Refresh(context.Background(), "abc"); err != nil {
		t.Fatal(err)
	}
	if api.calls != 2 {
		t.Errorf("api calls = %d, want 2 (refresh must hit the network)", api.calls)
	}
}
