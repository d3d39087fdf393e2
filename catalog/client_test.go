package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-agent", 2*time.Second)
}

func TestHighestQualityAudioFormat(t *testing.T) {
	data := &StreamingData{AdaptiveFormats: []StreamFormat{
		{Itag: 137, MimeType: "video/mp4", Bitrate: 4000000, URL: "http://v"},
		{Itag: 140, MimeType: "audio/mp4; codecs=\"mp4a.40.2\"", Bitrate: 128000, URL: "http://a1"},
		{Itag: 251, MimeType: "audio/webm; codecs=\"opus\"", Bitrate: 160000, URL: "http://a2"},
		{Itag: 250, MimeType: "audio/webm; codecs=\"opus\"", Bitrate: 320000},
	}}

	best := data.HighestQualityAudioFormat()
	if best == nil || best.Itag != 251 {
		t.Fatalf("best = %+v, want itag 251", best)
	}

	var empty *StreamingData
	if empty.HighestQualityAudioFormat() != nil {
		t.Error("nil streaming data should yield nil format")
	}
	if (&StreamingData{}).HighestQualityAudioFormat() != nil {
		t.Error("no formats should yield nil")
	}
}

func TestStreamFormatStringFields(t *testing.T) {
	f := StreamFormat{ContentLength: "4232180", ApproxDurationMs: "245000", LastModified: "1711111111000000"}
	if got := f.ContentLengthBytes(); got == nil || *got != 4232180 {
		t.Errorf("ContentLengthBytes = %v", got)
	}
	if got := f.ApproxDuration(); got == nil || *got != 245000 {
		t.Errorf("ApproxDuration = %v", got)
	}
	if got := f.LastModifiedUnix(); got == nil || *got != 1711111111000000 {
		t.Errorf("LastModifiedUnix = %v", got)
	}

	bad := StreamFormat{ContentLength: "", ApproxDurationMs: "soon"}
	if bad.ContentLengthBytes() != nil || bad.ApproxDuration() != nil {
		t.Error("unparseable fields should yield nil")
	}
}

func TestPlayer(t *testing.T) {
	const response = `{
		"playabilityStatus": {"status": "OK"},
		"streamingData": {
			"expiresInSeconds": "21540",
			"adaptiveFormats": [
				{"itag": 251, "url": "http://stream", "mimeType": "audio/webm; codecs=\"opus\"",
				 "bitrate": 160000, "contentLength": "4232180", "approxDurationMs": "245000"}
			]
		},
		"videoDetails": {
			"videoId": "abc123", "title": "Song", "author": "Artist", "lengthSeconds": "245",
			"thumbnail": {"thumbnails": [
				{"url": "http://small", "width": 60, "height": 60},
				{"url": "http://big", "width": 544, "height": 544}
			]}
		},
		"playerConfig": {"audioConfig": {"loudnessDb": -3.2}}
	}`

	var gotBody []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/player" {
			t.Errorf("path = %s, want /player", r.URL.Path)
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, response)
	})

	resp, err := client.Player(context.Background(), "abc123", "")
	if err != nil {
		t.Fatalf("Player: %v", err)
	}
	if !strings.Contains(string(gotBody), `"videoId":"abc123"`) {
		t.Errorf("request body missing video id: %s", gotBody)
	}
	if resp.PlayabilityStatus == nil || resp.PlayabilityStatus.Status != StatusOK {
		t.Errorf("status = %+v", resp.PlayabilityStatus)
	}
	best := resp.StreamingData.HighestQualityAudioFormat()
	if best == nil || best.URL != "http://stream" {
		t.Fatalf("best format = %+v", best)
	}
	if resp.VideoDetails.VideoID != "abc123" || resp.VideoDetails.BestThumbnail() != "http://big" {
		t.Errorf("details = %+v", resp.VideoDetails)
	}
	loudness := resp.PlayerConfig.AudioConfig.LoudnessDb
	if loudness == nil || *loudness != -3.2 {
		t.Errorf("loudness = %v", loudness)
	}
}

func TestPlayerErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := client.Player(context.Background(), "abc", ""); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestSearchSongs(t *testing.T) {
	const response = `{
		"contents": {"tabbedSearchResultsRenderer": {"tabs": [
			{"tabRenderer": {"content": {"sectionListRenderer": {"contents": [
				{"musicShelfRenderer": {"contents": [
					{"musicResponsiveListItemRenderer": {
						"playlistItemData": {"videoId": "v1"},
						"flexColumns": [
							{"musicResponsiveListItemFlexColumnRenderer": {"text": {"runs": [{"text": "First Song"}]}}},
							{"musicResponsiveListItemFlexColumnRenderer": {"text": {"runs": [{"text": "Some Artist"}]}}}
						],
						"thumbnail": {"musicThumbnailRenderer": {"thumbnail": {"thumbnails": [
							{"url": "http://art1", "width": 226, "height": 226}
						]}}}
					}},
					{"musicResponsiveListItemRenderer": {
						"playlistItemData": {"videoId": "v2"},
						"flexColumns": [
							{"musicResponsiveListItemFlexColumnRenderer": {"text": {"runs": [{"text": "Second Song"}]}}}
						]
					}},
					{"musicResponsiveListItemRenderer": {"flexColumns": []}}
				]}}
			]}}}}
		]}}
	}`

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s, want /search", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, response)
	})

	songs, err := client.SearchSongs(context.Background(), "some song")
	if err != nil {
		t.Fatalf("SearchSongs: %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("songs = %+v, want 2 (item without video id dropped)", songs)
	}
	first := songs[0]
	if first.VideoID != "v1" || first.Title != "First Song" || first.ArtistsText != "Some Artist" || first.ArtworkURL != "http://art1" {
		t.Errorf("first = %+v", first)
	}
	if songs[1].VideoID != "v2" || songs[1].Title != "Second Song" {
		t.Errorf("second = %+v", songs[1])
	}
}

func TestNextFollowsAutomix(t *testing.T) {
	automixPage := `{
		"contents": {"singleColumnMusicWatchNextResultsRenderer": {"tabbedRenderer": {"watchNextTabbedResultsRenderer": {"tabs": [
			{"tabRenderer": {"content": {"musicQueueRenderer": {"content": {"playlistPanelRenderer": {
				"contents": [
					{"automixPreviewVideoRenderer": {"content": {"automixPlaylistVideoRenderer": {
						"navigationEndpoint": {"watchPlaylistEndpoint": {"playlistId": "RDAMabc", "params": "wAEB"}}
					}}}}
				]
			}}}}}}
		]}}}}
	}`
	songPage := `{
		"contents": {"singleColumnMusicWatchNextResultsRenderer": {"tabbedRenderer": {"watchNextTabbedResultsRenderer": {"tabs": [
			{"tabRenderer": {"content": {"musicQueueRenderer": {"content": {"playlistPanelRenderer": {
				"contents": [
					{"playlistPanelVideoRenderer": {
						"videoId": "r1",
						"title": {"runs": [{"text": "Related"}]},
						"lengthText": {"runs": [{"text": "3:45"}]},
						"badges": [{"musicInlineBadgeRenderer": {"icon": {"iconType": "MUSIC_EXPLICIT_BADGE"}}}]
					}}
				],
				"continuations": [{"nextContinuationData": {"continuation": "tok1"}}]
			}}}}}}
		]}}}}
	}`

	requests := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), `"playlistId":"RDAMabc"`) {
			io.WriteString(w, songPage)
			return
		}
		io.WriteString(w, automixPage)
	})

	page, err := client.Next(context.Background(), "seed", "", "")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want the automix endpoint followed once", requests)
	}
	if page.PlaylistID != "RDAMabc" || page.Params != "wAEB" {
		t.Errorf("page identity = %q/%q", page.PlaylistID, page.Params)
	}
	if len(page.Songs) != 1 {
		t.Fatalf("songs = %+v", page.Songs)
	}
	song := page.Songs[0]
	if song.VideoID != "r1" || song.Title != "Related" || song.DurationText != "3:45" || !song.Explicit {
		t.Errorf("song = %+v", song)
	}
	if page.Continuation != "tok1" {
		t.Errorf("continuation = %q, want tok1", page.Continuation)
	}
}

func TestContinuationEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	})

	page, err := client.Continuation(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Continuation: %v", err)
	}
	if len(page.Songs) != 0 || page.Continuation != "" {
		t.Errorf("page = %+v, want empty", page)
	}
}

func TestRunsAndThumbnails(t *testing.T) {
	var r runs
	if err := json.Unmarshal([]byte(`{"runs":[{"text":"a"},{"text":"b"}]}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.text() != "a" {
		t.Errorf("text = %q, want first run", r.text())
	}
	if (runs{}).text() != "" {
		t.Error("empty runs should yield empty text")
	}

	var th thumbnailRenderer
	json.Unmarshal([]byte(`{"thumbnails":[
		{"url":"http://mid","width":226},
		{"url":"http://big","width":544},
		{"url":"http://small","width":60}
	]}`), &th)
	if th.best() != "http://big" {
		t.Errorf("best = %q, want the widest", th.best())
	}
}
