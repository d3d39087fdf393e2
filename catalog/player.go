package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Playability statuses returned by the player endpoint.
const (
	StatusOK            = "OK"
	StatusUnplayable    = "UNPLAYABLE"
	StatusLoginRequired = "LOGIN_REQUIRED"
)

// PlayerResponse is the playback-info payload for one track.
type PlayerResponse struct {
	PlayabilityStatus *PlayabilityStatus `json:"playabilityStatus"`
	StreamingData     *StreamingData     `json:"streamingData"`
	VideoDetails      *VideoDetails      `json:"videoDetails"`
	PlayerConfig      *PlayerConfig      `json:"playerConfig"`
}

// PlayabilityStatus describes whether the item may be streamed.
type PlayabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// StreamingData lists the candidate stream formats.
type StreamingData struct {
	ExpiresInSeconds string         `json:"expiresInSeconds"`
	AdaptiveFormats  []StreamFormat `json:"adaptiveFormats"`
}

// StreamFormat is one candidate stream. Numeric fields the API serializes
// as strings stay strings here and are parsed on demand.
type StreamFormat struct {
	Itag             int    `json:"itag"`
	URL              string `json:"url"`
	MimeType         string `json:"mimeType"`
	Bitrate          int64  `json:"bitrate"`
	ContentLength    string `json:"contentLength"`
	LastModified     string `json:"lastModified"`
	ApproxDurationMs string `json:"approxDurationMs"`
	AudioQuality     string `json:"audioQuality"`
}

// IsAudio reports whether the format carries an audio stream.
func (f *StreamFormat) IsAudio() bool {
	return strings.HasPrefix(f.MimeType, "audio/")
}

// ContentLengthBytes parses the content length, or returns nil.
func (f *StreamFormat) ContentLengthBytes() *int64 {
	return parseInt64(f.ContentLength)
}

// LastModifiedUnix parses the last-modified marker, or returns nil.
func (f *StreamFormat) LastModifiedUnix() *int64 {
	return parseInt64(f.LastModified)
}

// ApproxDuration parses the approximate duration in millis, or returns nil.
func (f *StreamFormat) ApproxDuration() *int64 {
	return parseInt64(f.ApproxDurationMs)
}

func parseInt64(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// HighestQualityAudioFormat picks the audio format with the highest
// bitrate, or nil when no audio stream is present.
func (s *StreamingData) HighestQualityAudioFormat() *StreamFormat {
	if s == nil {
		return nil
	}
	var best *StreamFormat
	for i := range s.AdaptiveFormats {
		f := &s.AdaptiveFormats[i]
		if !f.IsAudio() || f.URL == "" {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}

// VideoDetails echoes the requested item's identity and display metadata.
type VideoDetails struct {
	VideoID       string            `json:"videoId"`
	Title         string            `json:"title"`
	Author        string            `json:"author"`
	LengthSeconds string            `json:"lengthSeconds"`
	Thumbnail     thumbnailRenderer `json:"thumbnail"`
}

// BestThumbnail returns the largest artwork URL, or "".
func (v *VideoDetails) BestThumbnail() string {
	return v.Thumbnail.best()
}

// PlayerConfig carries audio configuration, notably normalized loudness.
type PlayerConfig struct {
	AudioConfig *AudioConfig `json:"audioConfig"`
}

// AudioConfig holds the measured perceptual loudness of the stream.
type AudioConfig struct {
	LoudnessDb *float64 `json:"loudnessDb"`
}

type playerBody struct {
	Context    requestContext `json:"context"`
	VideoID    string         `json:"videoId"`
	PlaylistID string         `json:"playlistId,omitempty"`
}

// Player requests playback info for a track.
func (c *Client) Player(ctx context.Context, videoID, playlistID string) (*PlayerResponse, error) {
	var out PlayerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(playerBody{Context: defaultContext, VideoID: videoID, PlaylistID: playlistID}).
		SetResult(&out).
		Post("/player")
	if err != nil {
		return nil, fmt.Errorf("player request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("player request returned status %d", resp.StatusCode())
	}
	return &out, nil
}
