package session

import (
	"context"
	"time"

	"tunetube/logger"
	"tunetube/model"
)

// unknownSongTitle stands in for tracks with no usable metadata.
const unknownSongTitle = "unknown song"

// Notification mirrors the playing-now surface shown to clients.
type Notification struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	Playing    bool   `json:"playing"`
	Transient  bool   `json:"transient,omitempty"`
}

// ArtworkFetcher resolves artwork out of band; the notification is posted
// first and updated when the artwork arrives.
type ArtworkFetcher func(ctx context.Context, url string) (string, error)

func trackNotification(track *model.Track, playing bool) Notification {
	n := Notification{Playing: playing}
	if track == nil {
		n.Title = unknownSongTitle
		return n
	}
	n.Title = track.Title
	if n.Title == "" {
		n.Title = unknownSongTitle
	}
	n.Text = track.ArtistsText
	n.ArtworkURL = track.ArtworkURL
	return n
}

func skipNotification(failed *model.Track) Notification {
	title := unknownSongTitle
	if failed != nil && failed.Title != "" {
		title = failed.Title
	}
	return Notification{
		Title:     "Playback failed, skipping " + title,
		Transient: true,
	}
}

// postNotification broadcasts the notification immediately and, when a
// fetcher is set, follows up with resolved artwork.
func (s *Synchronizer) postNotification(n Notification) {
	if err := s.hub.Broadcast(MsgTypeNotification, n); err != nil {
		logger.Warn("broadcast notification failed", logger.ErrorField(err))
		return
	}
	if n.ArtworkURL == "" || s.artwork == nil || n.Transient {
		return
	}

	url := n.ArtworkURL
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resolved, err := s.artwork(ctx, url)
		if err != nil {
			logger.Debug("artwork fetch failed",
				logger.String("url", url), logger.ErrorField(err))
			return
		}
		if resolved == url {
			return
		}
		n.ArtworkURL = resolved
		if err := s.hub.Broadcast(MsgTypeNotification, n); err != nil {
			logger.Warn("broadcast notification failed", logger.ErrorField(err))
		}
	}()
}
