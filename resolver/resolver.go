// Package resolver turns an abstract track identifier into a concrete,
// time-limited streaming URL, persisting the format metadata learned along
// the way.
package resolver

import (
	"context"
	"fmt"
	"sync"

	"tunetube/catalog"
	"tunetube/logger"
	"tunetube/model"
	"tunetube/repository"

	"gorm.io/gorm"
)

// PlayerAPI is the slice of the catalog client the resolver needs.
type PlayerAPI interface {
	Player(ctx context.Context, videoID, playlistID string) (*catalog.PlayerResponse, error)
}

// ResolvedStream is a ready-to-stream URL plus its format descriptor.
type ResolvedStream struct {
	URL    string
	Format model.Format
}

// Resolver resolves track identifiers against the catalog. Resolution for
// a given identifier is serialized: a second concurrent request waits and
// then reuses the short-term URL cache instead of racing the network.
type Resolver struct {
	mu   sync.Mutex
	api  PlayerAPI
	db   *gorm.DB
	urls *ringBuffer
}

// New creates a Resolver. urlCacheSize is the short-term URL cache
// capacity (two slots historically).
func New(api PlayerAPI, db *gorm.DB, urlCacheSize int) *Resolver {
	return &Resolver{
		api:  api,
		db:   db,
		urls: newRingBuffer(urlCacheSize),
	}
}

// ResolveURL returns a streaming URL for the track, reusing the short-term
// URL cache when a still-fresh entry exists.
func (r *Resolver) ResolveURL(ctx context.Context, trackID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if url, ok := r.urls.get(trackID); ok {
		logger.Debug("short-term url cache hit", logger.String("trackId", trackID))
		return url, nil
	}

	resolved, err := r.resolveLocked(ctx, trackID)
	if err != nil {
		return "", err
	}
	r.urls.put(trackID, resolved.URL)
	return resolved.URL, nil
}

// Refresh forces a full resolution and returns the fresh URL. Used when a
// previously resolved URL is revoked mid-playback.
func (r *Resolver) Refresh(ctx context.Context, trackID string) (string, error) {
	resolved, err := r.Resolve(ctx, trackID)
	if err != nil {
		return "", err
	}
	return resolved.URL, nil
}

// Resolve always performs a full resolution, bypassing the URL cache, and
// records the result into it.
func (r *Resolver) Resolve(ctx context.Context, trackID string) (*ResolvedStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved, err := r.resolveLocked(ctx, trackID)
	if err != nil {
		return nil, err
	}
	r.urls.put(trackID, resolved.URL)
	return resolved, nil
}

func (r *Resolver) resolveLocked(ctx context.Context, trackID string) (*ResolvedStream, error) {
	body, err := r.api.Player(ctx, trackID, "")
	if err != nil {
		return nil, &ResolutionError{Kind: KindRemote, TrackID: trackID, cause: err}
	}

	// Data for a different track must never be trusted, and nothing may
	// be written for it.
	if body.VideoDetails == nil || body.VideoDetails.VideoID != trackID {
		return nil, &ResolutionError{Kind: KindIDMismatch, TrackID: trackID}
	}

	status := ""
	if body.PlayabilityStatus != nil {
		status = body.PlayabilityStatus.Status
	}
	switch status {
	case catalog.StatusOK:
		// proceed
	case catalog.StatusUnplayable:
		return nil, &ResolutionError{Kind: KindUnplayable, TrackID: trackID, Status: status}
	case catalog.StatusLoginRequired:
		return nil, &ResolutionError{Kind: KindLoginRequired, TrackID: trackID, Status: status}
	default:
		return nil, &ResolutionError{Kind: KindRemote, TrackID: trackID, Status: status}
	}

	streamFormat := body.StreamingData.HighestQualityAudioFormat()
	if streamFormat == nil {
		return nil, &ResolutionError{Kind: KindNoFormat, TrackID: trackID, Status: status}
	}

	format := model.Format{
		TrackID:       trackID,
		Itag:          streamFormat.Itag,
		MimeType:      streamFormat.MimeType,
		Bitrate:       streamFormat.Bitrate,
		ContentLength: streamFormat.ContentLengthBytes(),
		LastModified:  streamFormat.LastModifiedUnix(),
	}
	if body.PlayerConfig != nil && body.PlayerConfig.AudioConfig != nil {
		format.LoudnessDb = body.PlayerConfig.AudioConfig.LoudnessDb
	}

	if err := r.persist(trackID, body, streamFormat, &format); err != nil {
		// Metadata writes are opportunistic for playback: losing them must
		// not lose the stream.
		logger.Warn("failed to persist resolved metadata",
			logger.String("trackId", trackID), logger.ErrorField(err))
	}

	return &ResolvedStream{URL: streamFormat.URL, Format: format}, nil
}

// persist writes the format row, the opportunistic track row and the
// duration backfill in one transaction, so a reader never observes a
// format without its track.
func (r *Resolver) persist(trackID string, body *catalog.PlayerResponse, streamFormat *catalog.StreamFormat, format *model.Format) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		tracks := repository.NewTrackRepository(tx)
		formats := repository.NewFormatRepository(tx)

		track := &model.Track{
			ID:          trackID,
			Title:       body.VideoDetails.Title,
			ArtistsText: body.VideoDetails.Author,
			ArtworkURL:  body.VideoDetails.BestThumbnail(),
		}
		if err := tracks.InsertIgnore(track); err != nil {
			return err
		}

		// Backfill the duration text when the stored track lacks one.
		if ms := streamFormat.ApproxDuration(); ms != nil {
			known, err := tracks.ByID(trackID)
			if err != nil {
				return err
			}
			if known != nil && known.DurationText == "" {
				if err := tracks.UpdateDurationText(trackID, formatDuration(*ms)); err != nil {
					return err
				}
			}
		}

		return formats.Replace(format)
	})
}

// formatDuration renders millis as m:ss (or h:mm:ss).
func formatDuration(ms int64) string {
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
