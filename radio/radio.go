package radio

import (
	"context"
	"fmt"
	"sync"

	"tunetube/catalog"
	"tunetube/logger"
	"tunetube/model"
	"tunetube/repository"
)

// refillThreshold is the remaining-queue size at which the radio fetches
// another page.
const refillThreshold = 3

// pageSize caps how many tracks one refill appends.
const pageSize = 25

// Queue is the slice of the playback engine the radio needs: what is
// queued and how to extend it.
type Queue interface {
	Enqueue(tracks ...model.Track)
	QueueIDs() []string
	Remaining() int
}

// Radio extends the queue with related tracks fetched from the catalog,
// the way an autoplay station would.
type Radio struct {
	client *catalog.Client
	tracks repository.TrackRepository
	queue  Queue

	mu           sync.Mutex
	active       bool
	ctx          context.Context
	cancel       context.CancelFunc
	playlistID   string
	params       string
	continuation string
	seen         map[string]bool
	fetching     bool
}

func New(client *catalog.Client, tracks repository.TrackRepository, queue Queue) *Radio {
	return &Radio{client: client, tracks: tracks, queue: queue}
}

// Start seeds the radio from a track and begins extending the queue.
func (r *Radio) Start(seedVideoID, playlistID, params string) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.ctx = ctx
	r.cancel = cancel
	r.active = true
	r.playlistID = playlistID
	r.params = params
	r.continuation = ""
	r.seen = map[string]bool{}
	if seedVideoID != "" {
		r.seen[seedVideoID] = true
	}
	r.mu.Unlock()

	go r.refill(ctx, seedVideoID)
}

// Stop ends the station; the queue keeps whatever was already appended.
func (r *Radio) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.active = false
	r.mu.Unlock()
}

// Active reports whether a station is running.
func (r *Radio) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Process checks the queue level and refills when it runs low. Call it on
// every item transition.
func (r *Radio) Process() {
	r.mu.Lock()
	if !r.active || r.fetching || r.cancel == nil {
		r.mu.Unlock()
		return
	}
	if r.queue.Remaining() > refillThreshold {
		r.mu.Unlock()
		return
	}
	// refills run under the station context so Stop cancels them
	ctx := r.ctx
	r.mu.Unlock()

	go r.refill(ctx, "")
}

func (r *Radio) refill(ctx context.Context, seedVideoID string) {
	r.mu.Lock()
	if r.fetching || !r.active {
		r.mu.Unlock()
		return
	}
	r.fetching = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.fetching = false
		r.mu.Unlock()
	}()

	songs, err := r.fetchPage(ctx, seedVideoID)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("radio refill failed", logger.ErrorField(err))
		}
		return
	}

	tracks := r.filter(songs)
	if len(tracks) == 0 {
		return
	}

	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if !active || ctx.Err() != nil {
		return
	}

	r.queue.Enqueue(tracks...)
	logger.Debug("radio appended tracks", logger.Int("count", len(tracks)))
}

func (r *Radio) fetchPage(ctx context.Context, seedVideoID string) ([]catalog.Song, error) {
	r.mu.Lock()
	continuation := r.continuation
	playlistID := r.playlistID
	params := r.params
	r.mu.Unlock()

	var songs []catalog.Song
	for len(songs) < pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var page *catalog.NextPage
		var err error
		if continuation != "" {
			page, err = r.client.Continuation(ctx, continuation)
		} else {
			page, err = r.client.Next(ctx, seedVideoID, playlistID, params)
			seedVideoID = ""
		}
		if err != nil {
			return nil, fmt.Errorf("fetch radio page: %w", err)
		}
		if page.PlaylistID != "" {
			playlistID = page.PlaylistID
		}
		if page.Params != "" {
			params = page.Params
		}
		songs = append(songs, page.Songs...)
		continuation = page.Continuation
		if continuation == "" {
			break
		}
	}

	r.mu.Lock()
	r.continuation = continuation
	r.playlistID = playlistID
	r.params = params
	r.mu.Unlock()
	return songs, nil
}

// filter drops tracks that are already queued, already appended by this
// station, or blacklisted.
func (r *Radio) filter(songs []catalog.Song) []model.Track {
	blacklisted, err := r.tracks.Blacklisted()
	if err != nil {
		logger.Warn("load blacklist failed", logger.ErrorField(err))
		blacklisted = map[string]bool{}
	}

	queued := map[string]bool{}
	for _, id := range r.queue.QueueIDs() {
		queued[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Track
	for _, s := range songs {
		if s.VideoID == "" || queued[s.VideoID] || r.seen[s.VideoID] || blacklisted[s.VideoID] {
			continue
		}
		r.seen[s.VideoID] = true
		out = append(out, model.Track{
			ID:           s.VideoID,
			Title:        s.Title,
			ArtistsText:  s.ArtistsText,
			DurationText: s.DurationText,
			ArtworkURL:   s.ArtworkURL,
			Explicit:     s.Explicit,
		})
	}
	return out
}
