// Package datasource is the read path of the playback engine: it turns a
// (track id, byte range) request into a byte stream, consulting the disk
// cache, the short-term URL cache or the resolver as needed, and writes
// every remote byte through to the cache as it flows.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tunetube/logger"
	"tunetube/model"
	"tunetube/repository"
	"tunetube/streamcache"
)

// ReadSpec describes one byte-range read request.
type ReadSpec struct {
	TrackID  string
	Position int64
	Length   int64 // < 0 means to end of stream
}

// URLResolver resolves track ids to streaming URLs.
type URLResolver interface {
	// ResolveURL may serve from the short-term URL cache.
	ResolveURL(ctx context.Context, trackID string) (string, error)
	// Refresh forces a new resolution, for URLs revoked mid-playback.
	Refresh(ctx context.Context, trackID string) (string, error)
}

// Source produces readable byte streams for track identifiers.
type Source struct {
	cache      *streamcache.Cache
	resolver   URLResolver
	formats    repository.FormatRepository
	client     *http.Client
	musicDir   string
	chunkBytes int64
	userAgent  string
}

// Options configure a Source.
type Options struct {
	MusicDir       string
	ChunkBytes     int64
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// New creates a Source.
func New(cache *streamcache.Cache, res URLResolver, formats repository.FormatRepository, opts Options) *Source {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = 512 * 1024
	}
	return &Source{
		cache:    cache,
		resolver: res,
		formats:  formats,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: opts.ConnectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: opts.ReadTimeout,
			},
		},
		musicDir:   opts.MusicDir,
		chunkBytes: opts.ChunkBytes,
		userAgent:  opts.UserAgent,
	}
}

// Open produces a byte stream for the requested range. Local tracks pass
// straight through to the filesystem with no caching or resolution.
func (s *Source) Open(ctx context.Context, spec ReadSpec) (io.ReadCloser, error) {
	if model.IsLocalID(spec.TrackID) {
		return s.openLocal(spec)
	}

	// A cached range is only trusted while the stream's content length is
	// known; without it a stale partial stream could masquerade as complete.
	var total int64 = -1
	if s.formats != nil {
		length, err := s.formats.ContentLength(spec.TrackID)
		if err != nil {
			logger.Warn("failed to load known content length",
				logger.String("trackId", spec.TrackID), logger.ErrorField(err))
		} else if length != nil {
			total = *length
		}
	}

	// The requested length bounds the read even when the total length is
	// unknown.
	end := total
	if spec.Length >= 0 && (end < 0 || spec.Position+spec.Length < end) {
		end = spec.Position + spec.Length
	}

	return &chunkedReader{
		source:  s,
		ctx:     ctx,
		trackID: spec.TrackID,
		offset:  spec.Position,
		end:     end,
		trusted: total >= 0,
	}, nil
}

func (s *Source) openLocal(spec ReadSpec) (io.ReadCloser, error) {
	path := filepath.Join(s.musicDir, filepath.Clean(model.LocalPath(spec.TrackID)))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local track: %w", err)
	}
	if spec.Position > 0 {
		if _, err := f.Seek(spec.Position, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to seek local track: %w", err)
		}
	}
	if spec.Length >= 0 {
		return &limitedReadCloser{r: io.LimitReader(f, spec.Length), c: f}, nil
	}
	return f, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

// chunkedReader reads a remote stream one bounded chunk at a time. Each
// chunk is served from the cache when fully present, otherwise fetched by
// range request and teed into the cache as it is read.
type chunkedReader struct {
	source  *Source
	ctx     context.Context
	trackID string
	offset  int64
	end     int64 // exclusive; -1 while unknown
	trusted bool  // cache ranges may be served
	current io.ReadCloser
	writer  io.WriteCloser // cache write-through for the current chunk
	done    bool
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if r.done || (r.end >= 0 && r.offset >= r.end) {
				return 0, io.EOF
			}
			if err := r.openChunk(); err != nil {
				return 0, err
			}
		}

		n, err := r.current.Read(p)
		if n > 0 && r.writer != nil {
			// Best effort: a cache write failure degrades to "not cached
			// this time", it must never abort playback.
			if _, werr := r.writer.Write(p[:n]); werr != nil {
				logger.Warn("cache write-through failed",
					logger.String("trackId", r.trackID), logger.ErrorField(werr))
				r.writer.Close()
				r.writer = nil
			}
		}
		r.offset += int64(n)

		if err == io.EOF {
			r.closeChunk()
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			r.closeChunk()
			return n, err
		}
		return n, nil
	}
}

func (r *chunkedReader) chunkLength() int64 {
	length := r.source.chunkBytes
	if r.end >= 0 && r.offset+length > r.end {
		length = r.end - r.offset
	}
	return length
}

func (r *chunkedReader) openChunk() error {
	length := r.chunkLength()

	if r.trusted && r.source.cache.IsCached(r.trackID, r.offset, length) {
		reader, err := r.source.cache.ReadRange(r.trackID, r.offset, length)
		if err == nil {
			r.current = reader
			return nil
		}
		logger.Warn("cache read failed, falling back to remote",
			logger.String("trackId", r.trackID), logger.ErrorField(err))
	}

	url, err := r.source.resolver.ResolveURL(r.ctx, r.trackID)
	if err != nil {
		return err
	}

	resp, err := r.fetch(url, length)
	if errors.Is(err, errStaleURL) {
		// The resolved URL expired mid-playback; resolve afresh once.
		url, err = r.source.resolver.Refresh(r.ctx, r.trackID)
		if err != nil {
			return err
		}
		resp, err = r.fetch(url, length)
	}
	if err != nil {
		return err
	}

	if r.end < 0 {
		if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok {
			r.end = total
		} else if resp.ContentLength >= 0 && resp.StatusCode == http.StatusOK {
			r.end = r.offset + resp.ContentLength
		}
	}

	r.current = resp.Body

	if !model.IsLocalID(r.trackID) {
		writer, werr := r.source.cache.Writer(r.trackID, r.offset)
		if werr != nil {
			logger.Warn("cache writer unavailable",
				logger.String("trackId", r.trackID), logger.ErrorField(werr))
		} else {
			r.writer = writer
		}
	}
	return nil
}

var errStaleURL = errors.New("stream url no longer valid")

func (r *chunkedReader) fetch(url string, length int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	if r.source.userAgent != "" {
		req.Header.Set("User-Agent", r.source.userAgent)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.offset, r.offset+length-1))

	resp, err := r.source.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return resp, nil
	case http.StatusForbidden, http.StatusGone:
		resp.Body.Close()
		return nil, errStaleURL
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		r.done = true
		return nil, io.EOF
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("stream request returned status %d", resp.StatusCode)
	}
}

func (r *chunkedReader) closeChunk() {
	if r.current != nil {
		r.current.Close()
		r.current = nil
	}
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			logger.Warn("cache span commit failed",
				logger.String("trackId", r.trackID), logger.ErrorField(err))
		}
		r.writer = nil
	}
}

func (r *chunkedReader) Close() error {
	r.closeChunk()
	r.done = true
	return nil
}

// contentRangeTotal parses the total size out of "bytes start-end/total".
func contentRangeTotal(header string) (int64, bool) {
	var start, end, total int64
	if _, err := fmt.Sscanf(header, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		return 0, false
	}
	return total, true
}
