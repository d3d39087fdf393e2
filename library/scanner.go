package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"tunetube/logger"
	"tunetube/model"
	"tunetube/repository"
)

// rescanInterval is the fallback full-scan cadence for changes fsnotify
// misses (network mounts, moves across directories).
const rescanInterval = 10 * time.Minute

// debounce coalesces bursts of filesystem events into one scan.
const debounce = 2 * time.Second

var audioExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".flac": true,
	".wav":  true,
}

// Scanner keeps device-local audio files registered as tracks. Local
// tracks never hit the network resolver; their id embeds the file path.
type Scanner struct {
	dir    string
	tracks repository.TrackRepository
}

func NewScanner(dir string, tracks repository.TrackRepository) *Scanner {
	return &Scanner{dir: dir, tracks: tracks}
}

// Run scans once, then watches for changes until ctx is done. A missing
// or empty music directory is not an error; the scanner just idles.
func (s *Scanner) Run(ctx context.Context) {
	if s.dir == "" {
		return
	}
	if _, err := os.Stat(s.dir); err != nil {
		logger.Warn("music directory unavailable",
			logger.String("dir", s.dir), logger.ErrorField(err))
		return
	}

	s.scan()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("filesystem watch unavailable, relying on rescans",
			logger.ErrorField(err))
		s.rescanLoop(ctx)
		return
	}
	defer watcher.Close()

	if err := s.watchTree(watcher); err != nil {
		logger.Warn("watch music directory failed",
			logger.String("dir", s.dir), logger.ErrorField(err))
	}

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	kick := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Write) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					watcher.Add(ev.Name)
				}
			}
			if pending == nil {
				pending = time.AfterFunc(debounce, func() {
					select {
					case kick <- struct{}{}:
					default:
					}
				})
			} else {
				pending.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("filesystem watch error", logger.ErrorField(err))

		case <-kick:
			pending = nil
			s.scan()

		case <-ticker.C:
			s.scan()
		}
	}
}

func (s *Scanner) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

func (s *Scanner) watchTree(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// scan walks the music directory and registers every audio file found.
func (s *Scanner) scan() {
	found := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("scan entry failed",
				logger.String("path", path), logger.ErrorField(err))
			return nil
		}
		if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return nil
		}
		track := localTrack(rel)
		if err := s.tracks.InsertIgnore(&track); err != nil {
			logger.Warn("register local track failed",
				logger.String("path", path), logger.ErrorField(err))
			return nil
		}
		found++
		return nil
	})
	if err != nil {
		logger.Warn("library scan failed",
			logger.String("dir", s.dir), logger.ErrorField(err))
		return
	}
	logger.Debug("library scan complete",
		logger.String("dir", s.dir), logger.Int("files", found))
}

// localTrack builds the track record for a path relative to the music
// directory. The id carries the path so playback can open the file
// without any lookup.
func localTrack(path string) model.Track {
	name := filepath.Base(path)
	title := strings.TrimSuffix(name, filepath.Ext(name))

	artists := ""
	if i := strings.Index(title, " - "); i > 0 {
		artists = title[:i]
		title = title[i+3:]
	}

	return model.Track{
		ID:          model.LocalKeyPrefix + path,
		Title:       title,
		ArtistsText: artists,
	}
}
