// Package preferences is a typed key-value store over a watched file.
// Components register observers for individual keys; a change written by
// the user (or through Set) fires the observers without a restart.
package preferences

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"tunetube/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Preference keys.
const (
	KeySkipSilence         = "player.skipSilence"
	KeyMinSilenceMs        = "player.minSilenceMs"
	KeyTrackLoop           = "player.trackLoop"
	KeyQueueLoop           = "player.queueLoop"
	KeySpeed               = "player.speed"
	KeyPitch               = "player.pitch"
	KeyVolumeNormalization = "player.volumeNormalization"
	KeyNormalizationBaseDb = "player.volumeNormalizationBaseGainDb"
	KeyBassBoost           = "player.bassBoost"
	KeyBassBoostStrength   = "player.bassBoostStrength"
	KeyPersistentQueue     = "player.persistentQueue"
	KeySkipOnError         = "player.skipOnError"
	KeyInvincibility       = "player.invincibility"
	KeyPauseHistory        = "data.pauseHistory"
	KeyPausePlaytime       = "data.pausePlaytime"
)

var allKeys = []string{
	KeySkipSilence,
	KeyMinSilenceMs,
	KeyTrackLoop,
	KeyQueueLoop,
	KeySpeed,
	KeyPitch,
	KeyVolumeNormalization,
	KeyNormalizationBaseDb,
	KeyBassBoost,
	KeyBassBoostStrength,
	KeyPersistentQueue,
	KeySkipOnError,
	KeyInvincibility,
	KeyPauseHistory,
	KeyPausePlaytime,
}

// viper lower-cases keys internally; observers and snapshots use the
// canonical spelling above regardless of how the caller writes the key.
var canonicalKeys = func() map[string]string {
	m := make(map[string]string, len(allKeys))
	for _, key := range allKeys {
		m[strings.ToLower(key)] = key
	}
	return m
}()

func canonicalKey(key string) string {
	if c, ok := canonicalKeys[strings.ToLower(key)]; ok {
		return c
	}
	return key
}

// Store is a reactive preference store. Reads are cheap; observers run on
// the watcher goroutine and must hand off to their own execution context.
type Store struct {
	mu        sync.RWMutex
	v         *viper.Viper
	snapshot  map[string]interface{}
	observers map[string][]observer
	nextID    int
}

type observer struct {
	id int
	fn func()
}

// Load opens (creating if absent) the preference file and starts watching
// it for changes.
func Load(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create preferences directory: %w", err)
		}
		if err := v.SafeWriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("failed to write default preferences: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	s := &Store{
		v:         v,
		snapshot:  flatten(v),
		observers: make(map[string][]observer),
	}

	v.OnConfigChange(func(fsnotify.Event) {
		s.onFileChanged()
	})
	v.WatchConfig()

	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySkipSilence, false)
	v.SetDefault(KeyMinSilenceMs, 1000)
	v.SetDefault(KeyTrackLoop, false)
	v.SetDefault(KeyQueueLoop, false)
	v.SetDefault(KeySpeed, 1.0)
	v.SetDefault(KeyPitch, 1.0)
	v.SetDefault(KeyVolumeNormalization, false)
	v.SetDefault(KeyNormalizationBaseDb, 5.0)
	v.SetDefault(KeyBassBoost, false)
	v.SetDefault(KeyBassBoostStrength, 500)
	v.SetDefault(KeyPersistentQueue, true)
	v.SetDefault(KeySkipOnError, false)
	v.SetDefault(KeyInvincibility, true)
	v.SetDefault(KeyPauseHistory, false)
	v.SetDefault(KeyPausePlaytime, false)
}

func flatten(v *viper.Viper) map[string]interface{} {
	out := make(map[string]interface{}, len(allKeys))
	for _, key := range allKeys {
		out[key] = v.Get(key)
	}
	return out
}

// onFileChanged diffs the new state against the last snapshot and fires
// observers for every changed key.
func (s *Store) onFileChanged() {
	s.mu.Lock()
	fresh := flatten(s.v)
	var fire []func()
	for key, val := range fresh {
		if reflect.DeepEqual(s.snapshot[key], val) {
			continue
		}
		logger.Debug("preference changed", logger.String("key", key), logger.Any("value", val))
		for _, obs := range s.observers[key] {
			fire = append(fire, obs.fn)
		}
	}
	s.snapshot = fresh
	s.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

// Observe registers fn to run whenever key changes. The returned function
// unregisters it.
func (s *Store) Observe(key string, fn func()) func() {
	key = canonicalKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.observers[key] = append(s.observers[key], observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.observers[key]
		for i, obs := range list {
			if obs.id == id {
				s.observers[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// Set writes a value, persists the file and fires observers for the key.
func (s *Store) Set(key string, value interface{}) error {
	key = canonicalKey(key)

	s.mu.Lock()
	s.v.Set(key, value)
	if err := s.v.WriteConfig(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to persist preference %s: %w", key, err)
	}
	changed := !reflect.DeepEqual(s.snapshot[key], s.v.Get(key))
	s.snapshot[key] = s.v.Get(key)
	var fire []func()
	if changed {
		for _, obs := range s.observers[key] {
			fire = append(fire, obs.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
	return nil
}

// Bool returns a boolean preference.
func (s *Store) Bool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(key)
}

// Int returns an integer preference.
func (s *Store) Int(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetInt(key)
}

// Float returns a float preference.
func (s *Store) Float(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetFloat64(key)
}

// All returns a copy of the current preference snapshot.
func (s *Store) All() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}
