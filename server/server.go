package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"tunetube/audio"
	"tunetube/catalog"
	"tunetube/config"
	"tunetube/datasource"
	"tunetube/db"
	"tunetube/library"
	"tunetube/logger"
	"tunetube/player"
	"tunetube/preferences"
	"tunetube/radio"
	"tunetube/repository"
	"tunetube/resolver"
	"tunetube/session"
	"tunetube/streamcache"
)

// Start brings the whole playback service up and blocks until a shutdown
// signal arrives.
func Start(cfg *config.Config) error {
	gdb, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	prefs, err := preferences.Load(cfg.PrefsPath)
	if err != nil {
		return err
	}

	cache, err := streamcache.Open(cfg.CacheDir, cfg.CacheMaxBytes)
	if err != nil {
		return err
	}

	trackRepo := repository.NewTrackRepository(gdb)
	formatRepo := repository.NewFormatRepository(gdb)
	queueRepo := repository.NewQueueRepository(gdb)
	eventRepo := repository.NewEventRepository(gdb)

	client := catalog.NewClient(cfg.CatalogBaseURL, cfg.UserAgent, cfg.ReadTimeout)
	res := resolver.New(client, gdb, cfg.URLCacheSize)
	source := datasource.New(cache, res, formatRepo, datasource.Options{
		MusicDir:       cfg.MusicDir,
		ChunkBytes:     cfg.ChunkBytes,
		UserAgent:      cfg.UserAgent,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
	})

	stats := player.NewStatsRecorder(trackRepo, eventRepo)
	sink := audio.NewSpeakerSink()
	engine := player.NewEngine(player.Options{
		Opener: &mediaOpener{source: source, formats: formatRepo},
		Sink:   &sinkAdapter{sink: sink},
		Stats:  stats,
		Gain:   gainFunc(prefs, formatRepo, trackRepo),
	})

	station := radio.New(client, trackRepo, engine)
	engine.Bus().Subscribe(func(ev player.Event) {
		if ev.Type == player.EventItemTransitioned {
			station.Process()
		}
	})

	hub := session.NewHub()
	go hub.Run()
	defer hub.Stop()

	syncer := session.NewSynchronizer(session.Options{
		Engine: engine,
		Hub:    hub,
		Queue:  queueRepo,
		Tracks: trackRepo,
		Prefs:  prefs,
	})

	applyPreferences(engine, stats, prefs)
	unsubscribe := observePreferences(engine, stats, prefs)
	defer unsubscribe()

	syncer.Start()
	defer syncer.Close()

	scanCtx, cancelScan := context.WithCancel(context.Background())
	defer cancelScan()
	scanner := library.NewScanner(cfg.MusicDir, trackRepo)
	go scanner.Run(scanCtx)

	handler := NewAPIHandler(APIHandlerOptions{
		Engine: engine,
		Radio:  station,
		Sync:   syncer,
		Hub:    hub,
		Client: client,
		Cache:  cache,
		Tracks: trackRepo,
		Events: eventRepo,
		Prefs:  prefs,
	})

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", logger.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", logger.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", logger.ErrorField(err))
	}

	// The deferred synchronizer close persists the queue before the
	// engine tears its session down.
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// applyPreferences pushes the stored preference values onto the engine at
// startup.
func applyPreferences(engine *player.Engine, stats *player.StatsRecorder, prefs *preferences.Store) {
	engine.SetSkipSilence(prefs.Bool(preferences.KeySkipSilence))
	engine.SetMinSilence(time.Duration(prefs.Int(preferences.KeyMinSilenceMs)) * time.Millisecond)
	engine.SetTrackLoop(prefs.Bool(preferences.KeyTrackLoop))
	engine.SetQueueLoop(prefs.Bool(preferences.KeyQueueLoop))
	engine.SetSpeed(prefs.Float(preferences.KeySpeed))
	engine.SetPitch(prefs.Float(preferences.KeyPitch))
	engine.SetSkipOnError(prefs.Bool(preferences.KeySkipOnError))
	engine.SetBassBoost(prefs.Bool(preferences.KeyBassBoost), prefs.Int(preferences.KeyBassBoostStrength))
	stats.SetPauseHistory(prefs.Bool(preferences.KeyPauseHistory))
	stats.SetPausePlaytime(prefs.Bool(preferences.KeyPausePlaytime))
}

// observePreferences wires live preference changes to the running engine.
func observePreferences(engine *player.Engine, stats *player.StatsRecorder, prefs *preferences.Store) func() {
	var unsubs []func()
	observe := func(key string, fn func()) {
		unsubs = append(unsubs, prefs.Observe(key, fn))
	}

	observe(preferences.KeySkipSilence, func() {
		engine.SetSkipSilence(prefs.Bool(preferences.KeySkipSilence))
	})
	observe(preferences.KeyMinSilenceMs, func() {
		engine.SetMinSilence(time.Duration(prefs.Int(preferences.KeyMinSilenceMs)) * time.Millisecond)
	})
	observe(preferences.KeyTrackLoop, func() {
		engine.SetTrackLoop(prefs.Bool(preferences.KeyTrackLoop))
	})
	observe(preferences.KeyQueueLoop, func() {
		engine.SetQueueLoop(prefs.Bool(preferences.KeyQueueLoop))
	})
	observe(preferences.KeySpeed, func() {
		engine.SetSpeed(prefs.Float(preferences.KeySpeed))
	})
	observe(preferences.KeyPitch, func() {
		engine.SetPitch(prefs.Float(preferences.KeyPitch))
	})
	observe(preferences.KeySkipOnError, func() {
		engine.SetSkipOnError(prefs.Bool(preferences.KeySkipOnError))
	})
	observe(preferences.KeyBassBoost, func() {
		engine.SetBassBoost(prefs.Bool(preferences.KeyBassBoost), prefs.Int(preferences.KeyBassBoostStrength))
	})
	observe(preferences.KeyBassBoostStrength, func() {
		engine.SetBassBoost(prefs.Bool(preferences.KeyBassBoost), prefs.Int(preferences.KeyBassBoostStrength))
	})
	observe(preferences.KeyVolumeNormalization, engine.RefreshGain)
	observe(preferences.KeyNormalizationBaseDb, engine.RefreshGain)
	observe(preferences.KeyPauseHistory, func() {
		stats.SetPauseHistory(prefs.Bool(preferences.KeyPauseHistory))
	})
	observe(preferences.KeyPausePlaytime, func() {
		stats.SetPausePlaytime(prefs.Bool(preferences.KeyPausePlaytime))
	})

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// gainFunc computes the normalization gain for a track from its measured
// loudness, the configured base gain and any per-track boost.
func gainFunc(prefs *preferences.Store, formats repository.FormatRepository, tracks repository.TrackRepository) player.GainFunc {
	return func(trackID string) *int {
		if !prefs.Bool(preferences.KeyVolumeNormalization) {
			return nil
		}

		var loudnessDb *float64
		if format, err := formats.ByTrack(trackID); err == nil && format != nil {
			loudnessDb = format.LoudnessDb
		}
		boostDb, err := tracks.LoudnessBoost(trackID)
		if err != nil {
			boostDb = nil
		}

		base := prefs.Float(preferences.KeyNormalizationBaseDb)
		gainMb, rejected := audio.TargetGainMb(base, boostDb, loudnessDb)
		if rejected {
			logger.Warn("extreme loudness value rejected",
				logger.String("track_id", trackID))
		}
		return &gainMb
	}
}

// mediaOpener adapts the resolving data source to the engine contract.
type mediaOpener struct {
	source  *datasource.Source
	formats repository.FormatRepository
}

func (o *mediaOpener) OpenMedia(ctx context.Context, trackID string) (audio.Input, error) {
	rc, err := o.source.Open(ctx, datasource.ReadSpec{TrackID: trackID, Position: 0, Length: -1})
	if err != nil {
		return audio.Input{}, err
	}

	mimeType := ""
	if format, err := o.formats.ByTrack(trackID); err == nil && format != nil {
		mimeType = format.MimeType
	}
	return audio.Input{Stream: rc, MimeType: mimeType, Name: trackID}, nil
}

// sinkAdapter narrows the concrete speaker sink to the engine interface.
type sinkAdapter struct {
	sink *audio.SpeakerSink
}

func (a *sinkAdapter) Open(ctx context.Context, in audio.Input, params audio.ChainParams, cb audio.Callbacks) (player.SinkSession, error) {
	sess, err := a.sink.Open(ctx, in, params, cb)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
