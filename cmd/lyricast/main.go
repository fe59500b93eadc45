package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogpu/gg"

	"github.com/satindergrewal/lyricast/internal/api"
	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/config"
	"github.com/satindergrewal/lyricast/internal/ffmpeg"
	"github.com/satindergrewal/lyricast/internal/history"
	"github.com/satindergrewal/lyricast/internal/session"
	"github.com/satindergrewal/lyricast/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lyricast: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stdout)
	gg.SetLogger(logger.With("component", "gg"))

	ffmpeg.FFmpegPath = cfg.FFmpegPath
	ffmpeg.FFprobePath = cfg.FFprobePath

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// History
	db, err := history.Open(cfg.HistoryDB)
	if err != nil {
		logger.Error("failed to open history database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := history.NewStore(db)

	// Live monitor: fan out the mixing bus of the running export
	var monitor *api.Monitor
	var webrtcHandler *stream.WebRTCHandler
	if cfg.Monitor {
		broadcaster := stream.NewBroadcaster(logger.With("component", "monitor"))
		webrtcHandler = stream.NewWebRTCHandler(broadcaster, logger.With("component", "webrtc"))
		monitor = &api.Monitor{
			Broadcaster: broadcaster,
			Stream:      stream.NewHTTPHandler(broadcaster, logger.With("component", "mp3")),
			Offer:       webrtcHandler,
		}
	}

	ctrl := session.NewController(session.Options{
		AssetTimeout:         cfg.AssetTimeout,
		TrackTimeout:         cfg.TrackTimeout,
		TrailingDelay:        cfg.TrailingDelay,
		FinalizeOnTrackError: cfg.FinalizeOnTrackError,
		Logger:               logger.With("component", "session"),
		OnBus: func(bus *audio.Bus) {
			if monitor != nil {
				monitor.Broadcaster.Attach(ctx, bus)
			}
		},
		OnFinish: func(o session.Outcome) {
			var file string
			if o.Artifact != nil {
				path, err := o.Artifact.Save(cfg.OutputDir)
				if err != nil {
					logger.Error("failed to save export", "session", o.ID, "error", err)
				} else {
					file = path
					logger.Info("export saved", "session", o.ID, "path", path)
				}
			}
			if err := store.Insert(history.FromOutcome(o, file)); err != nil {
				logger.Error("failed to record export", "session", o.ID, "error", err)
			}
		},
	})

	router := api.NewRouter(ctrl, store, monitor, cfg.RenderDefaults(), logger.With("component", "http"))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		// no WriteTimeout: monitor streams and downloads are long-lived
	}

	go func() {
		logger.Info("lyricast starting", "addr", addr, "output_dir", cfg.OutputDir, "monitor", cfg.Monitor)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	if s := ctrl.Active(); s != nil {
		s.Abort()
		s.Wait()
	}
	if webrtcHandler != nil {
		webrtcHandler.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
