package main

import (
	"log/slog"

	"github.com/satindergrewal/lyricast/internal/session"
)

// watchPlain logs state changes, track starts and every 10% of a track until
// updates closes, then returns the outcome.
func watchPlain(updates <-chan session.Progress, wait func() session.Outcome, logger *slog.Logger) session.Outcome {
	var last session.Progress
	first := true
	for pr := range updates {
		switch {
		case first || pr.State != last.State:
			logger.Info("export "+pr.State.String(), "track", pr.Track+1, "tracks", pr.Tracks, "codec", pr.Codec)
		case pr.Track != last.Track:
			logger.Info("track started", "track", pr.Track+1, "tracks", pr.Tracks, "title", pr.Title)
		case int(pr.Percent)/10 != int(last.Percent)/10:
			logger.Info("progress", "track", pr.Track+1, "percent", int(pr.Percent))
		}
		first = false
		last = pr
	}

	o := wait()
	attrs := []any{"session", o.ID, "status", o.Status, "elapsed", o.Ended.Sub(o.Started)}
	if o.Fallback {
		attrs = append(attrs, "codec", o.Codec, "fallback", true)
	}
	logger.Info("export done", attrs...)
	return o
}
