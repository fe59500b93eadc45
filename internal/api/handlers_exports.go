package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/satindergrewal/lyricast/internal/encode"
	"github.com/satindergrewal/lyricast/internal/project"
	"github.com/satindergrewal/lyricast/internal/session"
	"github.com/satindergrewal/lyricast/internal/stream"
)

// ExportHandler starts, aborts and reports on exports.
type ExportHandler struct {
	ctrl     *session.Controller
	monitor  *Monitor
	defaults project.RenderConfig
	log      *slog.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(ctrl *session.Controller, monitor *Monitor, defaults project.RenderConfig, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{ctrl: ctrl, monitor: monitor, defaults: defaults, log: logger}
}

type startResponse struct {
	ID       string `json:"id"`
	Codec    string `json:"codec"`
	Fallback bool   `json:"fallback"`
	Tracks   int    `json:"tracks"`
}

// Start handles POST /api/exports
func (h *ExportHandler) Start(w http.ResponseWriter, r *http.Request) {
	var f project.File
	if err := decodeJSON(r, &f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, err := f.Build(h.defaults)
	if err == nil {
		err = p.Render.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.ctrl.Start(r.Context(), p)
	if err != nil {
		var ce *encode.CapabilityError
		switch {
		case errors.Is(err, session.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, session.ErrEmptyQueue):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &ce):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.log.Error("start export", "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	prog := s.Progress()
	writeJSON(w, http.StatusAccepted, startResponse{
		ID:       s.ID,
		Codec:    prog.Codec,
		Fallback: prog.Fallback,
		Tracks:   prog.Tracks,
	})
}

// Abort handles POST /api/exports/abort. Aborting with nothing running is
// not an error.
func (h *ExportHandler) Abort(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": h.ctrl.Abort()})
}

type latestSummary struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Error    string  `json:"error,omitempty"`
	File     string  `json:"file,omitempty"`
	Bytes    int     `json:"bytes,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Codec    string  `json:"codec"`
}

type statusResponse struct {
	Session session.Progress   `json:"session"`
	Latest  *latestSummary     `json:"latest,omitempty"`
	Monitor *stream.NowPlaying `json:"monitor,omitempty"`
}

// Status handles GET /api/status
func (h *ExportHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Session: h.ctrl.Status()}
	if o, ok := h.ctrl.Latest(); ok {
		l := &latestSummary{ID: o.ID, Status: o.Status.String(), Codec: o.Codec}
		if o.Err != nil && o.Status == session.Failed {
			l.Error = o.Err.Error()
		}
		if a := o.Artifact; a != nil {
			l.File = a.Name
			l.Bytes = a.Size()
			l.Duration = a.Duration
		}
		resp.Latest = l
	}
	if h.monitor != nil && h.monitor.Broadcaster != nil {
		np := h.monitor.Broadcaster.NowPlaying()
		resp.Monitor = &np
	}
	writeJSON(w, http.StatusOK, resp)
}

// Latest handles GET /api/exports/latest: the artifact of the last finished
// export as a download.
func (h *ExportHandler) Latest(w http.ResponseWriter, r *http.Request) {
	o, ok := h.ctrl.Latest()
	if !ok || o.Artifact == nil {
		writeError(w, http.StatusNotFound, "no export available")
		return
	}
	a := o.Artifact
	w.Header().Set("Content-Type", a.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	w.Header().Set("Content-Length", strconv.Itoa(a.Size()))
	w.Header().Set("Last-Modified", o.Ended.UTC().Format(time.RFC1123))
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
}
