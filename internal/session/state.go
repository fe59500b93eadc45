package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/satindergrewal/lyricast/internal/encode"
	"github.com/satindergrewal/lyricast/internal/project"
)

var (
	// ErrBusy is returned when an export is started while another runs.
	ErrBusy = errors.New("an export is already in progress")
	// ErrAborted marks an outcome ended by an abort request.
	ErrAborted = errors.New("export aborted")
	// ErrEmptyQueue is returned for a project without tracks.
	ErrEmptyQueue = project.ErrEmptyQueue
)

// TrackError is a failure while playing one track of the queue.
type TrackError struct {
	Index int
	Title string
	Err   error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("track %d (%s): %v", e.Index+1, e.Title, e.Err)
}

func (e *TrackError) Unwrap() error { return e.Err }

// State is the session lifecycle position.
type State int

const (
	Idle State = iota
	Preloading
	Playing
	Finalizing
	Aborted
)

var stateNames = [...]string{"idle", "preloading", "playing", "finalizing", "aborted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Status is how a session ended.
type Status int

const (
	Succeeded Status = iota
	AbortedByUser
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case AbortedByUser:
		return "aborted"
	}
	return "failed"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome is the terminal result of a session, reported exactly once.
type Outcome struct {
	ID       string
	Title    string
	Status   Status
	Err      error
	Artifact *encode.Artifact // nil unless something was finalized
	Codec    string
	Fallback bool // Codec differs from the configured preference
	Tracks   int
	Started  time.Time
	Ended    time.Time
}

// Progress is a snapshot of a running session. Percent covers the current
// track only and restarts at zero on each track.
type Progress struct {
	SessionID string  `json:"session_id,omitempty"`
	State     State   `json:"state"`
	Track     int     `json:"track"`
	Tracks    int     `json:"tracks"`
	Title     string  `json:"title,omitempty"`
	Percent   float64 `json:"percent"`
	Codec     string  `json:"codec,omitempty"`
	Fallback  bool    `json:"fallback,omitempty"`
}
