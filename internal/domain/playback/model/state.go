// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

// State is the single explicit playback state of a session.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateBuffering State = "buffering"
	StateEnded     State = "ended"
	StateErrored   State = "errored"
)

// AllStates lists every state in declaration order.
var AllStates = []State{
	StateIdle,
	StateLoading,
	StateReady,
	StatePlaying,
	StatePaused,
	StateBuffering,
	StateEnded,
	StateErrored,
}

// IsTerminal reports whether a session in this state can never leave it.
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateErrored
}

// IsPlaybackActive reports whether media is (or is trying to be) rendering.
func (s State) IsPlaybackActive() bool {
	return s == StatePlaying || s == StateBuffering
}

func (s State) String() string { return string(s) }
