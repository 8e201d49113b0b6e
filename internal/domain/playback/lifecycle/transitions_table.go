// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
)

// ErrIllegalTransition is returned for any state+event pair absent from the table.
var ErrIllegalTransition = errors.New("illegal playback transition")

// Transition is a single allowed edge in the playback state machine.
type Transition struct {
	From  model.State
	Event EventKind
	To    model.State
}

var transitionsTable = []Transition{
	// Mount path
	{From: model.StateIdle, Event: EvLoad, To: model.StateLoading},
	{From: model.StateLoading, Event: EvMediaReady, To: model.StateReady},

	// Play / pause
	{From: model.StateReady, Event: EvPlay, To: model.StatePlaying},
	{From: model.StatePaused, Event: EvPlay, To: model.StatePlaying},
	{From: model.StateBuffering, Event: EvPlay, To: model.StatePlaying},
	{From: model.StatePlaying, Event: EvPause, To: model.StatePaused},
	{From: model.StateBuffering, Event: EvPause, To: model.StatePaused},

	// Buffering
	{From: model.StatePlaying, Event: EvWaiting, To: model.StateBuffering},
	{From: model.StateBuffering, Event: EvResumed, To: model.StatePlaying},
	{From: model.StateBuffering, Event: EvMediaReady, To: model.StateReady},

	// End of media
	{From: model.StatePlaying, Event: EvEnded, To: model.StateEnded},
	{From: model.StateBuffering, Event: EvEnded, To: model.StateEnded},

	// Credential (re)acquisition
	{From: model.StateLoading, Event: EvCredentialRefresh, To: model.StateLoading},
	{From: model.StateReady, Event: EvCredentialRefresh, To: model.StateLoading},
	{From: model.StatePlaying, Event: EvCredentialRefresh, To: model.StateLoading},
	{From: model.StatePaused, Event: EvCredentialRefresh, To: model.StateLoading},
	{From: model.StateBuffering, Event: EvCredentialRefresh, To: model.StateLoading},

	// Failure from any non-terminal state
	{From: model.StateIdle, Event: EvFail, To: model.StateErrored},
	{From: model.StateLoading, Event: EvFail, To: model.StateErrored},
	{From: model.StateReady, Event: EvFail, To: model.StateErrored},
	{From: model.StatePlaying, Event: EvFail, To: model.StateErrored},
	{From: model.StatePaused, Event: EvFail, To: model.StateErrored},
	{From: model.StateBuffering, Event: EvFail, To: model.StateErrored},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Next resolves the target state or returns ErrIllegalTransition.
func Next(from model.State, ev EventKind) (model.State, error) {
	tr, ok := TransitionFor(from, ev)
	if !ok {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrIllegalTransition, from, ev)
	}
	return tr.To, nil
}

// Allows reports whether ev is accepted in state from.
func Allows(from model.State, ev EventKind) bool {
	_, ok := TransitionFor(from, ev)
	return ok
}
