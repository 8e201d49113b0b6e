// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

// EventKind is an input to the playback state machine.
type EventKind string

const (
	EvLoad              EventKind = "load"
	EvMediaReady        EventKind = "media_ready"
	EvPlay              EventKind = "play"
	EvPause             EventKind = "pause"
	EvWaiting           EventKind = "waiting"
	EvResumed           EventKind = "resumed"
	EvEnded             EventKind = "ended"
	EvCredentialRefresh EventKind = "credential_refresh"
	EvFail              EventKind = "fail"
)

// AllEvents lists every event kind.
var AllEvents = []EventKind{
	EvLoad,
	EvMediaReady,
	EvPlay,
	EvPause,
	EvWaiting,
	EvResumed,
	EvEnded,
	EvCredentialRefresh,
	EvFail,
}
