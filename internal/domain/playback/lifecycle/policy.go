// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/lessonguard/internal/domain/playback/model"

// Action is what the session does in response to an error or a violation.
type Action string

const (
	// ActionRetryWithNewCredential re-acquires a credential once and retries playback.
	ActionRetryWithNewCredential Action = "retry_with_new_credential"
	// ActionSurface moves to errored and reports a retryable error to the host.
	ActionSurface Action = "surface"
	// ActionFatal moves to errored; the asset cannot be played.
	ActionFatal Action = "fatal"
	// ActionPauseAndBlock pauses active playback and raises a blocking notice.
	ActionPauseAndBlock Action = "pause_and_block"
	// ActionLogOnly reports the violation without touching playback.
	ActionLogOnly Action = "log_only"
)

var recoveryPolicy = map[model.ErrorKind]Action{
	model.KindNetwork:              ActionSurface,
	model.KindAuthorizationExpired: ActionRetryWithNewCredential,
	model.KindPlaybackRestricted:   ActionRetryWithNewCredential,
	model.KindMediaNotFound:        ActionFatal,
	model.KindIntegrityViolation:   ActionLogOnly,
}

var violationPolicy = map[model.ViolationKind]Action{
	model.ViolationRightClick:        ActionLogOnly,
	model.ViolationDevToolsOpen:      ActionPauseAndBlock,
	model.ViolationScreenCapture:     ActionLogOnly,
	model.ViolationTabHidden:         ActionLogOnly,
	model.ViolationKeyboardBlocklist: ActionLogOnly,
}

// RecoveryPolicyFor maps an error kind to its recovery action.
// Unknown kinds are surfaced.
func RecoveryPolicyFor(kind model.ErrorKind) Action {
	if a, ok := recoveryPolicy[kind]; ok {
		return a
	}
	return ActionSurface
}

// ViolationPolicyFor maps a violation kind to its action.
// Unknown kinds are logged only.
func ViolationPolicyFor(kind model.ViolationKind) Action {
	if a, ok := violationPolicy[kind]; ok {
		return a
	}
	return ActionLogOnly
}
