// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package security

import (
	"strings"

	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
)

// chord is one blocklisted key combination.
type chord struct {
	name  string
	key   string // compared case-insensitively
	ctrl  bool
	shift bool
}

// blocklist holds the inspector and view-source shortcuts.
var blocklist = []chord{
	{name: "F12", key: "F12"},
	{name: "Ctrl+Shift+I", key: "i", ctrl: true, shift: true},
	{name: "Ctrl+U", key: "u", ctrl: true},
	{name: "Ctrl+Shift+C", key: "c", ctrl: true, shift: true},
}

// BlockedChord returns the name of the blocklisted chord k matches.
func BlockedChord(k ports.KeyInfo) (string, bool) {
	for _, c := range blocklist {
		if !strings.EqualFold(k.Key, c.key) {
			continue
		}
		if c.ctrl && !k.Ctrl {
			continue
		}
		if c.shift && !k.Shift {
			continue
		}
		return c.name, true
	}
	return "", false
}

// IsBlockedChord reports whether k is consumed by the monitor.
func IsBlockedChord(k ports.KeyInfo) bool {
	_, ok := BlockedChord(k)
	return ok
}
