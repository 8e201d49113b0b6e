// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

// DocumentEventKind is a document-scoped input event.
type DocumentEventKind string

const (
	EventContextMenu      DocumentEventKind = "contextmenu"
	EventSelectStart      DocumentEventKind = "selectstart"
	EventKeyDown          DocumentEventKind = "keydown"
	EventVisibilityChange DocumentEventKind = "visibilitychange"
)

// KeyInfo describes a keydown.
type KeyInfo struct {
	Key   string // KeyboardEvent.key, e.g. "F12", "I", "u", " "
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
	// OnBody reports whether the event target is the document body (not an input).
	OnBody bool
}

// DocumentEvent is what listeners receive.
type DocumentEvent interface {
	Kind() DocumentEventKind
	PreventDefault()
	// Key is only meaningful for EventKeyDown.
	Key() KeyInfo
}

// ListenerID identifies a registration for removal.
type ListenerID uint64

// WindowMetrics are the outer and inner window dimensions in CSS pixels.
type WindowMetrics struct {
	OuterWidth, OuterHeight int
	InnerWidth, InnerHeight int
}

// Platform is the capability interface standing in for window/document globals.
type Platform interface {
	AddDocumentListener(kind DocumentEventKind, fn func(DocumentEvent)) ListenerID
	RemoveDocumentListener(id ListenerID)
	WindowMetrics() WindowMetrics
	DocumentHidden() bool
}

// ScreenShareGuard is the host's single wrapper around the screen-share entry point.
// Subscribers are told about every invocation.
type ScreenShareGuard interface {
	Subscribe(fn func(payload map[string]string)) (unsubscribe func())
}
