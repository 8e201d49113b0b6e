// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package testutil

import (
	"sort"
	"sync"

	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
)

// FakePlatform is an in-memory document and window.
type FakePlatform struct {
	mu        sync.Mutex
	next      ports.ListenerID
	listeners map[ports.ListenerID]fakeListener
	metrics   ports.WindowMetrics
	hidden    bool
}

type fakeListener struct {
	kind ports.DocumentEventKind
	fn   func(ports.DocumentEvent)
}

var _ ports.Platform = (*FakePlatform)(nil)

// NewFakePlatform starts with a closed-devtools window of 1280x800.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		listeners: make(map[ports.ListenerID]fakeListener),
		metrics:   ports.WindowMetrics{OuterWidth: 1280, OuterHeight: 800, InnerWidth: 1280, InnerHeight: 720},
	}
}

func (p *FakePlatform) AddDocumentListener(kind ports.DocumentEventKind, fn func(ports.DocumentEvent)) ports.ListenerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.listeners[p.next] = fakeListener{kind: kind, fn: fn}
	return p.next
}

func (p *FakePlatform) RemoveDocumentListener(id ports.ListenerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, id)
}

func (p *FakePlatform) WindowMetrics() ports.WindowMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

func (p *FakePlatform) DocumentHidden() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hidden
}

// SetMetrics replaces the window dimensions.
func (p *FakePlatform) SetMetrics(m ports.WindowMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
}

// OpenDevTools widens the outer/inner gap past any sane threshold.
func (p *FakePlatform) OpenDevTools() {
	p.SetMetrics(ports.WindowMetrics{OuterWidth: 1280, OuterHeight: 800, InnerWidth: 880, InnerHeight: 720})
}

// CloseDevTools restores the default dimensions.
func (p *FakePlatform) CloseDevTools() {
	p.SetMetrics(ports.WindowMetrics{OuterWidth: 1280, OuterHeight: 800, InnerWidth: 1280, InnerHeight: 720})
}

// SetHidden flips document.hidden and dispatches visibilitychange.
func (p *FakePlatform) SetHidden(hidden bool) *FakeEvent {
	p.mu.Lock()
	p.hidden = hidden
	p.mu.Unlock()
	return p.Dispatch(ports.EventVisibilityChange, ports.KeyInfo{})
}

// Dispatch delivers an event to listeners of kind in registration order.
func (p *FakePlatform) Dispatch(kind ports.DocumentEventKind, key ports.KeyInfo) *FakeEvent {
	p.mu.Lock()
	ids := make([]ports.ListenerID, 0, len(p.listeners))
	for id, l := range p.listeners {
		if l.kind == kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(ports.DocumentEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.listeners[id].fn)
	}
	p.mu.Unlock()

	ev := &FakeEvent{kind: kind, key: key}
	for _, fn := range fns {
		fn(ev)
	}
	return ev
}

// Press dispatches a keydown on the document body.
func (p *FakePlatform) Press(key string, mods ...string) *FakeEvent {
	k := ports.KeyInfo{Key: key, OnBody: true}
	for _, m := range mods {
		switch m {
		case "ctrl":
			k.Ctrl = true
		case "shift":
			k.Shift = true
		case "alt":
			k.Alt = true
		case "meta":
			k.Meta = true
		}
	}
	return p.Dispatch(ports.EventKeyDown, k)
}

// Listeners counts registered listeners of kind; an empty kind counts all.
func (p *FakePlatform) Listeners(kind ports.DocumentEventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind == "" {
		return len(p.listeners)
	}
	n := 0
	for _, l := range p.listeners {
		if l.kind == kind {
			n++
		}
	}
	return n
}

// FakeEvent records whether a listener prevented the default action.
type FakeEvent struct {
	mu        sync.Mutex
	kind      ports.DocumentEventKind
	key       ports.KeyInfo
	prevented bool
}

func (e *FakeEvent) Kind() ports.DocumentEventKind { return e.kind }
func (e *FakeEvent) Key() ports.KeyInfo            { return e.key }

func (e *FakeEvent) PreventDefault() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prevented = true
}

func (e *FakeEvent) Prevented() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prevented
}
