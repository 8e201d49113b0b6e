// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package security

import (
	"sync"

	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
)

// ScreenShareHub fans one platform screen-share notification out to every
// mounted player. The platform wrapper calls Notify whenever the page starts a
// display capture; each session subscribes through ports.ScreenShareGuard.
type ScreenShareHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func(map[string]string)
}

var _ ports.ScreenShareGuard = (*ScreenShareHub)(nil)

func NewScreenShareHub() *ScreenShareHub {
	return &ScreenShareHub{subs: make(map[uint64]func(map[string]string))}
}

// Subscribe registers fn. The returned function removes it and is safe to
// call more than once.
func (h *ScreenShareHub) Subscribe(fn func(payload map[string]string)) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Notify delivers payload to every subscriber. Subscribers run without the
// hub lock held, so they may unsubscribe from inside the callback.
func (h *ScreenShareHub) Notify(payload map[string]string) {
	h.mu.Lock()
	fns := make([]func(map[string]string), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		cp := make(map[string]string, len(payload))
		for k, v := range payload {
			cp[k] = v
		}
		fn(cp)
	}
}

// Subscribers reports the number of live subscriptions.
func (h *ScreenShareHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
