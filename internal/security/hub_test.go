// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenShareHub_FanOutAndUnsubscribe(t *testing.T) {
	hub := NewScreenShareHub()
	var a, b int
	unsubA := hub.Subscribe(func(map[string]string) { a++ })
	var unsubB func()
	unsubB = hub.Subscribe(func(p map[string]string) {
		b++
		p["mutated"] = "yes"
		unsubB()
	})

	payload := map[string]string{"surface": "window"}
	hub.Notify(payload)
	hub.Notify(payload)

	assert.Equal(t, 2, a)
	assert.Equal(t, 1, b, "unsubscribing from inside the callback is allowed")
	assert.NotContains(t, payload, "mutated", "subscribers get a copy")

	unsubA()
	unsubA()
	assert.Zero(t, hub.Subscribers())
}
