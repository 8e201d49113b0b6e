// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package issuer

import (
	"errors"
	"slices"
	"sync/atomic"
)

var (
	ErrUnknownLesson = errors.New("issuer: unknown lesson")
	ErrNotEntitled   = errors.New("issuer: user is not entitled to the lesson")
)

// Entitlements decides whether a user may play a lesson.
type Entitlements interface {
	Check(userID, lessonID string) error
}

// AllowAll grants every request.
type AllowAll struct{}

func (AllowAll) Check(string, string) error { return nil }

// StaticEntitlements checks a lesson catalog and a lesson → users grant map.
// Lessons without a grant entry are open to every user. An empty catalog
// accepts any lesson id.
type StaticEntitlements struct {
	state atomic.Pointer[entitlementState]
}

type entitlementState struct {
	catalog map[string]struct{}
	grants  map[string][]string
}

// NewStaticEntitlements builds the checker from configuration.
func NewStaticEntitlements(lessons []string, grants map[string][]string) *StaticEntitlements {
	e := &StaticEntitlements{}
	e.Replace(lessons, grants)
	return e
}

// Replace swaps the catalog and grants atomically.
func (e *StaticEntitlements) Replace(lessons []string, grants map[string][]string) {
	st := &entitlementState{grants: make(map[string][]string, len(grants))}
	if len(lessons) > 0 {
		st.catalog = make(map[string]struct{}, len(lessons))
		for _, l := range lessons {
			st.catalog[l] = struct{}{}
		}
	}
	for lesson, users := range grants {
		st.grants[lesson] = slices.Clone(users)
	}
	e.state.Store(st)
}

func (e *StaticEntitlements) Check(userID, lessonID string) error {
	st := e.state.Load()
	if st.catalog != nil {
		if _, ok := st.catalog[lessonID]; !ok {
			return ErrUnknownLesson
		}
	}
	users, restricted := st.grants[lessonID]
	if restricted && !slices.Contains(users, userID) {
		return ErrNotEntitled
	}
	return nil
}
