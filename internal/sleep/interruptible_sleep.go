/*
Copyright 2021 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sleep implements InterruptibleSleep, the primitive the watcher
// and the poll timer both use to wake the reconciler without losing an
// event delivered between sleeps (spec.md §4.1).
package sleep

import "time"

// InterruptibleSleep blocks for up to a configured duration and returns
// early on Interrupt. Interrupts are latched: one issued while no Sleep is
// in progress wakes the very next Sleep immediately (at-least-one-wakeup
// semantics), and concurrent interrupts collapse to one. Not re-entrant:
// at most one Sleep call may be in flight at a time: concurrent sleepers
// are a programming error and will be serialized behind each other's
// channel send in an undefined order.
type InterruptibleSleep struct {
	// wake is a 1-buffered channel acting as a latched signal: a send
	// succeeds whether or not a Sleep is currently waiting on it, and a
	// pending send is consumed (not lost) by the next Sleep call.
	wake chan struct{}
}

// New returns a ready-to-use InterruptibleSleep with no pending interrupt.
func New() *InterruptibleSleep {
	return &InterruptibleSleep{wake: make(chan struct{}, 1)}
}

// Sleep blocks for up to d, returning earlier if Interrupt is called
// concurrently or was already latched from a prior call. Consuming the
// latch resets it; a latch left pending by a race between the timer and a
// concurrent Interrupt carries over to wake the very next Sleep instead.
func (s *InterruptibleSleep) Sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.wake:
	}
}

// Interrupt wakes a sleep in progress, or latches so the next Sleep call
// returns immediately. Safe to call from any goroutine, any number of
// times; concurrent interrupts collapse to one pending wakeup.
func (s *InterruptibleSleep) Interrupt() {
	select {
	case s.wake <- struct{}{}:
	default:
		// Already latched; at-least-one-wakeup is satisfied.
	}
}
