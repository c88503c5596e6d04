// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time operations Keyward depends on so
// that timeouts and uptime can be tested without sleeping.
//
// Production code takes a [Clock] and receives [Real]. Tests pass a
// [FakeClock] from [Fake] and move time explicitly with
// [FakeClock.Advance], using [FakeClock.WaitForTimers] to avoid racing
// the goroutine that registers the timer.
package clock
