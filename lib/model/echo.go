// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package model

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/clipsync/clipsync/lib/protocol"
)

// echoTracker remembers the most recent value we ourselves wrote to the OS
// clipboard, so that the watcher event caused by that write can be told
// apart from the user copying something new. Only the latest write is
// remembered; a new write supersedes the previous marker, and old markers
// expire implicitly through the window check.
//
// If the user manually copies the exact same content within the window it
// is classified as an echo and dropped. That false negative is a known,
// accepted trade-off of this scheme.
type echoTracker struct {
	textWindow  time.Duration
	imageWindow time.Duration

	mut    sync.Mutex
	armed  bool
	kind   protocol.Kind
	digest [sha256.Size]byte
	at     time.Time
}

func newEchoTracker(textWindow, imageWindow time.Duration) *echoTracker {
	return &echoTracker{
		textWindow:  textWindow,
		imageWindow: imageWindow,
	}
}

// arm records that we are about to write this value to the OS clipboard.
// Called before the write, so the marker is in place whenever the watcher
// fires.
func (e *echoTracker) arm(kind protocol.Kind, value []byte, at time.Time) {
	e.mut.Lock()
	e.armed = true
	e.kind = kind
	e.digest = protocol.PayloadDigest(kind, value)
	e.at = at
	e.mut.Unlock()
}

// shouldSuppress reports whether a watcher event with this content and
// timestamp is an echo of our own most recent clipboard write: same
// content, after the marker, within the window for its kind. Images get a
// wider window than text because they take longer to propagate through the
// OS clipboard layers.
func (e *echoTracker) shouldSuppress(kind protocol.Kind, value []byte, at time.Time) bool {
	e.mut.Lock()
	defer e.mut.Unlock()

	if !e.armed || kind != e.kind {
		return false
	}
	if protocol.PayloadDigest(kind, value) != e.digest {
		return false
	}

	window := e.textWindow
	if kind == protocol.KindImage {
		window = e.imageWindow
	}
	return at.After(e.at) && at.Sub(e.at) <= window
}
