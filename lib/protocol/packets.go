// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

// Announce is broadcast periodically to advertise our presence. An empty
// PinHash means the sender requires no pairing.
type Announce struct {
	Magic   uint32
	ID      string // max:64
	Name    string // max:64
	Port    uint16
	PinHash []byte // max:64
}

// Bye is broadcast once on graceful shutdown.
type Bye struct {
	Magic uint32
	ID    string // max:64
}

// ClipPayload carries one clipboard change to a peer. The PinHash is the
// sender's pairing credential, verified against the receiver's own hash.
type ClipPayload struct {
	Magic   uint32
	ID      string // max:64
	PinHash []byte // max:64
	Kind    Kind
	Value   []byte // max:67108864
}
