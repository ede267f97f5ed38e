// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pairing implements the optional PIN gate for device admission.
package pairing

import (
	"crypto/sha256"
	"crypto/subtle"
)

// HashPIN returns the pairing credential for a PIN. The hash is
// deterministic so that two devices configured with the same PIN present
// identical credentials. An empty PIN hashes to nil, meaning pairing is
// disabled.
func HashPIN(pin string) []byte {
	if pin == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(pin))
	return sum[:]
}

// Gate decides whether a peer presenting a given credential is admitted.
// The zero value admits everyone.
type Gate struct {
	required []byte
}

func NewGate(pin string) *Gate {
	return &Gate{required: HashPIN(pin)}
}

// Required returns whether a PIN is configured on this side.
func (g *Gate) Required() bool {
	return len(g.required) > 0
}

// Hash returns the credential we present to peers, or nil when no PIN is
// configured.
func (g *Gate) Hash() []byte {
	if len(g.required) == 0 {
		return nil
	}
	h := make([]byte, len(g.required))
	copy(h, g.required)
	return h
}

// Admit returns whether a peer presenting peerHash may be admitted. With no
// PIN configured everyone is admitted. With a PIN configured the peer must
// present the identical credential; in particular a peer presenting no
// credential at all is rejected. The comparison is constant time so that
// rejection timing leaks nothing about the configured PIN.
func (g *Gate) Admit(peerHash []byte) bool {
	if len(g.required) == 0 {
		return true
	}
	if len(peerHash) != len(g.required) {
		return false
	}
	return subtle.ConstantTimeCompare(g.required, peerHash) == 1
}
