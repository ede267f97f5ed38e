// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pairing

import (
	"bytes"
	"testing"
)

func TestHashPIN(t *testing.T) {
	if HashPIN("") != nil {
		t.Error("empty PIN should hash to nil")
	}
	if !bytes.Equal(HashPIN("1234"), HashPIN("1234")) {
		t.Error("same PIN should hash identically")
	}
	if bytes.Equal(HashPIN("1234"), HashPIN("4321")) {
		t.Error("different PINs should hash differently")
	}
}

func TestGateAdmit(t *testing.T) {
	cases := []struct {
		name     string
		pin      string
		peerHash []byte
		admit    bool
	}{
		{"no pin admits anyone", "", HashPIN("whatever"), true},
		{"no pin admits no credential", "", nil, true},
		{"matching pin", "1234", HashPIN("1234"), true},
		{"wrong pin", "1234", HashPIN("4321"), false},
		{"missing credential", "1234", nil, false},
		{"short credential", "1234", []byte{0x01}, false},
	}

	for _, tc := range cases {
		g := NewGate(tc.pin)
		if got := g.Admit(tc.peerHash); got != tc.admit {
			t.Errorf("%s: Admit = %v, want %v", tc.name, got, tc.admit)
		}
	}
}

func TestGateHashIsCopy(t *testing.T) {
	g := NewGate("1234")
	h := g.Hash()
	for i := range h {
		h[i] = 0
	}
	if !g.Admit(HashPIN("1234")) {
		t.Error("mutating the returned hash changed the gate")
	}
}

func TestGateRequired(t *testing.T) {
	if NewGate("").Required() {
		t.Error("gate without PIN reports Required")
	}
	if !NewGate("1234").Required() {
		t.Error("gate with PIN does not report Required")
	}
}
