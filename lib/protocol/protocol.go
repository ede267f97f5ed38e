// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package protocol defines the wire format for presence announcements and
// clipboard payloads.
package protocol

import (
	"crypto/sha256"
	"errors"
)

// The magic numbers double as protocol version identifiers. A packet whose
// leading uint32 is not one of these is from a different (future or past)
// protocol version, or not ours at all, and is dropped by the receiver.
const (
	AnnouncementMagic uint32 = 0x7D79BC40
	ByeMagic          uint32 = 0x7D79BC41
	ClipSyncMagic     uint32 = 0x7D79BC42
)

// Kind classifies clipboard content. KindFiles exists so that the local
// watcher can classify everything it sees, but file lists never cross the
// network; paths are not portable between machines.
type Kind uint32

const (
	KindText Kind = 1 + iota
	KindImage
	KindFiles
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindFiles:
		return "files"
	default:
		return "unknown"
	}
}

// Transferable returns whether content of this kind may be sent to peers.
func (k Kind) Transferable() bool {
	return k == KindText || k == KindImage
}

var ErrBadMagic = errors.New("incorrect magic number")

// PayloadDigest identifies a payload's content for deduplication and echo
// suppression purposes.
func PayloadDigest(kind Kind, value []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte{byte(kind >> 24), byte(kind >> 16), byte(kind >> 8), byte(kind)})
	h.Write(value)
	var digest [sha256.Size]byte
	h.Sum(digest[:0])
	return digest
}
