// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package model

import "strings"

// File lists are stored as a single NUL separated value so that Item.Value
// stays a plain byte slice for every kind. NUL cannot occur in a path.

func EncodeFileList(paths []string) []byte {
	return []byte(strings.Join(paths, "\x00"))
}

func decodeFileList(value []byte) []string {
	if len(value) == 0 {
		return nil
	}
	return strings.Split(string(value), "\x00")
}
