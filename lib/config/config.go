// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config holds the settings for one clipsync instance.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPort             = 21177
	DefaultAnnounceInterval = 30 * time.Second

	// Echo suppression windows. The values are heuristics inherited from
	// field experience: images take noticeably longer than text to make it
	// through the OS clipboard layers, so they get a wider window. Both are
	// tunable, not a contract.
	DefaultTextEchoWindow  = 5 * time.Second
	DefaultImageEchoWindow = 15 * time.Second

	DefaultSendTimeout = 2 * time.Second
	DefaultMaxItems    = 500
)

// Settings configures the sync server for one instance. ID is stable per
// installation; Name is the user-visible display name and defaults to the
// host name.
type Settings struct {
	ID   string
	Name string
	Port int

	// PIN, when non-empty, gates admission of peers: only peers configured
	// with the same PIN are admitted, and only their payloads accepted.
	PIN string

	AnnounceInterval time.Duration
	TextEchoWindow   time.Duration
	ImageEchoWindow  time.Duration
	SendTimeout      time.Duration

	// MaxItems caps the local history; older items beyond the cap are
	// dropped on insert.
	MaxItems int
}

// DefaultSettings returns settings with all defaults filled in. A fresh
// random ID is generated when id is empty.
func DefaultSettings(id string) Settings {
	if id == "" {
		id = uuid.NewString()
	}
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = id
	}
	return Settings{
		ID:               id,
		Name:             name,
		Port:             DefaultPort,
		AnnounceInterval: DefaultAnnounceInterval,
		TextEchoWindow:   DefaultTextEchoWindow,
		ImageEchoWindow:  DefaultImageEchoWindow,
		SendTimeout:      DefaultSendTimeout,
		MaxItems:         DefaultMaxItems,
	}
}

// WithDefaults returns a copy of s with zero valued fields replaced by
// defaults.
func (s Settings) WithDefaults() Settings {
	def := DefaultSettings(s.ID)
	if s.Name == "" {
		s.Name = def.Name
	}
	s.ID = def.ID
	if s.Port == 0 {
		s.Port = def.Port
	}
	if s.AnnounceInterval == 0 {
		s.AnnounceInterval = def.AnnounceInterval
	}
	if s.TextEchoWindow == 0 {
		s.TextEchoWindow = def.TextEchoWindow
	}
	if s.ImageEchoWindow == 0 {
		s.ImageEchoWindow = def.ImageEchoWindow
	}
	if s.SendTimeout == 0 {
		s.SendTimeout = def.SendTimeout
	}
	if s.MaxItems == 0 {
		s.MaxItems = def.MaxItems
	}
	return s
}

func (s Settings) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("config: empty instance ID")
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", s.Port)
	}
	if s.AnnounceInterval < 0 || s.TextEchoWindow < 0 || s.ImageEchoWindow < 0 || s.SendTimeout < 0 {
		return fmt.Errorf("config: negative duration")
	}
	if s.MaxItems < 0 {
		return fmt.Errorf("config: negative max items")
	}
	return nil
}

// DeadDeviceAfter returns how long a device may stay silent before it is
// expired from the registry: three missed announcement intervals.
func (s Settings) DeadDeviceAfter() time.Duration {
	return 3 * s.AnnounceInterval
}

// MulticastAddr returns the IPv6 multicast group for announcements. The
// group is fixed; the port tracks the configured sync port so that peers
// only need to agree on one number.
func (s Settings) MulticastAddr() string {
	return fmt.Sprintf("[ff12::7c1b]:%d", s.Port)
}
