// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package model ties the local clipboard to the network: it decides which
// local clipboard changes are broadcast and what happens to payloads
// arriving from peers, and it guards against sync feedback loops.
package model

import (
	"context"
	"time"

	"github.com/clipsync/clipsync/lib/config"
	"github.com/clipsync/clipsync/lib/events"
	"github.com/clipsync/clipsync/lib/pairing"
	"github.com/clipsync/clipsync/lib/protocol"
	"github.com/clipsync/clipsync/lib/registry"
)

// Origin records which side of the network an item came from.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// An Item is one entry in the local clipboard history.
type Item struct {
	ID      string
	Kind    protocol.Kind
	Value   []byte
	Origin  Origin
	Created time.Time
}

// Store is the local clip item history. Implementations provide their own
// synchronization.
type Store interface {
	Insert(item Item) (Item, error)
	Update(item Item) (Item, error)
	Delete(id string) error
	List() ([]Item, error)
}

// Clipboard writes content back to the OS clipboard. Change notifications
// travel the other way, into Model.ClipboardChanged.
type Clipboard interface {
	WriteText(value []byte) error
	WriteImage(value []byte) error
	WriteFiles(paths []string) error
}

// Broadcaster sends a payload to a set of devices, best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload protocol.ClipPayload, devices []registry.Device)
}

// Model is the sync orchestrator. Its methods are safe for concurrent use;
// in particular the clipboard watcher callback and the inbound payload
// callback may fire at the same time.
type Model struct {
	myID        string
	pinHash     []byte
	reg         *registry.Registry
	store       Store
	clipboard   Clipboard
	broadcaster Broadcaster
	evLogger    *events.Logger
	echo        *echoTracker
}

func NewModel(cfg config.Settings, gate *pairing.Gate, reg *registry.Registry, store Store, clipboard Clipboard, broadcaster Broadcaster, evLogger *events.Logger) *Model {
	return &Model{
		myID:        cfg.ID,
		pinHash:     gate.Hash(),
		reg:         reg,
		store:       store,
		clipboard:   clipboard,
		broadcaster: broadcaster,
		evLogger:    evLogger,
		echo:        newEchoTracker(cfg.TextEchoWindow, cfg.ImageEchoWindow),
	}
}

// ClipboardChanged is the watcher callback: the OS clipboard now holds the
// given content. If the change is an echo of something we ourselves wrote,
// nothing happens. Otherwise the item goes into the local history and, for
// transferable kinds, out to every known device.
func (m *Model) ClipboardChanged(kind protocol.Kind, value []byte, at time.Time) {
	if m.echo.shouldSuppress(kind, value, at) {
		l.Debugf("suppressed clipboard echo (%s, %d bytes)", kind, len(value))
		return
	}

	item, err := m.store.Insert(Item{
		Kind:    kind,
		Value:   value,
		Origin:  OriginLocal,
		Created: at,
	})
	if err != nil {
		l.Warnln("storing clipboard item:", err)
		return
	}

	m.evLogger.Log(events.LocalChangeDetected, map[string]string{
		"id":   item.ID,
		"kind": kind.String(),
	})

	if !kind.Transferable() {
		// File lists stay local; paths mean nothing on another machine.
		return
	}

	devices := m.reg.List()
	if len(devices) == 0 {
		return
	}

	m.broadcaster.Broadcast(context.Background(), protocol.ClipPayload{
		Magic:   protocol.ClipSyncMagic,
		ID:      m.myID,
		PinHash: m.pinHash,
		Kind:    kind,
		Value:   value,
	}, devices)
}

// Receive is handed each valid inbound payload by the transport. The value
// is written to the OS clipboard and recorded in history with a remote
// origin. Inbound payloads are terminal: they are never re-broadcast, which
// is what keeps an N device mesh from circulating the same item forever.
func (m *Model) Receive(payload protocol.ClipPayload) {
	if !payload.Kind.Transferable() {
		l.Debugln("ignoring inbound payload of kind", payload.Kind)
		return
	}

	// Writing the clipboard below makes our own watcher fire; arm the echo
	// tracker first so that that change is recognized and not re-sent.
	m.echo.arm(payload.Kind, payload.Value, time.Now())

	var err error
	switch payload.Kind {
	case protocol.KindText:
		err = m.clipboard.WriteText(payload.Value)
	case protocol.KindImage:
		err = m.clipboard.WriteImage(payload.Value)
	}
	if err != nil {
		l.Warnln("writing synced content to clipboard:", err)
		// Fall through; the item still goes into history.
	}

	item, err := m.store.Insert(Item{
		Kind:    payload.Kind,
		Value:   payload.Value,
		Origin:  OriginRemote,
		Created: time.Now(),
	})
	if err != nil {
		l.Warnln("storing synced item:", err)
		return
	}

	m.evLogger.Log(events.ClipboardReceived, map[string]string{
		"id":     item.ID,
		"kind":   payload.Kind.String(),
		"device": payload.ID,
	})
}

// CopyItem writes a history entry back to the OS clipboard, the way the
// "copy" action on a list entry does. The echo tracker is armed before the
// write so that the resulting watcher event is not treated as a brand new
// clipboard entry.
func (m *Model) CopyItem(item Item) error {
	m.echo.arm(item.Kind, item.Value, time.Now())

	switch item.Kind {
	case protocol.KindText:
		return m.clipboard.WriteText(item.Value)
	case protocol.KindImage:
		return m.clipboard.WriteImage(item.Value)
	case protocol.KindFiles:
		return m.clipboard.WriteFiles(decodeFileList(item.Value))
	}
	return nil
}
