// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package registry keeps the in-memory roster of currently known peer
// devices. It does no I/O of its own; the discovery service writes to it and
// the transport and orchestrator read from it.
package registry

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// A Device is one peer instance reachable on the network.
type Device struct {
	ID      string
	Name    string
	Address string // host:port of the peer's sync listener
	PinHash []byte
}

type entry struct {
	device Device
	seen   time.Time
}

// Registry is safe for concurrent use. Devices are keyed by ID; upserting an
// existing ID replaces the stored record, which is how address changes after
// a reconnect are handled.
type Registry struct {
	devices map[string]*entry
	mut     sync.RWMutex
	now     func() time.Time // overridden in tests
}

func New() *Registry {
	return &Registry{
		devices: make(map[string]*entry),
		now:     time.Now,
	}
}

// Upsert adds or replaces the device and marks it seen. It returns true when
// the device was not previously known.
func (r *Registry) Upsert(dev Device) bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	_, existed := r.devices[dev.ID]
	r.devices[dev.ID] = &entry{device: dev, seen: r.now()}
	return !existed
}

// Seen refreshes the liveness timestamp for a known device.
func (r *Registry) Seen(id string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if e, ok := r.devices[id]; ok {
		e.seen = r.now()
	}
}

// Remove deletes the device, reporting whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	_, ok := r.devices[id]
	delete(r.devices, id)
	return ok
}

// Clear removes all devices and returns those that were removed.
func (r *Registry) Clear() []Device {
	r.mut.Lock()
	defer r.mut.Unlock()
	removed := make([]Device, 0, len(r.devices))
	for _, e := range r.devices {
		removed = append(removed, e.device)
	}
	r.devices = make(map[string]*entry)
	sortDevices(removed)
	return removed
}

// Get returns the device with the given ID.
func (r *Registry) Get(id string) (Device, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	e, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return e.device, true
}

// List returns a snapshot of all known devices, sorted by ID.
func (r *Registry) List() []Device {
	r.mut.RLock()
	defer r.mut.RUnlock()
	devices := make([]Device, 0, len(r.devices))
	for _, e := range r.devices {
		devices = append(devices, e.device)
	}
	sortDevices(devices)
	return devices
}

// ExpireBefore removes devices last seen before the cutoff and returns them.
func (r *Registry) ExpireBefore(cutoff time.Time) []Device {
	r.mut.Lock()
	defer r.mut.Unlock()
	var expired []Device
	for id, e := range r.devices {
		if e.seen.Before(cutoff) {
			expired = append(expired, e.device)
			delete(r.devices, id)
		}
	}
	sortDevices(expired)
	return expired
}

func sortDevices(devices []Device) {
	slices.SortFunc(devices, func(a, b Device) int {
		return strings.Compare(a.ID, b.ID)
	})
}
