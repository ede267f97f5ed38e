// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package app ties the discovery, transport and model layers together
// into a startable, stoppable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/clipsync/clipsync/lib/beacon"
	"github.com/clipsync/clipsync/lib/config"
	"github.com/clipsync/clipsync/lib/connections"
	"github.com/clipsync/clipsync/lib/discover"
	"github.com/clipsync/clipsync/lib/events"
	"github.com/clipsync/clipsync/lib/model"
	"github.com/clipsync/clipsync/lib/pairing"
	"github.com/clipsync/clipsync/lib/protocol"
	"github.com/clipsync/clipsync/lib/registry"
	"github.com/clipsync/clipsync/lib/svcutil"
)

var (
	// ErrPortInUse is returned from Start when the sync port cannot be
	// bound because another process holds it.
	ErrPortInUse = errors.New("sync port already in use")
	// ErrAlreadyRunning is returned from Start when the server is
	// already up.
	ErrAlreadyRunning = errors.New("server already running")
)

// byeTimeout bounds how long Shutdown waits for the departure
// announcement to go out before tearing the sockets down anyway.
const byeTimeout = 2 * time.Second

// App owns a single clipboard sync server instance. The same App can be
// started and stopped repeatedly; collaborators that survive a restart
// (the store, the device registry, the model) are created once, while
// sockets and services are rebuilt on every Start.
type App struct {
	cfg      config.Settings
	gate     *pairing.Gate
	reg      *registry.Registry
	mdl      *model.Model
	evLogger *events.Logger

	mut     sync.Mutex
	running bool
	svc     *connections.Service
	disco   *discover.Discoverer
	cancel  context.CancelFunc
	errChan <-chan error
}

// New prepares an App from the given settings. The store holds the item
// history and the clipboard is written to when remote payloads arrive;
// both must be non-nil. No sockets are opened until Start.
func New(cfg config.Settings, store model.Store, clipboard model.Clipboard, evLogger *events.Logger) (*App, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		gate:     pairing.NewGate(cfg.PIN),
		reg:      registry.New(),
		evLogger: evLogger,
	}
	a.mdl = model.NewModel(cfg, a.gate, a.reg, store, clipboard, a, evLogger)
	return a, nil
}

// Model returns the model, which is the entry point for clipboard
// watcher callbacks and history operations. It is valid whether or not
// the server is running; with the server stopped the registry is empty
// and local changes are recorded but not sent anywhere.
func (a *App) Model() *model.Model {
	return a.mdl
}

// Registry returns the live device registry.
func (a *App) Registry() *registry.Registry {
	return a.reg
}

// Start binds the sync listener and the discovery sockets and brings up
// the service tree. If the fixed port cannot be bound nothing is left
// running and the returned error wraps ErrPortInUse. Starting an
// already running App returns ErrAlreadyRunning.
func (a *App) Start(ctx context.Context) error {
	a.mut.Lock()
	defer a.mut.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	a.evLogger.Log(events.Starting, map[string]string{"id": a.cfg.ID})

	svc, err := connections.NewService(a.cfg, a.gate, a.reg, a.evLogger)
	if err != nil {
		return bindError("sync listener", err)
	}
	svc.SetReceiver(a.mdl)

	bb, err := beacon.NewBroadcast(a.cfg.Port)
	if err != nil {
		svc.Close()
		return bindError("discovery socket", err)
	}

	beacons := []beacon.Interface{bb}
	if mb, err := beacon.NewMulticast(a.cfg.MulticastAddr()); err != nil {
		// IPv4 broadcast still works, so this is not fatal.
		l.Infoln("IPv6 discovery unavailable:", err)
	} else {
		beacons = append(beacons, mb)
	}

	disco := discover.New(a.cfg, a.gate, a.reg, a.evLogger, beacons...)

	main := suture.New("main", svcutil.SpecWithInfoLogger(l))
	main.Add(svc)
	main.Add(disco)

	serveCtx, cancel := context.WithCancel(ctx)
	a.errChan = main.ServeBackground(serveCtx)
	a.cancel = cancel
	a.svc = svc
	a.disco = disco
	a.running = true

	l.Infoln("Server started as", a.cfg.ID, "on port", a.cfg.Port)
	a.evLogger.Log(events.StartupComplete, map[string]string{"id": a.cfg.ID})
	return nil
}

// Shutdown announces departure to known devices, stops all services,
// releases the port and clears the registry. Calling Shutdown on a
// stopped App is a no-op.
func (a *App) Shutdown() error {
	a.mut.Lock()
	defer a.mut.Unlock()

	if !a.running {
		return nil
	}

	a.disco.SendBye(byeTimeout)

	a.cancel()
	err := <-a.errChan
	if err != nil && !errors.Is(err, context.Canceled) {
		l.Warnln("Server stopped with error:", err)
	} else {
		err = nil
	}

	for _, dev := range a.reg.Clear() {
		a.evLogger.Log(events.DeviceRemoved, map[string]string{
			"id":   dev.ID,
			"name": dev.Name,
		})
	}

	a.running = false
	a.svc = nil
	a.disco = nil
	a.cancel = nil
	a.errChan = nil

	l.Infoln("Server stopped")
	a.evLogger.Log(events.ServerStopped, map[string]string{"id": a.cfg.ID})
	return err
}

// Broadcast implements model.Broadcaster by delegating to the transport
// service while the server runs. With the server stopped payloads are
// silently dropped, which matches the registry being empty.
func (a *App) Broadcast(ctx context.Context, payload protocol.ClipPayload, devices []registry.Device) {
	a.mut.Lock()
	svc := a.svc
	a.mut.Unlock()
	if svc == nil {
		return
	}
	svc.Broadcast(ctx, payload, devices)
}

func bindError(what string, err error) error {
	if errors.Is(err, syscall.EADDRINUSE) {
		return fmt.Errorf("%w: %w", ErrPortInUse, err)
	}
	return fmt.Errorf("binding %s: %w", what, err)
}
