// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command clipsyncd runs a headless clipboard sync node. Lines read from
// stdin stand in for local clipboard changes; content arriving from peers
// is printed to stdout. It is mainly a development and interop tool, since
// a real deployment hooks the model up to an OS clipboard watcher instead.
package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/clipsync/clipsync/lib/app"
	"github.com/clipsync/clipsync/lib/config"
	"github.com/clipsync/clipsync/lib/events"
	"github.com/clipsync/clipsync/lib/model"
	"github.com/clipsync/clipsync/lib/protocol"
	"github.com/clipsync/clipsync/lib/store"
)

type cli struct {
	ID       string `help:"Device ID (default: random)" env:"CLIPSYNC_ID"`
	Name     string `help:"Device name shown to peers (default: hostname)"`
	Port     int    `help:"Sync and discovery port" default:"21177"`
	Pin      string `help:"Pairing PIN; only devices with the same PIN sync" env:"CLIPSYNC_PIN"`
	MaxItems int    `help:"Maximum number of history entries to keep" default:"500"`
	Verbose  bool   `help:"Print all events" short:"v"`
}

func main() {
	var params cli
	kong.Parse(&params)

	cfg := config.Settings{
		ID:       params.ID,
		Name:     params.Name,
		Port:     params.Port,
		PIN:      params.Pin,
		MaxItems: params.MaxItems,
	}.WithDefaults()

	evLogger := events.NewLogger()

	a, err := app.New(cfg, store.NewMemory(cfg.MaxItems), consoleClipboard{}, evLogger)
	if err != nil {
		log.Fatalln("Configuration:", err)
	}

	mask := events.DeviceDiscovered | events.DeviceRemoved | events.ClipboardReceived
	if params.Verbose {
		mask = events.AllEvents
	}
	sub := evLogger.Subscribe(mask)
	go printEvents(sub)

	if err := a.Start(context.Background()); err != nil {
		log.Fatalln("Starting server:", err)
	}
	log.Println("Running as", cfg.ID, "(", cfg.Name, ") on port", cfg.Port)

	go readClipboardLines(a.Model())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := a.Shutdown(); err != nil {
		log.Fatalln("Shutdown:", err)
	}
}

func printEvents(sub *events.Subscription) {
	for ev := range sub.C() {
		log.Printf("Event %v: %v", ev.Type, ev.Data)
	}
}

// readClipboardLines feeds stdin lines into the model as local text
// clipboard changes.
func readClipboardLines(m *model.Model) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m.ClipboardChanged(protocol.KindText, []byte(line), time.Now())
	}
}

// consoleClipboard prints synced content instead of touching an OS
// clipboard.
type consoleClipboard struct{}

func (consoleClipboard) WriteText(value []byte) error {
	log.Printf("Clipboard text: %q", value)
	return nil
}

func (consoleClipboard) WriteImage(value []byte) error {
	log.Printf("Clipboard image: %d bytes", len(value))
	return nil
}

func (consoleClipboard) WriteFiles(paths []string) error {
	log.Printf("Clipboard files: %s", strings.Join(paths, ", "))
	return nil
}
