// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package discover announces our presence on the local network and maintains
// the device registry from the announcements of others.
package discover

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/clipsync/clipsync/lib/beacon"
	"github.com/clipsync/clipsync/lib/config"
	"github.com/clipsync/clipsync/lib/events"
	"github.com/clipsync/clipsync/lib/pairing"
	"github.com/clipsync/clipsync/lib/protocol"
	"github.com/clipsync/clipsync/lib/registry"
	"github.com/clipsync/clipsync/lib/svcutil"
)

// Discoverer broadcasts announcements at a fixed interval and listens for
// the announcements and departures of peers. Peers that pass the pairing
// gate are upserted into the registry; peers that stay silent for three
// announcement intervals are expired from it.
type Discoverer struct {
	*suture.Supervisor
	myID       string
	myName     string
	port       int
	gate       *pairing.Gate
	reg        *registry.Registry
	evLogger   *events.Logger
	beacons    []beacon.Interface
	interval   time.Duration
	deadAfter  time.Duration
	forcedTick chan struct{}
}

func New(cfg config.Settings, gate *pairing.Gate, reg *registry.Registry, evLogger *events.Logger, beacons ...beacon.Interface) *Discoverer {
	d := &Discoverer{
		Supervisor: suture.New("discover", svcutil.SpecWithDebugLogger(l)),
		myID:       cfg.ID,
		myName:     cfg.Name,
		port:       cfg.Port,
		gate:       gate,
		reg:        reg,
		evLogger:   evLogger,
		beacons:    beacons,
		interval:   cfg.AnnounceInterval,
		deadAfter:  cfg.DeadDeviceAfter(),
		forcedTick: make(chan struct{}, 1),
	}

	for _, b := range d.beacons {
		b := b
		d.Add(b)
		d.Add(svcutil.AsService(func(ctx context.Context) error {
			return d.recvAnnouncements(ctx, b)
		}, fmt.Sprintf("discover/recv@%s", b)))
	}
	d.Add(svcutil.AsService(d.sendAnnouncements, "discover/announce"))
	d.Add(svcutil.AsService(d.expireDevices, "discover/expire"))

	return d
}

func (d *Discoverer) announcementPkt() []byte {
	pkt := protocol.Announce{
		Magic:   protocol.AnnouncementMagic,
		ID:      d.myID,
		Name:    d.myName,
		Port:    uint16(d.port),
		PinHash: d.gate.Hash(),
	}
	return pkt.MustMarshalXDR()
}

func (d *Discoverer) sendAnnouncements(ctx context.Context) error {
	msg := d.announcementPkt()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-d.forcedTick:
			// A new device appeared; announce ourselves out of turn so it
			// learns about us without waiting a full interval.
		}

		l.Debugf("sending announcement for %s on %d beacons", d.myID, len(d.beacons))
		metricAnnouncesSent.Inc()
		for _, b := range d.beacons {
			b.Send(msg)
		}

		timer.Reset(d.interval)
	}
}

// SendBye broadcasts a departure announcement. It is called on the way down
// and must not hold up shutdown: sends that have not completed within the
// timeout are abandoned.
func (d *Discoverer) SendBye(timeout time.Duration) {
	msg := protocol.Bye{
		Magic: protocol.ByeMagic,
		ID:    d.myID,
	}.MustMarshalXDR()

	var wg sync.WaitGroup
	for _, b := range d.beacons {
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Send(msg)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// The writers picked the packets up; give them a moment to hit the
		// wire before the sockets are torn down.
		time.Sleep(100 * time.Millisecond)
	case <-time.After(timeout):
		l.Debugln("departure announcement timed out")
	}
}

func (d *Discoverer) recvAnnouncements(ctx context.Context, b beacon.Interface) error {
	type packet struct {
		data []byte
		src  net.Addr
	}
	packets := make(chan packet)
	go func() {
		for {
			data, src := b.Recv()
			select {
			case packets <- packet{data, src}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var pkt packet
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt = <-packets:
		}
		d.handlePacket(pkt.data, pkt.src)
	}
}

func (d *Discoverer) handlePacket(buf []byte, src net.Addr) {
	if len(buf) < 4 {
		return
	}
	magic := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])

	switch magic {
	case protocol.AnnouncementMagic:
		var pkt protocol.Announce
		if err := pkt.UnmarshalXDR(buf); err != nil {
			l.Debugf("discover: malformed announcement from %s: %v", src, err)
			return
		}
		if pkt.ID == d.myID {
			// Our own announcement, echoed back to us.
			return
		}
		metricAnnouncesRecv.Inc()
		d.registerDevice(src, pkt)

	case protocol.ByeMagic:
		var pkt protocol.Bye
		if err := pkt.UnmarshalXDR(buf); err != nil {
			l.Debugf("discover: malformed departure from %s: %v", src, err)
			return
		}
		if pkt.ID == d.myID {
			return
		}
		if dev, ok := d.reg.Get(pkt.ID); ok {
			d.reg.Remove(pkt.ID)
			l.Debugln("discover: device departed:", pkt.ID)
			d.evLogger.Log(events.DeviceRemoved, map[string]string{
				"id":   dev.ID,
				"name": dev.Name,
			})
		}

	default:
		// Unknown magic: a different protocol version, or not our packet
		// at all.
		l.Debugf("discover: unknown magic %08x from %s", magic, src)
	}
}

func (d *Discoverer) registerDevice(src net.Addr, pkt protocol.Announce) {
	if !d.gate.Admit(pkt.PinHash) {
		// Silently rejected; responding would hand a pairing oracle to
		// whoever is guessing PINs.
		metricDevicesRejected.Inc()
		l.Debugln("discover: rejected unpaired device:", pkt.ID)
		d.evLogger.Log(events.DeviceRejected, map[string]string{
			"id":   pkt.ID,
			"name": pkt.Name,
		})
		return
	}

	host := ""
	if udpAddr, ok := src.(*net.UDPAddr); ok {
		host = udpAddr.IP.String()
	} else if h, _, err := net.SplitHostPort(src.String()); err == nil {
		host = h
	}
	if host == "" {
		l.Debugf("discover: no usable source address in announcement from %s", src)
		return
	}

	dev := registry.Device{
		ID:      pkt.ID,
		Name:    pkt.Name,
		Address: net.JoinHostPort(host, strconv.Itoa(int(pkt.Port))),
		PinHash: pkt.PinHash,
	}

	if isNew := d.reg.Upsert(dev); isNew {
		l.Debugf("discover: new device %s (%q) at %s", dev.ID, dev.Name, dev.Address)
		d.evLogger.Log(events.DeviceDiscovered, map[string]string{
			"id":      dev.ID,
			"name":    dev.Name,
			"address": dev.Address,
		})

		select {
		case d.forcedTick <- struct{}{}:
		default:
		}
	}
}

func (d *Discoverer) expireDevices(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, dev := range d.reg.ExpireBefore(time.Now().Add(-d.deadAfter)) {
			l.Debugln("discover: device timed out:", dev.ID)
			d.evLogger.Log(events.DeviceRemoved, map[string]string{
				"id":   dev.ID,
				"name": dev.Name,
			})
		}
	}
}

func (d *Discoverer) String() string {
	return fmt.Sprintf("discoverer@%p", d)
}
