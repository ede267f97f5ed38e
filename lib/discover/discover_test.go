// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/clipsync/clipsync/lib/beacon"
	"github.com/clipsync/clipsync/lib/config"
	"github.com/clipsync/clipsync/lib/events"
	"github.com/clipsync/clipsync/lib/pairing"
	"github.com/clipsync/clipsync/lib/protocol"
	"github.com/clipsync/clipsync/lib/registry"
)

// fakeBeacon records sent packets and never receives anything.
type fakeBeacon struct {
	sent chan []byte
}

func newFakeBeacon() *fakeBeacon {
	return &fakeBeacon{sent: make(chan []byte, 16)}
}

func (b *fakeBeacon) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBeacon) Send(data []byte) {
	b.sent <- data
}

func (b *fakeBeacon) Recv() ([]byte, net.Addr) {
	select {}
}

func (b *fakeBeacon) Error() error   { return nil }
func (b *fakeBeacon) String() string { return "fakeBeacon" }

var testSrc = &net.UDPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 39999}

func newTestDiscoverer(pin string, beacons ...beacon.Interface) (*Discoverer, *registry.Registry, *events.Logger) {
	cfg := config.Settings{
		ID:               "self",
		Name:             "self name",
		Port:             21177,
		AnnounceInterval: 50 * time.Millisecond,
	}
	reg := registry.New()
	evLogger := events.NewLogger()
	d := New(cfg, pairing.NewGate(pin), reg, evLogger, beacons...)
	return d, reg, evLogger
}

func announcePkt(id, name, pin string, port uint16) []byte {
	return protocol.Announce{
		Magic:   protocol.AnnouncementMagic,
		ID:      id,
		Name:    name,
		Port:    port,
		PinHash: pairing.HashPIN(pin),
	}.MustMarshalXDR()
}

func TestHandleAnnouncement(t *testing.T) {
	d, reg, evLogger := newTestDiscoverer("")
	sub := evLogger.Subscribe(events.DeviceDiscovered)
	defer evLogger.Unsubscribe(sub)

	d.handlePacket(announcePkt("peer", "Peer Name", "", 4242), testSrc)

	dev, ok := reg.Get("peer")
	if !ok {
		t.Fatal("device not registered")
	}
	if dev.Address != "192.0.2.7:4242" {
		t.Errorf("address %q: expected the source IP with the announced port", dev.Address)
	}
	if dev.Name != "Peer Name" {
		t.Errorf("name %q", dev.Name)
	}

	if _, err := sub.Poll(time.Second); err != nil {
		t.Errorf("no DeviceDiscovered event: %v", err)
	}

	select {
	case <-d.forcedTick:
	default:
		t.Error("new device did not force an announcement")
	}
}

func TestReannounceNewAddress(t *testing.T) {
	d, reg, _ := newTestDiscoverer("")

	d.handlePacket(announcePkt("peer", "Peer", "", 4242), testSrc)
	newSrc := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 99), Port: 39999}
	d.handlePacket(announcePkt("peer", "Peer", "", 4242), newSrc)

	if devs := reg.List(); len(devs) != 1 {
		t.Fatalf("expected one device, got %d", len(devs))
	}
	dev, _ := reg.Get("peer")
	if dev.Address != "192.0.2.99:4242" {
		t.Errorf("address not updated on re-announce: %q", dev.Address)
	}
}

func TestOwnAnnouncementIgnored(t *testing.T) {
	d, reg, _ := newTestDiscoverer("")

	d.handlePacket(announcePkt("self", "self name", "", 21177), testSrc)

	if len(reg.List()) != 0 {
		t.Error("registered our own announcement")
	}
}

func TestPinRejection(t *testing.T) {
	d, reg, evLogger := newTestDiscoverer("1234")
	sub := evLogger.Subscribe(events.DeviceRejected)
	defer evLogger.Unsubscribe(sub)

	// No credential.
	d.handlePacket(announcePkt("nopin", "No PIN", "", 4242), testSrc)
	// Wrong PIN.
	d.handlePacket(announcePkt("wrongpin", "Wrong PIN", "4321", 4242), testSrc)

	if len(reg.List()) != 0 {
		t.Fatalf("unpaired devices registered: %v", reg.List())
	}
	for i := 0; i < 2; i++ {
		if _, err := sub.Poll(time.Second); err != nil {
			t.Fatalf("missing DeviceRejected event %d: %v", i, err)
		}
	}

	// Matching PIN.
	d.handlePacket(announcePkt("rightpin", "Right PIN", "1234", 4242), testSrc)
	if _, ok := reg.Get("rightpin"); !ok {
		t.Error("paired device not registered")
	}
}

func TestByeRemovesDevice(t *testing.T) {
	d, reg, evLogger := newTestDiscoverer("")
	sub := evLogger.Subscribe(events.DeviceRemoved)
	defer evLogger.Unsubscribe(sub)

	d.handlePacket(announcePkt("peer", "Peer", "", 4242), testSrc)
	if _, ok := reg.Get("peer"); !ok {
		t.Fatal("device not registered")
	}

	bye := protocol.Bye{Magic: protocol.ByeMagic, ID: "peer"}.MustMarshalXDR()
	d.handlePacket(bye, testSrc)

	if _, ok := reg.Get("peer"); ok {
		t.Error("device still registered after bye")
	}
	if _, err := sub.Poll(time.Second); err != nil {
		t.Errorf("no DeviceRemoved event: %v", err)
	}

	// A bye for an unknown device is a no-op.
	d.handlePacket(protocol.Bye{Magic: protocol.ByeMagic, ID: "stranger"}.MustMarshalXDR(), testSrc)
}

func TestMalformedPackets(t *testing.T) {
	d, reg, _ := newTestDiscoverer("")

	d.handlePacket(nil, testSrc)
	d.handlePacket([]byte{0x01}, testSrc)
	d.handlePacket([]byte{0xde, 0xad, 0xbe, 0xef}, testSrc)
	// Right magic, truncated body.
	d.handlePacket(announcePkt("peer", "Peer", "", 4242)[:6], testSrc)

	if len(reg.List()) != 0 {
		t.Errorf("malformed packet registered a device: %v", reg.List())
	}
}

func TestSendAnnouncements(t *testing.T) {
	b := newFakeBeacon()
	d, _, _ := newTestDiscoverer("", b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.sendAnnouncements(ctx)

	select {
	case data := <-b.sent:
		var pkt protocol.Announce
		if err := pkt.UnmarshalXDR(data); err != nil {
			t.Fatal(err)
		}
		if pkt.Magic != protocol.AnnouncementMagic || pkt.ID != "self" || pkt.Port != 21177 {
			t.Errorf("unexpected announcement: %+v", pkt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no announcement sent")
	}
}

func TestSendBye(t *testing.T) {
	b := newFakeBeacon()
	d, _, _ := newTestDiscoverer("", b)

	d.SendBye(time.Second)

	select {
	case data := <-b.sent:
		var pkt protocol.Bye
		if err := pkt.UnmarshalXDR(data); err != nil {
			t.Fatal(err)
		}
		if pkt.Magic != protocol.ByeMagic || pkt.ID != "self" {
			t.Errorf("unexpected bye: %+v", pkt)
		}
	default:
		t.Fatal("no bye sent")
	}
}

func TestAnnouncementCarriesPinHash(t *testing.T) {
	d, _, _ := newTestDiscoverer("1234")

	var pkt protocol.Announce
	if err := pkt.UnmarshalXDR(d.announcementPkt()); err != nil {
		t.Fatal(err)
	}
	if len(pkt.PinHash) == 0 {
		t.Error("announcement carries no pairing credential despite a configured PIN")
	}
}
