// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package connections

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/clipsync/clipsync/lib/config"
	"github.com/clipsync/clipsync/lib/events"
	"github.com/clipsync/clipsync/lib/pairing"
	"github.com/clipsync/clipsync/lib/protocol"
	"github.com/clipsync/clipsync/lib/registry"
)

type chanReceiver chan protocol.ClipPayload

func (r chanReceiver) Receive(payload protocol.ClipPayload) {
	r <- payload
}

func newTestService(t *testing.T, id, pin string) (*Service, *registry.Registry, chanReceiver) {
	t.Helper()

	cfg := config.Settings{
		ID:          id,
		SendTimeout: time.Second,
	}
	gate := pairing.NewGate(pin)
	reg := registry.New()

	svc, err := NewService(cfg, gate, reg, events.NewLogger())
	if err != nil {
		t.Fatal(err)
	}

	recv := make(chanReceiver, 16)
	svc.SetReceiver(recv)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Serve(ctx)
	t.Cleanup(cancel)

	return svc, reg, recv
}

func testPayload(id, pin, value string) protocol.ClipPayload {
	return protocol.ClipPayload{
		Magic:   protocol.ClipSyncMagic,
		ID:      id,
		PinHash: pairing.HashPIN(pin),
		Kind:    protocol.KindText,
		Value:   []byte(value),
	}
}

func expectReceive(t *testing.T, recv chanReceiver, value string) {
	t.Helper()
	select {
	case payload := <-recv:
		if string(payload.Value) != value {
			t.Fatalf("received %q, want %q", payload.Value, value)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for payload")
	}
}

func expectNothing(t *testing.T, recv chanReceiver) {
	t.Helper()
	select {
	case payload := <-recv:
		t.Fatalf("unexpected payload: %+v", payload)
	case <-time.After(250 * time.Millisecond):
	}
}

func TestSendReceive(t *testing.T) {
	sender, _, _ := newTestService(t, "sender", "")
	receiver, reg, recv := newTestService(t, "receiver", "")

	dev := registry.Device{ID: "sender", Address: receiver.Addr().String()}
	reg.Upsert(dev)

	sender.Broadcast(context.Background(), testPayload("sender", "", "hello"), []registry.Device{dev})
	expectReceive(t, recv, "hello")
}

func TestUnknownDeviceDropped(t *testing.T) {
	sender, _, _ := newTestService(t, "sender", "")
	receiver, _, recv := newTestService(t, "receiver", "")

	// The receiver has never heard of "sender".
	dev := registry.Device{ID: "sender", Address: receiver.Addr().String()}
	sender.Broadcast(context.Background(), testPayload("sender", "", "hello"), []registry.Device{dev})
	expectNothing(t, recv)
}

func TestUnpairedDropped(t *testing.T) {
	sender, _, _ := newTestService(t, "sender", "")
	receiver, reg, recv := newTestService(t, "receiver", "1234")

	dev := registry.Device{ID: "sender", Address: receiver.Addr().String()}
	reg.Upsert(dev)

	// No credential at all.
	sender.Broadcast(context.Background(), testPayload("sender", "", "hello"), []registry.Device{dev})
	expectNothing(t, recv)

	// Wrong PIN.
	sender.Broadcast(context.Background(), testPayload("sender", "4321", "hello"), []registry.Device{dev})
	expectNothing(t, recv)

	// Right PIN.
	sender.Broadcast(context.Background(), testPayload("sender", "1234", "hello"), []registry.Device{dev})
	expectReceive(t, recv, "hello")
}

func TestBroadcastSkipsUnreachable(t *testing.T) {
	sender, _, _ := newTestService(t, "sender", "")
	r1, reg1, recv1 := newTestService(t, "r1", "")
	r2, reg2, recv2 := newTestService(t, "r2", "")

	reg1.Upsert(registry.Device{ID: "sender"})
	reg2.Upsert(registry.Device{ID: "sender"})

	// An address nothing listens on anymore.
	gone, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	goneAddr := gone.Addr().String()
	gone.Close()

	devices := []registry.Device{
		{ID: "r1", Address: r1.Addr().String()},
		{ID: "gone", Address: goneAddr},
		{ID: "r2", Address: r2.Addr().String()},
	}

	done := make(chan struct{})
	go func() {
		sender.Broadcast(context.Background(), testPayload("sender", "", "fanout"), devices)
		close(done)
	}()

	expectReceive(t, recv1, "fanout")
	expectReceive(t, recv2, "fanout")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast did not return")
	}
}

func TestDuplicateDropped(t *testing.T) {
	sender, _, _ := newTestService(t, "sender", "")
	receiver, reg, recv := newTestService(t, "receiver", "")

	dev := registry.Device{ID: "sender", Address: receiver.Addr().String()}
	reg.Upsert(dev)

	payload := testPayload("sender", "", "repeated")
	sender.Broadcast(context.Background(), payload, []registry.Device{dev})
	expectReceive(t, recv, "repeated")

	sender.Broadcast(context.Background(), payload, []registry.Device{dev})
	expectNothing(t, recv)
}

func TestGarbageConnectionDropped(t *testing.T) {
	receiver, reg, recv := newTestService(t, "receiver", "")
	reg.Upsert(registry.Device{ID: "sender"})

	conn, err := net.Dial("tcp", receiver.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn.Write([]byte("this is not a frame at all, or at least not a short one"))
	conn.Close()

	expectNothing(t, recv)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("payload bytes")); err != nil {
		t.Fatal(err)
	}
	data, err := readFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload bytes" {
		t.Errorf("got %q", data)
	}
}

func TestFrameSizeLimit(t *testing.T) {
	hdr := []byte{0xff, 0xff, 0xff, 0xff}
	if _, err := readFrame(bytes.NewReader(hdr)); err == nil {
		t.Error("no error for oversized frame")
	}
}
