// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connections moves clipboard payloads between devices: a TCP
// listener for inbound payloads and a concurrent fan-out for outbound ones.
package connections

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/clipsync/clipsync/lib/config"
	"github.com/clipsync/clipsync/lib/events"
	"github.com/clipsync/clipsync/lib/pairing"
	"github.com/clipsync/clipsync/lib/protocol"
	"github.com/clipsync/clipsync/lib/registry"
	"github.com/clipsync/clipsync/lib/svcutil"
)

const (
	// The frame is one marshalled ClipPayload; the limit leaves headroom
	// over the payload value limit for the framing and the other fields.
	maxFrameSize = 68 << 20

	readTimeout = 10 * time.Second

	// Inbound payloads already seen recently are dropped. The cache is
	// keyed on content digest and expires so that a user who legitimately
	// copies the same thing again later is not suppressed forever.
	seenCacheSize = 1024
	seenCacheTTL  = 30 * time.Second

	// A peer gone haywire should not be able to spin our accept loop.
	acceptRate  = 100
	acceptBurst = 200
)

// A Receiver is handed each valid inbound payload. Delivery happens on the
// connection's goroutine; the receiver provides its own synchronization.
type Receiver interface {
	Receive(payload protocol.ClipPayload)
}

// Service accepts inbound payload connections and sends outbound payloads to
// known devices. The listening socket is bound in NewService so that a port
// conflict fails server startup rather than being retried in the background.
type Service struct {
	myID        string
	gate        *pairing.Gate
	reg         *registry.Registry
	evLogger    *events.Logger
	listener    net.Listener
	limiter     *rate.Limiter
	seen        *lru.LRU[[sha256.Size]byte, struct{}]
	sendTimeout time.Duration

	mut  sync.Mutex
	recv Receiver
}

func NewService(cfg config.Settings, gate *pairing.Gate, reg *registry.Registry, evLogger *events.Logger) (*Service, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, err
	}
	return &Service{
		myID:        cfg.ID,
		gate:        gate,
		reg:         reg,
		evLogger:    evLogger,
		listener:    listener,
		limiter:     rate.NewLimiter(acceptRate, acceptBurst),
		seen:        lru.NewLRU[[sha256.Size]byte, struct{}](seenCacheSize, nil, seenCacheTTL),
		sendTimeout: cfg.SendTimeout,
	}, nil
}

// SetReceiver wires up the inbound payload consumer. Payloads arriving
// before a receiver is set are dropped.
func (s *Service) SetReceiver(r Receiver) {
	s.mut.Lock()
	s.recv = r
	s.mut.Unlock()
}

func (s *Service) receiver() Receiver {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.recv
}

// Addr returns the bound listener address.
func (s *Service) Addr() net.Addr {
	return s.listener.Addr()
}

// Close releases the listening socket. It is only needed when startup
// fails after the listener was bound but before the service was handed
// to a supervisor; a running service closes the socket itself.
func (s *Service) Close() error {
	return s.listener.Close()
}

func (s *Service) Serve(ctx context.Context) error {
	doneCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-doneCtx.Done()
		s.listener.Close()
	}()

	l.Infoln("Listening for sync connections on", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if doneCtx.Err() != nil {
				return doneCtx.Err()
			}
			// The listener is gone and cannot be rebound here; restarting
			// the service would just spin on the dead socket.
			l.Warnln("sync listener:", err)
			return svcutil.NoRestartErr(err)
		}

		if !s.limiter.Allow() {
			metricPayloadsDropped.WithLabelValues("ratelimit").Inc()
			conn.Close()
			continue
		}

		go s.handleConn(conn)
	}
}

func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	frame, err := readFrame(conn)
	if err != nil {
		l.Debugf("read from %s: %v", conn.RemoteAddr(), err)
		metricPayloadsDropped.WithLabelValues("malformed").Inc()
		return
	}

	var payload protocol.ClipPayload
	if err := payload.UnmarshalXDR(frame); err != nil {
		l.Debugf("decode from %s: %v", conn.RemoteAddr(), err)
		metricPayloadsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if payload.Magic != protocol.ClipSyncMagic {
		l.Debugf("unknown magic %08x from %s", payload.Magic, conn.RemoteAddr())
		metricPayloadsDropped.WithLabelValues("malformed").Inc()
		return
	}

	if _, known := s.reg.Get(payload.ID); !known {
		l.Debugln("payload from unknown device", payload.ID, "dropped")
		metricPayloadsDropped.WithLabelValues("unknown").Inc()
		return
	}
	if !s.gate.Admit(payload.PinHash) {
		// Same silence as the discovery side; an unpaired sender learns
		// nothing from us.
		l.Debugln("payload from unpaired device", payload.ID, "dropped")
		metricPayloadsDropped.WithLabelValues("unpaired").Inc()
		return
	}
	if !payload.Kind.Transferable() {
		l.Debugln("payload of kind", payload.Kind, "dropped")
		metricPayloadsDropped.WithLabelValues("kind").Inc()
		return
	}

	digest := protocol.PayloadDigest(payload.Kind, payload.Value)
	if _, dup := s.seen.Get(digest); dup {
		l.Debugln("duplicate payload from", payload.ID, "dropped")
		metricPayloadsDropped.WithLabelValues("duplicate").Inc()
		return
	}
	s.seen.Add(digest, struct{}{})

	s.reg.Seen(payload.ID)

	recv := s.receiver()
	if recv == nil {
		metricPayloadsDropped.WithLabelValues("noreceiver").Inc()
		return
	}

	metricPayloadsRecv.WithLabelValues(payload.Kind.String()).Inc()
	l.Debugf("received %s payload (%d bytes) from %s", payload.Kind, len(payload.Value), payload.ID)
	recv.Receive(payload)
}

// Broadcast sends the payload to every device, concurrently and best
// effort. A device that cannot be reached within the send timeout is
// skipped; that is normal operation, not an error, so Broadcast has no
// error return.
func (s *Service) Broadcast(ctx context.Context, payload protocol.ClipPayload, devices []registry.Device) {
	msg, err := payload.MarshalXDR()
	if err != nil {
		l.Infoln("payload not broadcast:", err)
		return
	}

	var wg sync.WaitGroup
	for _, dev := range devices {
		dev := dev
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.send(ctx, dev, msg); err != nil {
				l.Debugf("send to %s (%s): %v", dev.ID, dev.Address, err)
				metricPayloadsFailed.Inc()
				return
			}
			metricPayloadsSent.WithLabelValues(payload.Kind.String()).Inc()
			l.Debugf("sent %s payload (%d bytes) to %s", payload.Kind, len(payload.Value), dev.ID)
		}()
	}
	wg.Wait()
}

func (s *Service) send(ctx context.Context, dev registry.Device, msg []byte) error {
	dialer := net.Dialer{Timeout: s.sendTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", dev.Address)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(s.sendTimeout))
	return writeFrame(conn, msg)
}

func (s *Service) String() string {
	return fmt.Sprintf("connections.Service@%p", s)
}

func writeFrame(w io.Writer, data []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
