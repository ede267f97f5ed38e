// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import (
	"context"
	"net"
	"sync"
	"time"
)

// NewBroadcast returns an IPv4 broadcast beacon on the given UDP port. The
// receiving socket is bound immediately so that a port conflict surfaces
// here rather than from inside the service, where nobody could act on it.
func NewBroadcast(port int) (Interface, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}

	c := newCast("broadcastBeacon")
	r := &broadcastReader{port: port, conn: conn}
	c.addReader(func(ctx context.Context) error {
		return r.serve(ctx, c.outbox)
	})
	c.addWriter(func(ctx context.Context) error {
		return writeBroadcasts(ctx, c.inbox, port)
	})
	return c, nil
}

func writeBroadcasts(ctx context.Context, inbox <-chan []byte, port int) error {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		l.Debugln(err)
		return err
	}
	doneCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-doneCtx.Done()
		conn.Close()
	}()

	for {
		var bs []byte
		select {
		case bs = <-inbox:
		case <-doneCtx.Done():
			return doneCtx.Err()
		}

		addrs, err := net.InterfaceAddrs()
		if err != nil {
			l.Debugln(err)
			return err
		}

		var dsts []net.IP
		for _, addr := range addrs {
			if iaddr, ok := addr.(*net.IPNet); ok && len(iaddr.IP) >= 4 && iaddr.IP.IsGlobalUnicast() && iaddr.IP.To4() != nil {
				baddr := bcast(iaddr)
				dsts = append(dsts, baddr.IP)
			}
		}

		if len(dsts) == 0 {
			// Fall back to the general IPv4 broadcast address
			dsts = append(dsts, net.IP{0xff, 0xff, 0xff, 0xff})
		}

		l.Debugln("addresses:", dsts)

		success := 0
		for _, ip := range dsts {
			dst := &net.UDPAddr{IP: ip, Port: port}

			conn.SetWriteDeadline(time.Now().Add(time.Second))
			_, err := conn.WriteTo(bs, dst)
			conn.SetWriteDeadline(time.Time{})

			if err != nil {
				l.Debugln(err, "on write to", dst)
				continue
			}

			l.Debugf("sent %d bytes to %s", len(bs), dst)

			success++

			select {
			case <-doneCtx.Done():
				return doneCtx.Err()
			default:
			}
		}

		if success == 0 {
			return err
		}
	}
}

type broadcastReader struct {
	port int
	conn *net.UDPConn
	mut  sync.Mutex
}

func (r *broadcastReader) serve(ctx context.Context, outbox chan<- recv) error {
	conn := r.takeConn()
	if conn == nil {
		// We get here after a restart; the original socket was closed on
		// the way down and must be reopened.
		var err error
		conn, err = net.ListenUDP("udp4", &net.UDPAddr{Port: r.port})
		if err != nil {
			l.Debugln(err)
			return err
		}
	}
	doneCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-doneCtx.Done()
		conn.Close()
	}()

	bs := make([]byte, 65536)
	for {
		n, addr, err := conn.ReadFrom(bs)
		if err != nil {
			if doneCtx.Err() != nil {
				return doneCtx.Err()
			}
			l.Debugln(err)
			return err
		}

		l.Debugf("recv %d bytes from %s", n, addr)

		c := make([]byte, n)
		copy(c, bs)
		select {
		case outbox <- recv{c, addr}:
		default:
			l.Debugln("dropping message")
		}
	}
}

func (r *broadcastReader) takeConn() *net.UDPConn {
	r.mut.Lock()
	defer r.mut.Unlock()
	conn := r.conn
	r.conn = nil
	return conn
}

func bcast(ip *net.IPNet) *net.IPNet {
	bc := &net.IPNet{}
	bc.IP = make([]byte, len(ip.IP))
	copy(bc.IP, ip.IP)
	bc.Mask = ip.Mask

	offset := len(bc.IP) - len(bc.Mask)
	for i := range bc.IP {
		if i-offset >= 0 {
			bc.IP[i] = ip.IP[i] | ^ip.Mask[i-offset]
		}
	}
	return bc
}
