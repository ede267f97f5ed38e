// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package beacon sends and receives small datagrams on the local network,
// by IPv4 broadcast or IPv6 multicast. It carries the presence announcements
// for the discovery service.
package beacon

import (
	"context"
	"fmt"
	"net"

	"github.com/clipsync/clipsync/lib/svcutil"

	"github.com/thejerf/suture/v4"
)

type recv struct {
	data []byte
	src  net.Addr
}

type Interface interface {
	suture.Service
	fmt.Stringer
	Send(data []byte)
	Recv() ([]byte, net.Addr)
	Error() error
}

// cast implements Interface on top of a reader and writer service pair,
// supervised together. The outbox is bounded; messages are dropped rather
// than blocking the reader when nobody is consuming.
type cast struct {
	*suture.Supervisor
	name   string
	reader svcutil.ServiceWithError
	writer svcutil.ServiceWithError
	inbox  chan []byte
	outbox chan recv
}

func newCast(name string) *cast {
	return &cast{
		Supervisor: suture.New(name, svcutil.SpecWithDebugLogger(l)),
		name:       name,
		inbox:      make(chan []byte),
		outbox:     make(chan recv, 16),
	}
}

func (c *cast) addReader(svc func(context.Context) error) {
	c.reader = svcutil.AsService(svc, fmt.Sprintf("%s/reader", c))
	c.Add(c.reader)
}

func (c *cast) addWriter(svc func(context.Context) error) {
	c.writer = svcutil.AsService(svc, fmt.Sprintf("%s/writer", c))
	c.Add(c.writer)
}

func (c *cast) String() string {
	return fmt.Sprintf("%s@%p", c.name, c)
}

func (c *cast) Send(data []byte) {
	c.inbox <- data
}

func (c *cast) Recv() ([]byte, net.Addr) {
	recv := <-c.outbox
	return recv.data, recv.src
}

func (c *cast) Error() error {
	if err := c.reader.Error(); err != nil {
		return err
	}
	return c.writer.Error()
}
