// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command clipdisco listens for discovery announcements on the local
// network and prints them. With -fake it also announces itself, which
// lures out devices that only answer when they see someone new.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clipsync/clipsync/lib/beacon"
	"github.com/clipsync/clipsync/lib/protocol"
)

var (
	all  = false // print all packets, not just the first from each device/source
	fake = false // send fake announcements to lure out other devices faster
	mc   = "[ff12::7c1b]:21177"
	bc   = 21177
)

var myID = "clipdisco-" + uuid.NewString()

func main() {
	flag.BoolVar(&all, "all", all, "Print all received announcements (not only first)")
	flag.BoolVar(&fake, "fake", fake, "Send fake announcements")
	flag.StringVar(&mc, "mc", mc, "IPv6 multicast address")
	flag.IntVar(&bc, "bc", bc, "IPv4 broadcast port number")
	flag.Parse()

	if fake {
		log.Println("My ID:", myID)
	}

	mcb, err := beacon.NewMulticast(mc)
	if err != nil {
		log.Println("Multicast:", err)
	} else {
		runbeacon(mcb)
	}

	bcb, err := beacon.NewBroadcast(bc)
	if err != nil {
		log.Println("Broadcast:", err)
	} else {
		runbeacon(bcb)
	}

	select {}
}

func runbeacon(b beacon.Interface) {
	go b.Serve(context.Background())
	go recv(b)
	if fake {
		go send(b)
	}
}

// receives and prints discovery announcements
func recv(b beacon.Interface) {
	seen := make(map[string]bool)
	for {
		data, src := b.Recv()

		var ann protocol.Announce
		if err := ann.UnmarshalXDR(data); err != nil || ann.Magic != protocol.AnnouncementMagic {
			continue
		}
		if ann.ID == myID {
			// One of our own fake packets.
			continue
		}

		key := ann.ID + src.String()
		if all || !seen[key] {
			log.Printf("Announcement from %v", src)
			log.Printf(" %s (%q) port %d, PIN set: %v", ann.ID, ann.Name, ann.Port, len(ann.PinHash) > 0)
			seen[key] = true
		}
	}
}

// sends fake announcements once every second
func send(b beacon.Interface) {
	ann := protocol.Announce{
		Magic: protocol.AnnouncementMagic,
		ID:    myID,
		Name:  "clipdisco probe",
		Port:  uint16(bc),
	}
	bs := ann.MustMarshalXDR()

	for {
		b.Send(bs)
		time.Sleep(time.Second)
	}
}
