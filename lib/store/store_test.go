// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/clipsync/clipsync/lib/model"
	"github.com/clipsync/clipsync/lib/protocol"
)

func TestInsertNewestFirst(t *testing.T) {
	s := NewMemory(10)

	for i := 0; i < 3; i++ {
		_, err := s.Insert(model.Item{
			Kind:  protocol.KindText,
			Value: []byte(fmt.Sprintf("item %d", i)),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	items, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if string(items[0].Value) != "item 2" {
		t.Errorf("newest item is not first: %q", items[0].Value)
	}
}

func TestInsertAssignsIDs(t *testing.T) {
	s := NewMemory(10)

	a, _ := s.Insert(model.Item{Kind: protocol.KindText, Value: []byte("a")})
	b, _ := s.Insert(model.Item{Kind: protocol.KindText, Value: []byte("b")})
	if a.ID == "" || b.ID == "" {
		t.Fatal("IDs not assigned on insert")
	}
	if a.ID == b.ID {
		t.Error("duplicate item IDs")
	}
}

func TestCapDropsOldest(t *testing.T) {
	s := NewMemory(2)

	s.Insert(model.Item{Value: []byte("oldest")})
	s.Insert(model.Item{Value: []byte("middle")})
	s.Insert(model.Item{Value: []byte("newest")})

	items, _ := s.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if string(items[0].Value) != "newest" || string(items[1].Value) != "middle" {
		t.Errorf("wrong items survived the cap: %q, %q", items[0].Value, items[1].Value)
	}
}

func TestUpdate(t *testing.T) {
	s := NewMemory(10)

	item, _ := s.Insert(model.Item{Value: []byte("before")})
	item.Value = []byte("after")

	if _, err := s.Update(item); err != nil {
		t.Fatal(err)
	}
	items, _ := s.List()
	if string(items[0].Value) != "after" {
		t.Errorf("update did not stick: %q", items[0].Value)
	}

	if _, err := s.Update(model.Item{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating a missing item: err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewMemory(10)

	item, _ := s.Insert(model.Item{Value: []byte("bye")})
	if err := s.Delete(item.ID); err != nil {
		t.Fatal(err)
	}
	if items, _ := s.List(); len(items) != 0 {
		t.Errorf("item still present after delete")
	}
	if err := s.Delete(item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: err = %v, want ErrNotFound", err)
	}
}
