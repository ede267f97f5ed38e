// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package store provides an in-memory clip item history, newest first,
// capped at a configurable number of items.
package store

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/clipsync/clipsync/lib/model"
)

var ErrNotFound = errors.New("item not found")

// Memory implements model.Store. Items are kept newest first; inserting
// beyond the cap drops the oldest items.
type Memory struct {
	maxItems int

	mut   sync.RWMutex
	items []model.Item
}

func NewMemory(maxItems int) *Memory {
	return &Memory{maxItems: maxItems}
}

func (s *Memory) Insert(item model.Item) (model.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	s.items = append([]model.Item{item}, s.items...)
	if s.maxItems > 0 && len(s.items) > s.maxItems {
		s.items = s.items[:s.maxItems]
	}
	return item, nil
}

func (s *Memory) Update(item model.Item) (model.Item, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	for i := range s.items {
		if s.items[i].ID == item.ID {
			s.items[i] = item
			return item, nil
		}
	}
	return model.Item{}, ErrNotFound
}

func (s *Memory) Delete(id string) error {
	s.mut.Lock()
	defer s.mut.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Memory) List() ([]model.Item, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	items := make([]model.Item, len(s.items))
	copy(items, s.items)
	return items, nil
}
