// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package arena is an index-addressed registry for objects that are
// referred to from outside by an opaque integer id.
//
// Ids are handed out monotonically and never reused, so a lookup with a
// stale id misses instead of aliasing a newer object.
package arena

import "sync"

// Arena maps ids to values. The zero id is never issued. An Arena is
// safe for concurrent use.
type Arena[T any] struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]T
}

// New returns an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{items: make(map[uint64]T)}
}

// Insert stores v and returns its id.
func (a *Arena[T]) Insert(v T) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.items[a.next] = v
	return a.next
}

// Get returns the value stored under id.
func (a *Arena[T]) Get(id uint64) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.items[id]
	return v, ok
}

// Remove deletes id and returns the value it held. A second Remove of
// the same id reports false.
func (a *Arena[T]) Remove(id uint64) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.items[id]
	if ok {
		delete(a.items, id)
	}
	return v, ok
}

// Len is the number of live entries.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Each calls fn for every live entry until fn returns false. fn must not
// call back into the arena.
func (a *Arena[T]) Each(fn func(id uint64, v T) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, v := range a.items {
		if !fn(id, v) {
			return
		}
	}
}
