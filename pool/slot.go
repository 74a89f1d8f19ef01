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

package pool

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"

	"github.com/berrytern/ifx"
)

// State is the state of a slot.
type State int32

const (
	Idle State = iota
	Processing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type request struct {
	id       uuid.UUID
	ctx      context.Context
	sql      string
	params   []ifx.Param
	enqueued time.Time
	// reply is buffered so the slot never blocks on a caller that has
	// stopped waiting.
	reply chan response
}

type response struct {
	rows []ifx.Row
	err  error
}

// slot owns one connection. Only its goroutine touches conn and cache.
type slot struct {
	id      int
	mailbox chan request
	logger  *slog.Logger

	conn  *ifx.Conn
	cache gcache.Cache

	state  atomic.Int32
	served atomic.Uint64
	failed atomic.Uint64
	exited chan struct{}
}

func newSlot(id int, capacity int, logger *slog.Logger) *slot {
	return &slot{
		id:      id,
		mailbox: make(chan request, capacity),
		logger:  logger.With(slog.Int("slot", id)),
		exited:  make(chan struct{}),
	}
}

// start runs the slot goroutine and waits until its connection is ready
// or has failed. On failure the goroutine has already exited.
func (s *slot) start(ctx context.Context, open func() (*ifx.Conn, error), cacheSize int) error {
	ready := make(chan error, 1)
	go s.run(open, cacheSize, ready)
	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		// the goroutine still reports; close once it has
		go func() {
			if err := <-ready; err == nil {
				close(s.mailbox)
			}
		}()
		return ctx.Err()
	}
}

func (s *slot) run(open func() (*ifx.Conn, error), cacheSize int, ready chan<- error) {
	defer close(s.exited)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	conn, err := open()
	if err != nil {
		s.state.Store(int32(Closed))
		ready <- err
		return
	}
	s.conn = conn
	if cacheSize > 0 {
		s.cache = s.newCache(cacheSize)
	}
	s.logger.Debug("slot ready")
	ready <- nil

	for req := range s.mailbox {
		s.serve(req)
	}
	s.shutdown()
}

func (s *slot) newCache(size int) gcache.Cache {
	closeStmt := func(key, value any) {
		if err := value.(*ifx.Stmt).Close(); err != nil {
			s.logger.Warn("closing cached statement", slog.Any("sql", key), slog.Any("error", err))
		}
	}
	return gcache.New(size).LRU().
		LoaderFunc(func(key any) (any, error) {
			return s.conn.Prepare(context.Background(), key.(string))
		}).
		EvictedFunc(closeStmt).
		PurgeVisitorFunc(closeStmt).
		Build()
}

func (s *slot) serve(req request) {
	if err := req.ctx.Err(); err != nil {
		// the caller gave up while the request was queued
		req.reply <- response{err: err}
		return
	}
	s.state.Store(int32(Processing))
	start := time.Now()
	rows, err := s.query(req)
	s.state.Store(int32(Idle))

	s.served.Add(1)
	if err != nil {
		s.failed.Add(1)
	}
	s.logger.Debug("request served",
		slog.String("request_id", req.id.String()),
		slog.Duration("queued", start.Sub(req.enqueued)),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("rows", len(rows)),
		slog.Any("error", err))
	req.reply <- response{rows: rows, err: err}
}

func (s *slot) query(req request) ([]ifx.Row, error) {
	if s.cache == nil {
		return s.conn.QueryWithParameters(req.ctx, req.sql, req.params...)
	}
	v, err := s.cache.Get(req.sql)
	if err != nil {
		return nil, err
	}
	rows, err := v.(*ifx.Stmt).Query(req.ctx, req.params...)
	if err != nil {
		// a statement that failed is not trusted for the next request
		s.cache.Remove(req.sql)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}

func (s *slot) shutdown() {
	if s.cache != nil {
		s.cache.Purge()
	}
	s.conn.Close()
	s.state.Store(int32(Closed))
	s.logger.Debug("slot closed")
}
