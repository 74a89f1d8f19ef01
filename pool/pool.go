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

// Package pool serves queries from a fixed set of connections.
//
// Each connection belongs to one slot: a goroutine, locked to its OS
// thread, that alone touches the connection and drains a private
// mailbox one request at a time. Query picks a slot round-robin, posts
// the request and waits for the reply on a channel that belongs to that
// request only. Requests to the same slot are served in the order they
// entered its mailbox; there is no rebalancing between slots.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native"
)

// ErrClosed is returned by Query after Close.
var ErrClosed = errors.New("pool: closed")

// Pool is a fixed set of connection slots.
type Pool struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	slots  []*slot
	cursor atomic.Uint64

	// mu is held for reading while posting to a mailbox and for writing
	// while closing them.
	mu     sync.RWMutex
	closed bool
}

// New opens cfg.Size connections through api, one per slot, in
// parallel. If any of them fails the others are closed and the first
// error is returned.
func New(ctx context.Context, api native.API, cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:    cfg,
		logger: cfg.Logger,
		tracer: cfg.Tracer,
		slots:  make([]*slot, cfg.Size),
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/berrytern/ifx/pool")
	}

	open := opener(ctx, api, cfg, p.logger)

	started := make([]bool, cfg.Size)
	g, gctx := errgroup.WithContext(ctx)
	for i := range p.slots {
		s := newSlot(i, cfg.MailboxCapacity, p.logger)
		p.slots[i] = s
		g.Go(func() error {
			if err := s.start(gctx, open, cfg.StatementCacheSize); err != nil {
				return err
			}
			started[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i, s := range p.slots {
			if started[i] {
				close(s.mailbox)
				<-s.exited
			}
		}
		return nil, err
	}
	p.logger.Info("pool started", slog.Int("size", cfg.Size))
	return p, nil
}

// opener returns a func that creates and connects one connection.
func opener(ctx context.Context, api native.API, cfg Config, logger *slog.Logger) func() (*ifx.Conn, error) {
	connOpts := append([]ifx.Option{ifx.WithLogger(logger)}, cfg.ConnOptions...)
	return func() (*ifx.Conn, error) {
		conn, err := ifx.New(api, connOpts...)
		if err != nil {
			return nil, err
		}
		if err := conn.ConnectWithString(ctx, cfg.ConnectionString); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// Size is the number of slots.
func (p *Pool) Size() int { return len(p.slots) }

// next returns the index of the slot for the next request.
func (p *Pool) next() int {
	return int((p.cursor.Add(1) - 1) % uint64(len(p.slots)))
}

// Query runs sql with params on the next slot and returns its rows, nil
// when the statement produced none.
func (p *Pool) Query(ctx context.Context, sql string, params ...ifx.Param) (rows []ifx.Row, err error) {
	idx := p.next()
	req := request{
		id:       uuid.New(),
		sql:      sql,
		params:   params,
		enqueued: time.Now(),
		reply:    make(chan response, 1),
	}

	ctx, span := p.tracer.Start(ctx, "pool.Query", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("db.system", "informix"),
		attribute.String("db.statement", sql),
		attribute.String("ifx.request_id", req.id.String()),
		attribute.Int("ifx.pool.slot", idx),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if _, ok := ctx.Deadline(); !ok && p.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.QueryTimeout)
		defer cancel()
	}
	req.ctx = ctx

	if err := p.post(ctx, p.slots[idx], req); err != nil {
		return nil, err
	}
	select {
	case resp := <-req.reply:
		return resp.rows, resp.err
	case <-ctx.Done():
		p.logger.Debug("stopped waiting for reply",
			slog.String("request_id", req.id.String()), slog.Int("slot", idx))
		return nil, &ifx.Error{Kind: ifx.KindSQLExecution, Msg: "no reply from slot", Err: ctx.Err()}
	}
}

func (p *Pool) post(ctx context.Context, s *slot, req request) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case s.mailbox <- req:
		return nil
	case <-ctx.Done():
		return &ifx.Error{Kind: ifx.KindSQLExecution, Msg: "slot mailbox full", Err: ctx.Err()}
	}
}

// SlotStats is the state and counters of one slot.
type SlotStats struct {
	Slot   int
	State  State
	Queued int
	Served uint64
	Failed uint64
}

// Stats is a snapshot of every slot.
func (p *Pool) Stats() []SlotStats {
	out := make([]SlotStats, len(p.slots))
	for i, s := range p.slots {
		out[i] = SlotStats{
			Slot:   i,
			State:  State(s.state.Load()),
			Queued: len(s.mailbox),
			Served: s.served.Load(),
			Failed: s.failed.Load(),
		}
	}
	return out
}

// Close stops accepting requests, lets every slot serve what is already
// in its mailbox, then closes the connections and waits for the slots to
// exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, s := range p.slots {
		close(s.mailbox)
	}
	p.mu.Unlock()

	for _, s := range p.slots {
		<-s.exited
	}
	p.logger.Info("pool closed")
	return nil
}
