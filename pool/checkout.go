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
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/berrytern/ifx"
	"github.com/berrytern/ifx/native"
)

// Checkout lends whole connections instead of running queries for the
// caller. A connection taken with Get belongs to the caller until it is
// handed back with Return; it is never given to two callers at once.
type Checkout struct {
	logger *slog.Logger
	idle   chan *ifx.Conn
	done   chan struct{}

	mu     sync.Mutex
	out    map[*ifx.Conn]struct{}
	closed bool
}

// NewCheckout opens cfg.Size connections through api in parallel. Only
// Size, ConnectionString, ConnOptions and Logger of cfg are used. If any
// connection fails the others are closed and the first error is returned.
func NewCheckout(ctx context.Context, api native.API, cfg Config) (*Checkout, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	open := opener(ctx, api, cfg, logger)

	conns := make([]*ifx.Conn, cfg.Size)
	var g errgroup.Group
	for i := range conns {
		g.Go(func() error {
			conn, err := open()
			conns[i] = conn
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, conn := range conns {
			if conn != nil {
				conn.Close()
			}
		}
		return nil, err
	}

	c := &Checkout{
		logger: logger,
		idle:   make(chan *ifx.Conn, cfg.Size),
		done:   make(chan struct{}),
		out:    make(map[*ifx.Conn]struct{}),
	}
	for _, conn := range conns {
		c.idle <- conn
	}
	logger.Info("checkout pool started", slog.Int("size", cfg.Size))
	return c, nil
}

// Available is the number of connections not lent out.
func (c *Checkout) Available() int { return len(c.idle) }

// Get takes a connection, waiting for one to be returned if all are lent
// out.
func (c *Checkout) Get(ctx context.Context) (*ifx.Conn, error) {
	select {
	case conn := <-c.idle:
		return c.lend(conn)
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, &ifx.Error{Kind: ifx.KindInvalidState, Msg: "no connection available", Err: ctx.Err()}
	}
}

// TryGet takes a connection if one is available without waiting.
func (c *Checkout) TryGet() (*ifx.Conn, bool) {
	select {
	case conn := <-c.idle:
		conn, err := c.lend(conn)
		return conn, err == nil
	default:
		return nil, false
	}
}

func (c *Checkout) lend(conn *ifx.Conn) (*ifx.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return nil, ErrClosed
	}
	c.out[conn] = struct{}{}
	return conn, nil
}

// Return hands conn back. A connection that was not lent by c, or was
// already returned, is rejected with ErrInvalidArgument. After Close the
// returned connection is closed instead.
func (c *Checkout) Return(conn *ifx.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.out[conn]; !ok {
		return &ifx.Error{Kind: ifx.KindInvalidArgument, Msg: fmt.Sprintf("connection %p is not lent by this pool", conn)}
	}
	delete(c.out, conn)
	if c.closed {
		return conn.Close()
	}
	c.idle <- conn
	return nil
}

// Close closes the idle connections. Lent connections are closed as they
// are returned. Close is idempotent.
func (c *Checkout) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	for {
		select {
		case conn := <-c.idle:
			conn.Close()
		default:
			c.logger.Info("checkout pool closed", slog.Int("lent", len(c.out)))
			return nil
		}
	}
}
